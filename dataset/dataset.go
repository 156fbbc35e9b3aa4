// Package dataset provides labelled images for triplet training, and a Loader that turns a
// TripletList into batches of images in the background.
package dataset

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	tn "github.com/sharnoff/tripletnet"
	"github.com/sharnoff/tripletnet/utils"
	"k8s.io/klog/v2"
)

// Item is a single image of the dataset.
type Item struct {
	// Path is the file the image was read from. It is empty for images built in memory.
	Path string

	// Class is in [0, NumClasses()) of the Dataset the item belongs to.
	Class int

	Image image.Image
}

// Dataset is an immutable set of labelled images. It is safe for concurrent use.
type Dataset struct {
	items []Item

	// pools[c] lists the indices of items with class c
	pools [][]int

	names []string
}

// New returns a Dataset of the given items. Classes must be in [0, len(names)), and each must have
// at least one item. names may be nil, in which case classes are named by number.
func New(items []Item, names []string) (*Dataset, error) {
	numClasses := len(names)
	if names == nil {
		for _, it := range items {
			if it.Class+1 > numClasses {
				numClasses = it.Class + 1
			}
		}
	}

	d := &Dataset{
		items: make([]Item, len(items)),
		pools: make([][]int, numClasses),
		names: make([]string, numClasses),
	}

	copy(d.items, items)
	for c := range d.names {
		if names != nil {
			d.names[c] = names[c]
		} else {
			d.names[c] = strconv.Itoa(c)
		}
	}

	for i, it := range d.items {
		if it.Image == nil {
			return nil, errors.Wrapf(tn.ErrConfiguration, "item %d (%q) has no image", i, it.Path)
		} else if it.Class < 0 || it.Class >= numClasses {
			return nil, errors.Wrapf(tn.ErrConfiguration, "item %d (%q) has class %d, outside [0, %d)", i, it.Path, it.Class, numClasses)
		}

		d.pools[it.Class] = append(d.pools[it.Class], i)
	}

	for c, p := range d.pools {
		if len(p) == 0 {
			return nil, errors.Wrapf(tn.ErrConfiguration, "class %d (%s) has no images", c, d.names[c])
		}
	}

	return d, nil
}

// LoadFolder reads a dataset laid out as one directory per class, such as CUB-200-2011: if root
// has an "images" subdirectory, the class directories are taken from there. Class directories are
// sorted by name, and classes selects which of them to load by position; the i-th entry of classes
// becomes class i of the Dataset.
//
// Every image is resized to imSize x imSize, unless imSize is 0. Decoding is spread over workers
// goroutines (all CPUs if workers <= 0).
func LoadFolder(root string, classes []int, imSize, workers int) (*Dataset, error) {
	if len(classes) == 0 {
		return nil, errors.Wrap(tn.ErrConfiguration, "no classes selected")
	} else if imSize < 0 {
		return nil, errors.Wrapf(tn.ErrConfiguration, "image size must be >= 0 (%d)", imSize)
	}

	dir := root
	if fi, err := os.Stat(filepath.Join(root, "images")); err == nil && fi.IsDir() {
		dir = filepath.Join(root, "images")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to read dataset directory %s\n", dir)
	}

	var classDirs []string
	for _, e := range entries {
		if e.IsDir() {
			classDirs = append(classDirs, e.Name())
		}
	}
	sort.Strings(classDirs)

	var items []Item
	names := make([]string, len(classes))
	for i, c := range classes {
		if c < 0 || c >= len(classDirs) {
			return nil, errors.Wrapf(tn.ErrConfiguration, "class %d is out of range: %s has %d class directories", c, dir, len(classDirs))
		}

		names[i] = classDirs[c]
		files, err := imageFiles(filepath.Join(dir, classDirs[c]))
		if err != nil {
			return nil, err
		}

		for _, f := range files {
			items = append(items, Item{Path: f, Class: i})
		}
	}

	decode := func(i int) error {
		img, err := readImage(items[i].Path)
		if err != nil {
			return err
		}

		if imSize > 0 {
			img = resize.Resize(uint(imSize), uint(imSize), img, resize.Bilinear)
		}

		items[i].Image = img
		return nil
	}

	if err := utils.MultiThread(0, len(items), decode, 16, workers); err != nil {
		return nil, errors.Wrapf(err, "Failed to load images from %s\n", dir)
	}

	klog.Infof("Loaded %d images of %d classes from %s", len(items), len(classes), dir)
	return New(items, names)
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}

// imageFiles returns the sorted paths of image files directly inside dir
func imageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to read class directory %s\n", dir)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}

	sort.Strings(files)
	return files, nil
}

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to open image\n")
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to decode image %s\n", path)
	}

	return img, nil
}

// Len returns the number of items.
func (d *Dataset) Len() int {
	return len(d.items)
}

func (d *Dataset) NumClasses() int {
	return len(d.pools)
}

// ClassName returns the name of the class: its directory for datasets read by LoadFolder.
func (d *Dataset) ClassName(c int) string {
	if c < 0 || c >= len(d.names) {
		return ""
	}

	return d.names[c]
}

// Class is the implementation of tripletnet.Labeler
func (d *Dataset) Class(idx int) (int, error) {
	if idx < 0 || idx >= len(d.items) {
		return 0, errors.Wrapf(tn.ErrNotFound, "item %d is out of range [0, %d)", idx, len(d.items))
	}

	return d.items[idx].Class, nil
}

// Pools returns, for each class, the indices of its items. The result may be modified freely.
func (d *Dataset) Pools() [][]int {
	ps := make([][]int, len(d.pools))
	for c, p := range d.pools {
		ps[c] = make([]int, len(p))
		copy(ps[c], p)
	}

	return ps
}

// Item returns the item at idx.
func (d *Dataset) Item(idx int) (Item, error) {
	if idx < 0 || idx >= len(d.items) {
		return Item{}, errors.Wrapf(tn.ErrNotFound, "item %d is out of range [0, %d)", idx, len(d.items))
	}

	return d.items[idx], nil
}

// GetItem returns the anchor, positive, and negative images of the triplet, along with the
// triplet itself, which carries their indices.
func (d *Dataset) GetItem(t tn.Triplet) ([3]image.Image, tn.Triplet, error) {
	var imgs [3]image.Image
	for i, idx := range [3]int{t.Anchor, t.Positive, t.Negative} {
		it, err := d.Item(idx)
		if err != nil {
			return imgs, t, errors.Wrapf(err, "triplet %v", t)
		}

		imgs[i] = it.Image
	}

	return imgs, t, nil
}
