// Package checkpoint saves training checkpoints to a run directory and reads them back to resume.
package checkpoint

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	tn "github.com/sharnoff/tripletnet"
	"k8s.io/klog/v2"
)

const (
	// LatestFile is the name of the checkpoint written on every Save
	LatestFile string = "checkpoint.json"

	// BestFile is the name of the copy kept of the best checkpoint
	BestFile string = "model_best.json"
)

// Store writes checkpoints into a single directory. It implements tripletnet.CheckpointStore.
type Store struct {
	dir string
}

// NewStore returns a Store for dir, creating it (with permissions 0700) if it does not exist.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.Wrap(tn.ErrConfiguration, "checkpoint directory is empty")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "Couldn't make directory to save checkpoints")
	}

	return &Store{dir}, nil
}

// Dir returns the directory the Store writes to.
func (s *Store) Dir() string {
	return s.dir
}

// LatestPath returns the path of the most recent checkpoint.
func (s *Store) LatestPath() string {
	return filepath.Join(s.dir, LatestFile)
}

// BestPath returns the path of the best checkpoint.
func (s *Store) BestPath() string {
	return filepath.Join(s.dir, BestFile)
}

// Save writes c as the latest checkpoint, replacing the previous one. If isBest is true, it is also
// copied to the best checkpoint. A partially written file never replaces a complete one.
func (s *Store) Save(c tn.Checkpoint, isBest bool) error {
	b, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return errors.Wrapf(err, "Failed to encode checkpoint for epoch %d\n", c.Epoch)
	}

	if err := writeFile(s.LatestPath(), b); err != nil {
		return err
	}

	if isBest {
		if err := copyFile(s.BestPath(), s.LatestPath()); err != nil {
			return err
		}
	}

	klog.V(1).Infof("Saved checkpoint for epoch %d to %s (best: %v)", c.Epoch, s.dir, isBest)
	return nil
}

// writeFile writes b to a temporary file next to path, then renames it into place
func writeFile(path string, b []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrapf(err, "Can't save checkpoint, couldn't create file in %s\n", filepath.Dir(path))
	}

	if _, err = f.Write(b); err != nil {
		f.Close()
		os.Remove(f.Name())
		return errors.Wrapf(err, "Failed to write checkpoint %s\n", path)
	}

	if err = f.Close(); err != nil {
		os.Remove(f.Name())
		return errors.Wrapf(err, "Failed to write checkpoint %s\n", path)
	}

	if err = os.Rename(f.Name(), path); err != nil {
		os.Remove(f.Name())
		return errors.Wrapf(err, "Failed to move checkpoint into place at %s\n", path)
	}

	return nil
}

func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "Failed to open checkpoint %s\n", src)
	}
	defer in.Close()

	b, err := io.ReadAll(in)
	if err != nil {
		return errors.Wrapf(err, "Failed to read checkpoint %s\n", src)
	}

	return writeFile(dst, b)
}

// Load reads the checkpoint at path. If path does not exist, the returned error satisfies
// tripletnet.IsNotFound.
func Load(path string) (tn.Checkpoint, error) {
	var c tn.Checkpoint

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, errors.Wrapf(tn.ErrNotFound, "no checkpoint found at %q", path)
	} else if err != nil {
		return c, errors.Wrapf(err, "Failed to read checkpoint %s\n", path)
	}

	if err := json.Unmarshal(b, &c); err != nil {
		return c, errors.Wrapf(err, "Checkpoint %s is malformed\n", path)
	}

	return c, nil
}

// Restore loads the checkpoint at path into e, which must be the same kind of network that was
// saved. The checkpoint is returned so that the caller can resume from its epoch.
func Restore(path string, network string, e tn.Embedder) (tn.Checkpoint, error) {
	c, err := Load(path)
	if err != nil {
		return c, err
	}

	if c.Network != network {
		return c, errors.Wrapf(tn.ErrConfiguration, "checkpoint is of network %q, not %q", c.Network, network)
	}

	if len(c.Model) != 0 {
		st, ok := e.(tn.Stateful)
		if !ok {
			return c, errors.Wrapf(tn.ErrConfiguration, "network %q has no state to restore", network)
		}

		if err := st.LoadState(c.Model); err != nil {
			return c, errors.Wrapf(err, "Failed to restore network from %s\n", path)
		}
	}

	klog.Infof("=> loaded checkpoint '%s' (epoch %d)", path, c.Epoch)
	return c, nil
}
