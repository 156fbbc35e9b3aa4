package checkpoint

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"testing"

	tn "github.com/sharnoff/tripletnet"
)

// stateful keeps a single number as its state
type stateful struct {
	v float64
}

func (s *stateful) Embed(image.Image) ([]float64, error) { return []float64{s.v}, nil }
func (s *stateful) Dim() int                             { return 1 }

func (s *stateful) State() (json.RawMessage, error) {
	return json.Marshal(s.v)
}

func (s *stateful) LoadState(b json.RawMessage) error {
	return json.Unmarshal(b, &s.v)
}

type stateless struct{}

func (stateless) Embed(image.Image) ([]float64, error) { return []float64{0}, nil }
func (stateless) Dim() int                             { return 1 }

func checkpointOf(t *testing.T, epoch int, acc float64, s *stateful) tn.Checkpoint {
	t.Helper()
	st, err := s.State()
	if err != nil {
		t.Fatal(err)
	}
	return tn.Checkpoint{RunID: "run", Epoch: epoch, BestAccuracy: acc, Network: "simple", Model: st}
}

func TestSaveAndLoad(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "runs", "TripletNet"))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Save(checkpointOf(t, 3, 0.5, &stateful{1.5}), true); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(checkpointOf(t, 5, 0.5, &stateful{2.5}), false); err != nil {
		t.Fatal(err)
	}

	latest, err := Load(s.LatestPath())
	if err != nil {
		t.Fatal(err)
	}
	if latest.Epoch != 5 || latest.RunID != "run" || latest.BestAccuracy != 0.5 {
		t.Errorf("latest checkpoint is %+v", latest)
	}

	best, err := Load(s.BestPath())
	if err != nil {
		t.Fatal(err)
	}
	if best.Epoch != 3 {
		t.Errorf("best checkpoint has epoch %d, want 3", best.Epoch)
	}

	// no temporary files are left behind
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("directory has %d entries, want 2", len(entries))
	}
}

func TestRestore(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(checkpointOf(t, 7, 0.75, &stateful{4}), false); err != nil {
		t.Fatal(err)
	}

	e := &stateful{}
	c, err := Restore(s.LatestPath(), "simple", e)
	if err != nil {
		t.Fatal(err)
	}
	if e.v != 4 || c.Epoch != 7 {
		t.Errorf("restored value %v at epoch %d", e.v, c.Epoch)
	}

	if _, err := Restore(s.LatestPath(), "haar", e); !tn.IsConfiguration(err) {
		t.Errorf("wrong network: got error %v, want configuration error", err)
	}
	if _, err := Restore(s.LatestPath(), "simple", stateless{}); !tn.IsConfiguration(err) {
		t.Errorf("stateless network: got error %v, want configuration error", err)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "nothing.json")); !tn.IsNotFound(err) {
		t.Errorf("missing file: got error %v, want not found", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil || tn.IsNotFound(err) {
		t.Errorf("malformed file: got error %v", err)
	}

	if _, err := NewStore(""); !tn.IsConfiguration(err) {
		t.Errorf("empty dir: got error %v, want configuration error", err)
	}
}
