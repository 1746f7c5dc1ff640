package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/voltplot/roc/internal/compilegraph"
	"github.com/voltplot/roc/internal/linker"
	"github.com/voltplot/roc/internal/scheduler"
)

func TestRediscoverFindsLinkerFiles(t *testing.T) {
	root := t.TempDir()

	aDir := filepath.Join(root, "0,0", "RoC")
	if err := os.MkdirAll(aDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	lkA := linker.New("RoC")
	lkA.AddBlock(linker.IntfBlock{Kind: linker.KindLever, Pos: compilegraph.Pos{X: 0, Y: 64, Z: 0}})
	if err := lkA.Persist(filepath.Join(aDir, "linker.json")); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	bDir := filepath.Join(root, "1,0", "other")
	if err := os.MkdirAll(bDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	lkB := linker.New("other")
	if err := lkB.Persist(filepath.Join(bDir, "linker.json")); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	// A directory with a corrupt linker file should be skipped, not fatal.
	badDir := filepath.Join(root, "2,0", "bad")
	if err := os.MkdirAll(badDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(badDir, "linker.json"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	handles, err := Rediscover(root)
	if err != nil {
		t.Fatalf("Rediscover: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("len(handles) = %d, want 2: %+v", len(handles), handles)
	}

	byName := make(map[string]Handle)
	for _, h := range handles {
		byName[h.Name] = h
	}
	hA, ok := byName["RoC"]
	if !ok {
		t.Fatalf("missing handle for RoC: %+v", handles)
	}
	if hA.ArtifactDir != aDir {
		t.Fatalf("ArtifactDir = %q, want %q", hA.ArtifactDir, aDir)
	}
	if len(hA.Linker.Outputs) != 0 || len(hA.Linker.Inputs) != 1 {
		t.Fatalf("rediscovered linker table mismatch: %+v", hA.Linker)
	}
	if _, ok := byName["other"]; !ok {
		t.Fatalf("missing handle for other: %+v", handles)
	}
}

func TestRediscoverEmptyRoot(t *testing.T) {
	handles, err := Rediscover(t.TempDir())
	if err != nil {
		t.Fatalf("Rediscover: %v", err)
	}
	if len(handles) != 0 {
		t.Fatalf("len(handles) = %d, want 0", len(handles))
	}
}

func TestResumeBuildsReadyBackend(t *testing.T) {
	artifactDir := t.TempDir()
	lk := linker.New("RoC")
	lk.AddBlock(linker.IntfBlock{Kind: linker.KindLamp, Pos: compilegraph.Pos{X: 0, Y: 64, Z: 0}})

	h := Handle{Name: "RoC", ArtifactDir: artifactDir, Linker: lk}
	sched := newScheduler(t, 1)
	statusCh := make(chan Msg, 4)

	b := Resume(h, scheduler.Plot{X: 0, Z: 0}, sched, fakeInvoker{}, statusCh)

	if b.Status() != Ready {
		t.Fatalf("Status = %v, want Ready", b.Status())
	}
	if b.linker != lk {
		t.Fatalf("Resume did not wire the rediscovered linker onto the backend")
	}
	if b.artifactDir != artifactDir {
		t.Fatalf("artifactDir = %q, want %q", b.artifactDir, artifactDir)
	}
}
