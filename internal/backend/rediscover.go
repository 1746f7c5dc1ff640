package backend

import (
	"fmt"
	"io/fs"
	"log"
	"path/filepath"

	"github.com/voltplot/roc/internal/device"
	"github.com/voltplot/roc/internal/linker"
	"github.com/voltplot/roc/internal/scheduler"
)

// linkerFileName is the name Compile persists the linker table under,
// inside a backend's ArtifactDir.
const linkerFileName = "linker.json"

// Handle identifies a previously-compiled backend found on disk: its name,
// the stable artifact directory holding its bitstream and linker file, and
// the parsed linker itself.
type Handle struct {
	Name        string
	ArtifactDir string
	Linker      *linker.Linker
}

// Rediscover walks root for directories containing a persisted linker
// file, letting a previously compiled backend be resurrected without a
// recompile. A directory whose linker file fails to parse is logged and
// skipped rather than aborting the whole scan.
//
// Grounded on original_source/crates/backend/src/fpga/linker.rs's
// FPGABackend::from_link_file, which rebuilds a backend directly from a
// loaded Linker, a path, and a device config.
func Rediscover(root string) ([]Handle, error) {
	var handles []Handle
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != linkerFileName {
			return nil
		}
		lk, lerr := linker.Load(path)
		if lerr != nil {
			log.Printf("backend: rediscover: skip %s: %v", path, lerr)
			return nil
		}
		handles = append(handles, Handle{
			Name:        lk.Name,
			ArtifactDir: filepath.Dir(path),
			Linker:      lk,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("backend: rediscover %s: %w", root, err)
	}
	return handles, nil
}

// Resume reconstructs a backend directly in the Ready state from a
// rediscovered Handle, skipping Compile entirely since the artifact tree
// already holds a synthesized bitstream and linker file. inv is the
// invoker Run will later use to launch the programmer subprocess.
func Resume(h Handle, plot scheduler.Plot, sched *scheduler.Scheduler, inv device.Invoker, statusCh chan<- Msg) *Backend {
	b := New(h.Name, plot, sched, statusCh)
	b.mu.Lock()
	b.linker = h.Linker
	b.artifactDir = h.ArtifactDir
	b.invoker = inv
	b.status = Ready
	b.mu.Unlock()
	return b
}
