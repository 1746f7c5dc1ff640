// Package scheduler implements the process-wide FPGA device pool: a
// mutex-guarded, first-fit allocator handing devices out to logical plots.
//
// Grounded on original_source/crates/fpga/src/scheduler.rs.
package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/voltplot/roc/internal/device"
)

// Plot identifies the logical owner a device is locked to.
type Plot struct {
	X, Z int
}

// FPGA pairs a device profile with its current owner, if any.
type FPGA struct {
	Config device.Config
	owner  *Plot
}

// Owner reports the plot currently holding this device, if any.
func (f *FPGA) Owner() (Plot, bool) {
	if f.owner == nil {
		return Plot{}, false
	}
	return *f.owner, true
}

// Scheduler is a mutex-guarded pool of FPGAs. Lock and Free are the only
// mutators of fpgas (Len only reads it, under the same mutex), so a single mutex
// around the whole pool is sufficient — there is no finer-grained
// contention to exploit, matching the original's plain Vec scan.
type Scheduler struct {
	mu    sync.Mutex
	fpgas []*FPGA
}

// LoadFromConfig reads a JSON array of device.Config from path and
// returns a Scheduler with one unowned FPGA per entry.
func LoadFromConfig(path string) (*Scheduler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scheduler: read %s: %w", path, err)
	}
	var configs []device.Config
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("scheduler: parse %s: %w", path, err)
	}
	s := &Scheduler{fpgas: make([]*FPGA, len(configs))}
	for i, cfg := range configs {
		s.fpgas[i] = &FPGA{Config: cfg}
	}
	return s, nil
}

// Lock assigns the first free device to plot and reports success. No
// preemption, no priority, no queueing: a caller that loses the race
// polls again later.
func (s *Scheduler) Lock(plot Plot) (*FPGA, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.fpgas {
		if f.owner == nil {
			p := plot
			f.owner = &p
			return f, true
		}
	}
	return nil, false
}

// Free releases whatever device plot currently owns, if any.
func (s *Scheduler) Free(plot Plot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.fpgas {
		if f.owner != nil && *f.owner == plot {
			f.owner = nil
			return
		}
	}
}

// Len reports the pool size.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fpgas)
}
