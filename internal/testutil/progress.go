package testutil

import (
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/s3batch/batchtypes"
)

// ProgressRecorder collects progress snapshots for assertions.
type ProgressRecorder struct {
	mu      sync.Mutex
	updates []batchtypes.Progress
}

// Record is a batchtypes.ProgressFunc.
func (r *ProgressRecorder) Record(p batchtypes.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, p)
}

// Updates returns the recorded snapshots in order.
func (r *ProgressRecorder) Updates() []batchtypes.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]batchtypes.Progress(nil), r.updates...)
}

// ForPhase returns the snapshots recorded for one phase.
func (r *ProgressRecorder) ForPhase(phase batchtypes.Phase) []batchtypes.Progress {
	var out []batchtypes.Progress
	for _, p := range r.Updates() {
		if p.Phase == phase {
			out = append(out, p)
		}
	}
	return out
}
