package s3batch

import "github.com/input-output-hk/catalyst-forge-libs/s3batch/batchtypes"

// State is the lifecycle state of a Runner.
type State string

// Runner states
const (
	StateIdle          State = State(batchtypes.PhaseIdle)
	StateGenerating    State = State(batchtypes.PhaseGenerating)
	StateMaterializing State = State(batchtypes.PhaseMaterializing)
	StateUploading     State = State(batchtypes.PhaseUploading)
	StateSummarizing   State = State(batchtypes.PhaseSummarizing)
	StateDone          State = State(batchtypes.PhaseDone)
	StateFailed        State = State(batchtypes.PhaseFailed)
)

var transitions = map[State][]State{
	StateIdle:          {StateGenerating, StateFailed},
	StateGenerating:    {StateMaterializing, StateFailed},
	StateMaterializing: {StateUploading, StateFailed},
	StateUploading:     {StateSummarizing, StateFailed},
	StateSummarizing:   {StateDone},
}

// CanTransition reports whether a run may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is Done or Failed.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Phase returns the batch phase named by s.
func (s State) Phase() batchtypes.Phase {
	return batchtypes.Phase(s)
}
