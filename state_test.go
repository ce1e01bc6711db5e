package s3batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_CanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateGenerating, true},
		{StateIdle, StateFailed, true},
		{StateIdle, StateUploading, false},
		{StateGenerating, StateMaterializing, true},
		{StateGenerating, StateFailed, true},
		{StateMaterializing, StateUploading, true},
		{StateMaterializing, StateFailed, true},
		{StateUploading, StateSummarizing, true},
		{StateUploading, StateFailed, true},
		{StateSummarizing, StateDone, true},
		{StateSummarizing, StateFailed, false},
		{StateDone, StateIdle, false},
		{StateFailed, StateGenerating, false},
		{StateGenerating, StateIdle, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateUploading.Terminal())
	assert.Equal(t, "uploading", string(StateUploading.Phase()))
}
