package batchtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchSummary_Incomplete(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		uploaded  int
		want      bool
	}{
		{"all uploaded", 10, 10, false},
		{"partial", 10, 7, true},
		{"none", 10, 0, true},
		{"empty run", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &BatchSummary{Requested: tt.requested, Uploaded: tt.uploaded}
			assert.Equal(t, tt.want, s.Incomplete())
		})
	}
}

func TestUploadResult_Succeeded(t *testing.T) {
	assert.True(t, UploadResult{Outcome: OutcomeSuccess}.Succeeded())
	assert.False(t, UploadResult{Outcome: OutcomeFailure}.Succeeded())
	assert.False(t, UploadResult{}.Succeeded())
}
