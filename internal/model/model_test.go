package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		name    string
		in      float64
		want    float64
		clamped bool
	}{
		{"in range", 0.75, 0.75, false},
		{"lower bound", 0, 0, false},
		{"upper bound", 1, 1, false},
		{"above one", 1.5, 1, true},
		{"negative", -0.3, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clamped := ClampConfidence(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.clamped, clamped)
		})
	}
}

func TestValidStage(t *testing.T) {
	for _, s := range []Stage{
		StageProspecting, StageQualification, StageProposal,
		StageNegotiation, StageClosedWon, StageClosedLost,
	} {
		assert.True(t, ValidStage(s), "stage %s", s)
	}

	assert.False(t, ValidStage("discovery"))
	assert.False(t, ValidStage(""))
}

func TestProvenanceTotalTokens(t *testing.T) {
	p := Provenance{InputTokens: 120, OutputTokens: 30}
	assert.Equal(t, 150, p.TotalTokens())
	assert.Equal(t, 0, Provenance{}.TotalTokens())
}
