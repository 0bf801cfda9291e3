package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		pct    float64
		filled int
	}{
		{0, 0},
		{50, 10},
		{98, 19},
		{100, 20},
		{250, 20},
		{-5, 0},
	}
	for _, tt := range tests {
		bar := ProgressBar(tt.pct)
		assert.Equal(t, tt.filled, strings.Count(bar, "█"), "pct %v", tt.pct)
		assert.Equal(t, progressWidth-tt.filled, strings.Count(bar, "░"), "pct %v", tt.pct)
	}
}

func TestFormatting(t *testing.T) {
	assert.Contains(t, Percent(72.4), "72.4%")
	assert.Contains(t, LabelValue("Streak", 7), "7")
	assert.Contains(t, Tags(nil, Good), "none")
	assert.Contains(t, Tags([]string{"long_streak", "habit_formed"}, Good), "habit_formed")
	assert.Contains(t, TierBadge("Ruby", "#EF4444"), "Ruby")
	assert.Contains(t, Momentum("decreasing"), "decreasing")
}
