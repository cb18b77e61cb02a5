package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	got := Summarize(map[string][]float64{
		"outburst": {0.9},
		"crack":    {0.2, 0.4, 0.6},
		"empty":    {},
	})

	require.Len(t, got, 2)

	crack := got[0]
	assert.Equal(t, "crack", crack.DetectionType)
	assert.Equal(t, 3, crack.Count)
	assert.InDelta(t, 0.4, crack.Mean, 1e-12)
	assert.InDelta(t, 0.2, crack.StdDev, 1e-12)
	assert.Equal(t, 0.2, crack.Min)
	assert.Equal(t, 0.6, crack.Max)

	outburst := got[1]
	assert.Equal(t, "outburst", outburst.DetectionType)
	assert.Equal(t, 1, outburst.Count)
	assert.Equal(t, 0.9, outburst.Mean)
	assert.Zero(t, outburst.StdDev)
}

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
