package services

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TypeSummary describes the confidence distribution of one detection type.
type TypeSummary struct {
	DetectionType string  `json:"detectionType"`
	Count         int     `json:"count"`
	Mean          float64 `json:"mean"`
	StdDev        float64 `json:"stdDev"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
}

// Summarize reduces confidences grouped by type, sorted by type name. StdDev
// is the sample standard deviation and is zero for a single observation.
func Summarize(byType map[string][]float64) []TypeSummary {
	out := make([]TypeSummary, 0, len(byType))
	for typ, values := range byType {
		if len(values) == 0 {
			continue
		}
		mean, std := stat.MeanStdDev(values, nil)
		if len(values) == 1 {
			std = 0
		}
		out = append(out, TypeSummary{
			DetectionType: typ,
			Count:         len(values),
			Mean:          mean,
			StdDev:        std,
			Min:           floats.Min(values),
			Max:           floats.Max(values),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectionType < out[j].DetectionType })
	return out
}
