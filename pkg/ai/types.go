package ai

import "context"

// SeriesPoint is one labelled value of a chart series.
type SeriesPoint struct {
	Label string
	Value float64
}

// InsightInput carries the aggregated statistics a narrator describes.
type InsightInput struct {
	Scope   string
	Period  string
	Metrics map[string]float64
	Series  map[string][]SeriesPoint
	Notes   []string
}

// InsightResult is the narrative returned by a model.
type InsightResult struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	Model      string   `json:"-"`
}

// Narrator turns aggregated statistics into a short narrative for teachers.
type Narrator interface {
	Summarize(ctx context.Context, input InsightInput) (InsightResult, error)
}
