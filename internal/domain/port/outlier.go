package port

import "context"

// OutlierDetector fits an unsupervised outlier model on a feature matrix.
// Each row of data is one sample; all rows have the same width.
type OutlierDetector interface {
	Fit(ctx context.Context, data [][]float64) (OutlierModel, error)
}

// OutlierModel is a fitted model. Score returns the raw anomaly score of one sample,
// where 0.5 means "no distinct anomaly" and values approaching 1 mean isolated points.
type OutlierModel interface {
	Score(sample []float64) float64
	Version() string
}
