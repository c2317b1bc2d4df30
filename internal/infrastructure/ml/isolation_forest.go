package ml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bibbank/invoice-anomaly/internal/domain/port"
	"github.com/bibbank/invoice-anomaly/internal/domain/service"
)

const (
	eulerGamma          = 0.5772156649015329
	instrumentationName = "github.com/bibbank/invoice-anomaly/internal/infrastructure/ml"
)

// IsolationForestConfig holds the forest hyperparameters.
type IsolationForestConfig struct {
	Trees      int
	SampleSize int
	Seed       uint64
}

// DefaultIsolationForestConfig returns the standard isolation forest settings.
func DefaultIsolationForestConfig() IsolationForestConfig {
	return IsolationForestConfig{
		Trees:      100,
		SampleSize: 256,
		Seed:       42,
	}
}

// IsolationForest implements port.OutlierDetector. Fitting is deterministic for a
// given configuration and input matrix.
type IsolationForest struct {
	cfg         IsolationForestConfig
	logger      *slog.Logger
	fitDuration metric.Float64Histogram
}

// NewIsolationForest creates a new isolation forest detector.
func NewIsolationForest(cfg IsolationForestConfig, logger *slog.Logger) (*IsolationForest, error) {
	if cfg.Trees < 1 {
		return nil, &service.ConfigurationError{Field: "ml_trees", Reason: fmt.Sprintf("must be at least 1, got %d", cfg.Trees)}
	}
	if cfg.SampleSize < 2 {
		return nil, &service.ConfigurationError{Field: "ml_sample_size", Reason: fmt.Sprintf("must be at least 2, got %d", cfg.SampleSize)}
	}
	if logger == nil {
		logger = slog.Default()
	}

	fitDuration, err := otel.Meter(instrumentationName).Float64Histogram(
		"anomaly.ml.fit.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent growing an isolation forest."),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fit duration histogram: %w", err)
	}

	return &IsolationForest{cfg: cfg, logger: logger, fitDuration: fitDuration}, nil
}

// Fit grows the forest on data. The context is checked between trees; a deadline
// reached mid-fit is reported as service.ErrModelBudgetExceeded.
func (f *IsolationForest) Fit(ctx context.Context, data [][]float64) (port.OutlierModel, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("isolation forest needs at least 2 samples, got %d", len(data))
	}
	width := len(data[0])
	for i, row := range data {
		if len(row) != width {
			return nil, fmt.Errorf("sample %d has %d features, want %d", i, len(row), width)
		}
	}

	start := time.Now()
	psi := min(f.cfg.SampleSize, len(data))
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))
	rng := rand.New(rand.NewPCG(f.cfg.Seed, f.cfg.Seed^0x9e3779b97f4a7c15))

	indices := make([]int, len(data))
	for i := range indices {
		indices[i] = i
	}

	trees := make([]*isolationNode, 0, f.cfg.Trees)
	for t := 0; t < f.cfg.Trees; t++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: stopped after %d of %d trees", service.ErrModelBudgetExceeded, t, f.cfg.Trees)
			}
			return nil, fmt.Errorf("fitting isolation forest: %w", err)
		}

		// Partial Fisher-Yates: the first psi entries become the subsample.
		for i := 0; i < psi; i++ {
			j := i + rng.IntN(len(indices)-i)
			indices[i], indices[j] = indices[j], indices[i]
		}
		sample := make([][]float64, psi)
		for i := 0; i < psi; i++ {
			sample[i] = data[indices[i]]
		}

		trees = append(trees, growTree(sample, 0, maxDepth, width, rng))
	}

	f.fitDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.Int("samples", len(data))),
	)
	f.logger.Debug("isolation forest fitted",
		slog.Int("samples", len(data)),
		slog.Int("trees", len(trees)),
		slog.Int("subsample", psi),
	)

	return &isolationForestModel{
		trees:   trees,
		cPsi:    averagePathLength(psi),
		version: fmt.Sprintf("iforest-t%d-s%d-seed%d", f.cfg.Trees, f.cfg.SampleSize, f.cfg.Seed),
	}, nil
}

type isolationNode struct {
	left, right *isolationNode
	feature     int
	split       float64
	// size is the number of training samples that reached a leaf.
	size int
}

func growTree(sample [][]float64, depth, maxDepth, width int, rng *rand.Rand) *isolationNode {
	if depth >= maxDepth || len(sample) <= 1 {
		return &isolationNode{size: len(sample)}
	}

	// Only features that still vary can split the node.
	candidates := make([]int, 0, width)
	lows := make([]float64, width)
	highs := make([]float64, width)
	for j := 0; j < width; j++ {
		lo, hi := sample[0][j], sample[0][j]
		for _, row := range sample[1:] {
			lo = math.Min(lo, row[j])
			hi = math.Max(hi, row[j])
		}
		lows[j], highs[j] = lo, hi
		if hi > lo {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return &isolationNode{size: len(sample)}
	}

	feature := candidates[rng.IntN(len(candidates))]
	split := lows[feature] + rng.Float64()*(highs[feature]-lows[feature])

	var left, right [][]float64
	for _, row := range sample {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &isolationNode{
		feature: feature,
		split:   split,
		left:    growTree(left, depth+1, maxDepth, width, rng),
		right:   growTree(right, depth+1, maxDepth, width, rng),
	}
}

type isolationForestModel struct {
	trees   []*isolationNode
	version string
	cPsi    float64
}

// Score returns 2^(-E[h(x)]/c(psi)): close to 1 for points isolated quickly, around
// 0.5 or below for ordinary points.
func (m *isolationForestModel) Score(sample []float64) float64 {
	if m.cPsi == 0 || len(m.trees) == 0 {
		return 0.5
	}
	total := 0.0
	for _, t := range m.trees {
		total += pathLength(t, sample, 0)
	}
	mean := total / float64(len(m.trees))
	return math.Pow(2, -mean/m.cPsi)
}

func (m *isolationForestModel) Version() string {
	return m.version
}

func pathLength(n *isolationNode, sample []float64, depth int) float64 {
	for n.left != nil {
		if sample[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.size)
}

// averagePathLength is c(n), the mean path length of an unsuccessful search in a
// binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		harmonic := math.Log(fn-1) + eulerGamma
		return 2*harmonic - 2*(fn-1)/fn
	}
}
