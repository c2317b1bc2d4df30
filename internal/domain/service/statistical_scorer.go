package service

import (
	"fmt"
	"math"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/valueobject"
)

const (
	// minVendorHistoryZ is the vendor group size from which z-scores use the vendor's
	// own distribution instead of the batch's.
	minVendorHistoryZ = 3
	// minGroupIQR is the group size from which IQR fences are computed, for a vendor
	// and for the whole batch alike.
	minGroupIQR = 4

	iqrFenceFactor  = 1.5
	iqrContribution = 0.6
	zScoreFloor     = 1.0
	zScoreSpan      = 3.0
	// Spreads are floored at 5% of the group centre (and one cent).
	minRelativeScale = 0.05
	minAbsoluteScale = 0.01

	reasonInsufficientHistory = "insufficient vendor history"
)

// StatisticalScorer scores each amount against the distribution of its vendor, or of
// the whole batch when the vendor has too little history. Fully deterministic.
type StatisticalScorer struct{}

// NewStatisticalScorer creates a new StatisticalScorer instance.
func NewStatisticalScorer() *StatisticalScorer {
	return &StatisticalScorer{}
}

// Score returns at most one statistical signal per record (records without an amount
// get none) and the zero-variance groups it had to neutralize.
func (s *StatisticalScorer) Score(records []model.InvoiceRecord, stats model.BatchStats) ([][]model.SignalScore, []model.StatisticsWarning) {
	out := make([][]model.SignalScore, len(records))
	var warnings []model.StatisticsWarning
	warnedVendor := make(map[string]bool)

	batchDegenerate := stats.Batch.Count > 0 && stats.Batch.StdDev == 0
	if batchDegenerate {
		warnings = append(warnings, model.StatisticsWarning{
			Scope:  "batch",
			Reason: "all invoice amounts in the batch are identical",
		})
	}

	for i, r := range records {
		if !r.HasAmount() {
			continue
		}
		if batchDegenerate {
			out[i] = []model.SignalScore{neutralSignal()}
			continue
		}

		amount := r.AmountFloat()
		vendor := r.Vendor()
		vendorStats, hasVendor := stats.VendorStats(vendor)

		zGroup, zScope := stats.Batch, "batch"
		if hasVendor && vendorStats.Count >= minVendorHistoryZ {
			zGroup, zScope = vendorStats, "vendor"
		}
		iqrGroup, iqrScope := stats.Batch, "batch"
		if hasVendor && vendorStats.Count >= minGroupIQR {
			iqrGroup, iqrScope = vendorStats, "vendor"
		}

		if zScope == "vendor" && zGroup.StdDev == 0 {
			if !warnedVendor[vendor] {
				warnedVendor[vendor] = true
				warnings = append(warnings, model.StatisticsWarning{
					Scope:  "vendor",
					Key:    vendor,
					Reason: "all invoice amounts for the vendor are identical",
				})
			}
		}

		z := zScore(amount, zGroup)
		zValue := clamp01((math.Abs(z) - zScoreFloor) / zScoreSpan)

		iqrValue := 0.0
		var low, high float64
		if iqrGroup.Count >= minGroupIQR {
			var outlier bool
			low, high, outlier = iqrOutlier(amount, iqrGroup)
			if outlier {
				iqrValue = iqrContribution
			}
		}

		if iqrValue > zValue {
			out[i] = []model.SignalScore{{
				Source: valueobject.SourceStatistical,
				Code:   model.CodeIQROutlier,
				Value:  iqrValue,
				Reason: fmt.Sprintf("amount outside %s IQR fence [%.2f, %.2f]", iqrScope, low, high),
			}}
			continue
		}

		direction := "above"
		if z < 0 {
			direction = "below"
		}
		out[i] = []model.SignalScore{{
			Source: valueobject.SourceStatistical,
			Code:   model.CodeZScoreDeviation,
			Value:  zValue,
			Reason: fmt.Sprintf("amount %.1fσ %s %s mean", math.Abs(z), direction, zScope),
		}}
	}

	return out, warnings
}

// zScore measures x against its group. Groups too small for a leave-one-out estimate
// (a batch of two) use the in-sample mean and deviation.
func zScore(x float64, g model.GroupStats) float64 {
	if g.Count < minVendorHistoryZ {
		return (x - g.Mean) / g.StdDev
	}
	return leaveOneOutZ(x, g)
}

// leaveOneOutZ compares x with the mean and sample deviation of the other group
// members, so a single extreme amount cannot inflate the deviation it is measured
// against. The spread is floored at 5% of the peer mean so a few near-identical peers
// do not turn ordinary price variation into extreme scores.
func leaveOneOutZ(x float64, g model.GroupStats) float64 {
	n := float64(g.Count)
	peers := n - 1
	m2 := g.StdDev * g.StdDev * n

	peerMean := (g.Sum - x) / peers
	peerM2 := m2 - (x-g.Mean)*(x-peerMean)
	if peerM2 < 0 {
		peerM2 = 0
	}
	peerStd := math.Sqrt(peerM2 / (peers - 1))

	scale := math.Max(peerStd, math.Max(minRelativeScale*math.Abs(peerMean), minAbsoluteScale))
	return (x - peerMean) / scale
}

// iqrOutlier returns the Tukey fences of the group and whether x lies outside them.
func iqrOutlier(x float64, g model.GroupStats) (float64, float64, bool) {
	q1 := quantile(g.Sorted, 0.25)
	q2 := quantile(g.Sorted, 0.5)
	q3 := quantile(g.Sorted, 0.75)

	spread := math.Max(q3-q1, math.Max(minRelativeScale*math.Abs(q2), minAbsoluteScale))
	low := q1 - iqrFenceFactor*spread
	high := q3 + iqrFenceFactor*spread
	return low, high, x < low || x > high
}

func neutralSignal() model.SignalScore {
	return model.SignalScore{
		Source: valueobject.SourceStatistical,
		Code:   model.CodeInsufficientHistory,
		Value:  0,
		Reason: reasonInsufficientHistory,
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
