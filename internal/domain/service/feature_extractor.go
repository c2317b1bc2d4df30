package service

import (
	"math"
	"sort"
	"time"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
)

const hoursPerDay = 24

// FeatureExtractor turns invoice records into feature vectors and batch statistics.
// It is a pure function of the batch.
type FeatureExtractor struct{}

// NewFeatureExtractor creates a new FeatureExtractor instance.
func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{}
}

// Extract computes one FeatureVector per record, in input order, plus the batch-level
// statistics shared by the scorers. Only an empty batch is an error; a single-record
// batch yields zero standard deviations and undefined deviation features.
func (e *FeatureExtractor) Extract(records []model.InvoiceRecord) ([]model.FeatureVector, model.BatchStats, error) {
	if len(records) == 0 {
		return nil, model.BatchStats{}, &InsufficientDataError{Reason: "batch contains no invoices"}
	}

	stats := computeBatchStats(records)

	vendorCounts := make(map[string]int)
	for _, r := range records {
		if v := r.Vendor(); v != "" {
			vendorCounts[v]++
		}
	}

	vectors := make([]model.FeatureVector, len(records))
	for i, r := range records {
		var fv model.FeatureVector
		amount := r.AmountFloat()

		fv.Values[model.FeatureAmount] = amount
		fv.Values[model.FeatureLogAmount] = signedLog1p(amount)
		if !r.InvoiceDate.IsZero() {
			fv.Values[model.FeatureDayOfMonth] = float64(r.InvoiceDate.Day())
		}
		if r.DueDate != nil && !r.InvoiceDate.IsZero() {
			fv.Values[model.FeatureDaysToDue] = daysBetween(r.InvoiceDate, *r.DueDate)
		}

		vendor := r.Vendor()
		if vendor != "" {
			fv.Values[model.FeatureVendorFrequency] = float64(vendorCounts[vendor]) / float64(len(records))
		}
		if g, ok := stats.VendorStats(vendor); ok && r.HasAmount() && g.Count > 1 && g.StdDev > 0 {
			fv.Values[model.FeatureVendorDeviation] = (amount - g.Mean) / g.StdDev
			fv.DeviationDefined = true
		}

		vectors[i] = fv
	}

	return vectors, stats, nil
}

func computeBatchStats(records []model.InvoiceRecord) model.BatchStats {
	all := make([]float64, 0, len(records))
	byVendor := make(map[string][]float64)

	for _, r := range records {
		if !r.HasAmount() {
			continue
		}
		amount := r.AmountFloat()
		all = append(all, amount)
		if v := r.Vendor(); v != "" {
			byVendor[v] = append(byVendor[v], amount)
		}
	}

	vendors := make(map[string]model.GroupStats, len(byVendor))
	for v, amounts := range byVendor {
		vendors[v] = newGroupStats(amounts)
	}

	return model.BatchStats{
		Size:    len(records),
		Batch:   newGroupStats(all),
		Vendors: vendors,
	}
}

// newGroupStats computes count, mean and population standard deviation. Values are
// summed in sorted order so the result does not depend on record order.
func newGroupStats(values []float64) model.GroupStats {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	g := model.GroupStats{Sorted: sorted, Count: len(sorted)}
	if g.Count == 0 {
		return g
	}

	for _, v := range sorted {
		g.Sum += v
	}
	g.Mean = g.Sum / float64(g.Count)

	var m2 float64
	for _, v := range sorted {
		d := v - g.Mean
		m2 += d * d
	}
	g.StdDev = math.Sqrt(m2 / float64(g.Count))
	return g
}

// quantile uses linear interpolation between closest ranks on sorted data.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

func signedLog1p(x float64) float64 {
	if x < 0 {
		return -math.Log1p(-x)
	}
	return math.Log1p(x)
}

func daysBetween(from, to time.Time) float64 {
	f := truncateDay(from)
	t := truncateDay(to)
	return math.Round(t.Sub(f).Hours() / hoursPerDay)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
