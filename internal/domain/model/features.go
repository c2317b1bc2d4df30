package model

// Feature indices inside FeatureVector.Values.
const (
	FeatureAmount = iota
	FeatureLogAmount
	FeatureDayOfMonth
	FeatureDaysToDue
	FeatureVendorFrequency
	FeatureVendorDeviation

	FeatureCount
)

// FeatureNames lists the feature names in index order.
var FeatureNames = [FeatureCount]string{
	"amount",
	"amount_log",
	"day_of_month",
	"days_to_due",
	"vendor_frequency",
	"vendor_deviation",
}

// FeatureVector is the numeric representation of one invoice. It is a value type:
// copies handed to scorers cannot affect the extractor's output.
type FeatureVector struct {
	Values [FeatureCount]float64
	// DeviationDefined is false when the vendor standard deviation is zero or
	// undefined, in which case Values[FeatureVendorDeviation] is 0.
	DeviationDefined bool
}

// Slice returns a copy of the values as a slice, the shape expected by outlier models.
func (f FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, f.Values[:])
	return out
}

// GroupStats summarizes the present amounts of a group of invoices.
type GroupStats struct {
	// Sorted holds the group's amounts in ascending order.
	Sorted []float64
	Count  int
	Sum    float64
	Mean   float64
	StdDev float64
}

// BatchStats are computed once per batch and shared read-only with every scorer.
type BatchStats struct {
	Vendors map[string]GroupStats
	Batch   GroupStats
	// Size is the number of records, including those without an amount.
	Size int
}

// VendorStats returns the statistics for a normalized vendor name.
func (s BatchStats) VendorStats(vendor string) (GroupStats, bool) {
	g, ok := s.Vendors[vendor]
	return g, ok
}
