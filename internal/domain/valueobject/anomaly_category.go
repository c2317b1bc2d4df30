package valueobject

// AnomalyCategory is the primary kind of anomaly reported on a verdict,
// derived from its highest-valued signal.
type AnomalyCategory string

const (
	CategoryNone           AnomalyCategory = "NONE"
	CategoryDuplicate      AnomalyCategory = "DUPLICATE"
	CategoryExtremeAmount  AnomalyCategory = "EXTREME_AMOUNT"
	CategoryDataQuality    AnomalyCategory = "DATA_QUALITY"
	CategoryTemporal       AnomalyCategory = "TEMPORAL"
	CategoryVendorBehavior AnomalyCategory = "VENDOR_BEHAVIOR"
	CategoryStatistical    AnomalyCategory = "STATISTICAL"
	CategoryMLOutlier      AnomalyCategory = "ML_OUTLIER"
)

func (c AnomalyCategory) String() string {
	return string(c)
}
