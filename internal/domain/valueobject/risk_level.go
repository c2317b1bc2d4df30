package valueobject

import "fmt"

// RiskLevel is an immutable value object representing the risk classification of an invoice.
type RiskLevel struct {
	value string
}

var (
	RiskLevelLow    = RiskLevel{value: "LOW"}
	RiskLevelMedium = RiskLevel{value: "MEDIUM"}
	RiskLevelHigh   = RiskLevel{value: "HIGH"}
)

// RiskLevelFromString reconstructs a RiskLevel from its string representation.
func RiskLevelFromString(s string) (RiskLevel, error) {
	switch s {
	case "LOW":
		return RiskLevelLow, nil
	case "MEDIUM":
		return RiskLevelMedium, nil
	case "HIGH":
		return RiskLevelHigh, nil
	default:
		return RiskLevel{}, fmt.Errorf("invalid risk level: %s", s)
	}
}

// RiskThresholds holds the lower bounds (inclusive) of the MEDIUM and HIGH buckets.
type RiskThresholds struct {
	Medium float64 `yaml:"medium"`
	High   float64 `yaml:"high"`
}

// DefaultRiskThresholds returns MEDIUM >= 0.4 and HIGH >= 0.75.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{Medium: 0.4, High: 0.75}
}

// Validate checks that both thresholds lie in [0,1] and MEDIUM does not exceed HIGH.
func (t RiskThresholds) Validate() error {
	if t.Medium < 0 || t.Medium > 1 {
		return fmt.Errorf("medium threshold must be within [0,1], got %v", t.Medium)
	}
	if t.High < 0 || t.High > 1 {
		return fmt.Errorf("high threshold must be within [0,1], got %v", t.High)
	}
	if t.Medium > t.High {
		return fmt.Errorf("medium threshold %v exceeds high threshold %v", t.Medium, t.High)
	}
	return nil
}

// RiskLevelFromScore derives the RiskLevel for an aggregated score in [0,1].
// Boundaries are inclusive: a score equal to a threshold lands in the higher bucket.
func RiskLevelFromScore(score float64, t RiskThresholds) RiskLevel {
	switch {
	case score >= t.High:
		return RiskLevelHigh
	case score >= t.Medium:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// String returns the string representation.
func (r RiskLevel) String() string {
	return r.value
}

// IsZero returns true if the RiskLevel has not been set.
func (r RiskLevel) IsZero() bool {
	return r.value == ""
}

// Equal checks equality with another RiskLevel.
func (r RiskLevel) Equal(other RiskLevel) bool {
	return r.value == other.value
}

// MarshalText implements encoding.TextMarshaler so verdicts serialize as "LOW"/"MEDIUM"/"HIGH".
func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RiskLevel) UnmarshalText(text []byte) error {
	level, err := RiskLevelFromString(string(text))
	if err != nil {
		return err
	}
	*r = level
	return nil
}
