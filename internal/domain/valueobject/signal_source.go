package valueobject

import "fmt"

// SignalSource identifies which scorer produced a signal.
type SignalSource string

const (
	SourceStatistical  SignalSource = "statistical"
	SourceDuplicate    SignalSource = "duplicate"
	SourceML           SignalSource = "ml"
	SourceBusinessRule SignalSource = "business_rule"
)

// AllSignalSources returns the sources in their canonical order, deterministic sources
// first. The order breaks ties wherever signals from several sources are sorted, so an
// equally strong rule hit is reported ahead of a statistical or ML signal.
func AllSignalSources() []SignalSource {
	return []SignalSource{SourceBusinessRule, SourceDuplicate, SourceStatistical, SourceML}
}

// ParseSignalSource validates a source name.
func ParseSignalSource(s string) (SignalSource, error) {
	for _, src := range AllSignalSources() {
		if string(src) == s {
			return src, nil
		}
	}
	return "", fmt.Errorf("invalid signal source: %q", s)
}

// Rank returns the canonical position of the source, or len(AllSignalSources()) if unknown.
func (s SignalSource) Rank() int {
	for i, src := range AllSignalSources() {
		if src == s {
			return i
		}
	}
	return len(AllSignalSources())
}

func (s SignalSource) String() string {
	return string(s)
}
