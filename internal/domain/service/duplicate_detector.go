package service

import (
	"fmt"
	"strconv"

	"github.com/bibbank/invoice-anomaly/internal/domain/model"
	"github.com/bibbank/invoice-anomaly/internal/domain/valueobject"
)

const duplicateSignalValue = 0.9

// DuplicateDetector groups invoices by content fingerprint.
type DuplicateDetector struct {
	window    valueobject.DuplicateWindow
	precision int32
}

// NewDuplicateDetector creates a detector for the given date window and currency precision.
func NewDuplicateDetector(window valueobject.DuplicateWindow, precision int32) *DuplicateDetector {
	return &DuplicateDetector{window: window, precision: precision}
}

// Fingerprint returns the grouping key of a record, or ok=false when the record lacks
// the vendor or amount needed to compare it with others.
func (d *DuplicateDetector) Fingerprint(r model.InvoiceRecord) (string, bool) {
	vendor := r.Vendor()
	if vendor == "" || r.Amount == nil {
		return "", false
	}
	amount := r.Amount.Round(d.precision).StringFixed(d.precision)
	return vendor + "|" + amount + "|" + d.window.Bucket(r.InvoiceDate), true
}

// Detect partitions the batch into duplicate groups, ordered by the first member's
// position, and returns the duplicate signal of every record (nil for singletons).
func (d *DuplicateDetector) Detect(records []model.InvoiceRecord) ([]model.DuplicateGroup, [][]model.SignalScore) {
	groups := make([]model.DuplicateGroup, 0, len(records))
	byFingerprint := make(map[string]int)

	for i, r := range records {
		fp, ok := d.Fingerprint(r)
		if !ok {
			groups = append(groups, model.DuplicateGroup{
				Fingerprint: "unique:" + strconv.Itoa(i),
				InvoiceIDs:  []string{r.ID},
				Indices:     []int{i},
			})
			continue
		}
		if gi, seen := byFingerprint[fp]; seen {
			groups[gi].InvoiceIDs = append(groups[gi].InvoiceIDs, r.ID)
			groups[gi].Indices = append(groups[gi].Indices, i)
			continue
		}
		byFingerprint[fp] = len(groups)
		groups = append(groups, model.DuplicateGroup{
			Fingerprint: fp,
			InvoiceIDs:  []string{r.ID},
			Indices:     []int{i},
		})
	}

	signals := make([][]model.SignalScore, len(records))
	for _, g := range groups {
		if !g.IsDuplicate() {
			continue
		}
		others := len(g.Indices) - 1
		for _, idx := range g.Indices {
			signals[idx] = []model.SignalScore{{
				Source: valueobject.SourceDuplicate,
				Code:   model.CodePotentialDuplicate,
				Value:  duplicateSignalValue,
				Reason: fmt.Sprintf("duplicate of %d other invoice(s)", others),
			}}
		}
	}

	return groups, signals
}
