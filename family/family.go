// Package family implements gene families and gene-family table
// input/output.
package family

import (
	"fmt"
	"sort"

	"github.com/op/go-logging"
)

// log is the global logging variable.
var log = logging.MustGetLogger("family")

// Family is a gene family: a size per taxon.
type Family struct {
	ID     string
	Desc   string
	counts map[string]int
	// order preserves the column order of the input table
	order []string
}

// NewFamily creates an empty family.
func NewFamily(id, desc string) *Family {
	return &Family{
		ID:     id,
		Desc:   desc,
		counts: make(map[string]int),
	}
}

// SetCount sets the family size for a taxon.
func (f *Family) SetCount(taxon string, count int) {
	if _, ok := f.counts[taxon]; !ok {
		f.order = append(f.order, taxon)
	}
	f.counts[taxon] = count
}

// Count returns the family size for a taxon.
func (f *Family) Count(taxon string) (int, error) {
	c, ok := f.counts[taxon]
	if !ok {
		return 0, fmt.Errorf("family %s: no size for taxon %s", f.ID, taxon)
	}
	return c, nil
}

// HasTaxon reports whether the family has a size for a taxon.
func (f *Family) HasTaxon(taxon string) bool {
	_, ok := f.counts[taxon]
	return ok
}

// Taxa returns taxa in input order.
func (f *Family) Taxa() []string {
	return f.order
}

// MaxSize returns the largest size across taxa.
func (f *Family) MaxSize() (m int) {
	for _, c := range f.counts {
		if c > m {
			m = c
		}
	}
	return
}

// SizeDifferential returns the difference between the largest and the
// smallest size across taxa.
func (f *Family) SizeDifferential() int {
	first := true
	min, max := 0, 0
	for _, c := range f.counts {
		if first {
			min, max = c, c
			first = false
			continue
		}
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	return max - min
}

// MaxObserved returns the largest size across all families.
func MaxObserved(fams []*Family) (m int) {
	for _, f := range fams {
		if s := f.MaxSize(); s > m {
			m = s
		}
	}
	return
}

// Bounds returns the derived family size bound and root size bound
// for a set of families.
func Bounds(fams []*Family) (maxFamilySize, maxRootSize int) {
	m := MaxObserved(fams)
	extra := 50
	if m/5 > extra {
		extra = m / 5
	}
	maxFamilySize = m + extra
	maxRootSize = int(float64(m)*1.25 + 0.5)
	if maxRootSize < 30 {
		maxRootSize = 30
	}
	return
}

// ValidateCoverage checks that every family has a size for every
// given taxon.
func ValidateCoverage(fams []*Family, taxa []string) error {
	for _, f := range fams {
		for _, taxon := range taxa {
			if !f.HasTaxon(taxon) {
				return fmt.Errorf("family %s: no size for taxon %s", f.ID, taxon)
			}
		}
	}
	return nil
}

// LargestDifferentials returns up to n families sorted by decreasing
// size differential. Used for optimizer failure diagnostics.
func LargestDifferentials(fams []*Family, n int) []*Family {
	sorted := make([]*Family, len(fams))
	copy(sorted, fams)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SizeDifferential() > sorted[j].SizeDifferential()
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
