// Package occupancy derives bed occupancy read models from a ward snapshot.
// Everything here except Service is a pure function of its inputs.
package occupancy

import (
	"math"
	"time"

	"github.com/nir/leitos/internal/domain/ward"
	"github.com/nir/leitos/internal/platform/clock"
)

// CategoryStat is the per-category aggregate shown on the bed map chart.
type CategoryStat struct {
	Total    int    `json:"total"`
	Occupied int    `json:"occupied"`
	Color    string `json:"cor"`
}

// CategoryTotals is keyed by category; every category is always present.
type CategoryTotals map[ward.Category]CategoryStat

// Sum returns the totals across all categories.
func (t CategoryTotals) Sum() (total, occupied int) {
	for _, s := range t {
		total += s.Total
		occupied += s.Occupied
	}
	return total, occupied
}

// OccupiedBed is one row of the occupied-bed table.
type OccupiedBed struct {
	AdmissionID string `json:"admissao_id"`
	Bed         string `json:"leito"`
	Type        string `json:"tipo"`
	Slug        string `json:"tipo_slug"`
	Patient     string `json:"paciente"`
	Entry       string `json:"entrada"`
	Permanence  string `json:"permanencia"`
}

const placeholder = "-"

// CountByCategory counts every bed into exactly one category. Beds without a
// known category fall back to ClassifyBedType.
func CountByCategory(beds []*ward.Bed) CategoryTotals {
	totals := make(CategoryTotals, len(ward.Categories))
	for _, c := range ward.Categories {
		totals[c] = CategoryStat{Color: c.Color()}
	}
	for _, b := range beds {
		c := b.ResolvedCategory()
		s := totals[c]
		s.Total++
		if b.Occupied() {
			s.Occupied++
		}
		totals[c] = s
	}
	return totals
}

// OccupiedRows builds one row per Ocupado bed, in bed order. A bed whose
// admission cannot be resolved still gets a row with placeholder times.
func OccupiedRows(snap *ward.Snapshot, now time.Time, loc *time.Location) []OccupiedBed {
	rows := []OccupiedBed{}
	for _, b := range snap.Beds {
		if !b.Occupied() {
			continue
		}
		row := OccupiedBed{
			Bed:        b.Label(),
			Type:       b.Type,
			Slug:       b.ResolvedCategory().Slug(),
			Patient:    snap.DisplayName(b),
			Entry:      placeholder,
			Permanence: placeholder,
		}
		if b.CurrentAdmissionID != nil {
			if a := snap.Admission(*b.CurrentAdmissionID); a != nil {
				row.AdmissionID = a.ID
				row.Entry = clock.EntryStamp(a.EntryDate, loc)
				row.Permanence = clock.Permanence(a.EntryDate, now)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// OccupancyRate is round(100 * occupied / total), 0 for an empty ward.
func OccupancyRate(occupied, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(occupied) / float64(total)))
}
