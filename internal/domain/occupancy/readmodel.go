package occupancy

import (
	"sort"
	"time"

	"github.com/nir/leitos/internal/domain/ward"
	"github.com/nir/leitos/internal/platform/clock"
)

// BedMap is the bed-map view.
type BedMap struct {
	Categories CategoryTotals `json:"graficos"`
	Table      []OccupiedBed  `json:"tabela"`
}

// WeeklyChart holds seven daily admission counts, oldest first.
type WeeklyChart struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

// RecentAdmission is one entry of the dashboard's latest-admissions list.
type RecentAdmission struct {
	Name string `json:"nome"`
	Bed  string `json:"leito"`
	Slug string `json:"slug"`
	Hour string `json:"hora"`
}

// Dashboard is the dashboard-summary view.
type Dashboard struct {
	Beds            CategoryTotals    `json:"leitos"`
	OccupancyRate   int               `json:"taxa_ocupacao"`
	AdmissionsToday int               `json:"admissoes_hoje"`
	Chart           WeeklyChart       `json:"grafico"`
	Recent          []RecentAdmission `json:"recentes"`
}

const (
	chartDays   = 7
	recentLimit = 4
)

func BuildBedMap(snap *ward.Snapshot, now time.Time, loc *time.Location) *BedMap {
	return &BedMap{
		Categories: CountByCategory(snap.Beds),
		Table:      OccupiedRows(snap, now, loc),
	}
}

func BuildDashboard(snap *ward.Snapshot, now time.Time, loc *time.Location) *Dashboard {
	totals := CountByCategory(snap.Beds)
	total, occupied := totals.Sum()
	return &Dashboard{
		Beds:            totals,
		OccupancyRate:   OccupancyRate(occupied, total),
		AdmissionsToday: AdmissionsOn(snap.Admissions, now, loc),
		Chart:           WeeklyFlow(snap.Admissions, now, loc),
		Recent:          RecentAdmissions(snap, loc),
	}
}

// AdmissionsOn counts admissions of any status whose entry falls on day's
// calendar date in loc.
func AdmissionsOn(admissions []*ward.Admission, day time.Time, loc *time.Location) int {
	n := 0
	for _, a := range admissions {
		if clock.SameDay(a.EntryDate, day, loc) {
			n++
		}
	}
	return n
}

// WeeklyFlow counts admissions per day for the seven days ending today.
func WeeklyFlow(admissions []*ward.Admission, now time.Time, loc *time.Location) WeeklyChart {
	today := clock.StartOfDay(now, loc)
	chart := WeeklyChart{
		Labels: make([]string, 0, chartDays),
		Data:   make([]int, 0, chartDays),
	}
	for i := chartDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		chart.Labels = append(chart.Labels, clock.DayLabel(day, loc))
		chart.Data = append(chart.Data, AdmissionsOn(admissions, day, loc))
	}
	return chart
}

// RecentAdmissions lists the latest active admissions, newest first. Equal
// entry times are ordered by admission id.
func RecentAdmissions(snap *ward.Snapshot, loc *time.Location) []RecentAdmission {
	var active []*ward.Admission
	for _, a := range snap.Admissions {
		if a.Status.Active() {
			active = append(active, a)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].EntryDate.Equal(active[j].EntryDate) {
			return active[i].EntryDate.After(active[j].EntryDate)
		}
		return active[i].ID < active[j].ID
	})
	if len(active) > recentLimit {
		active = active[:recentLimit]
	}

	beds := make(map[string]*ward.Bed, len(snap.Beds))
	for _, b := range snap.Beds {
		beds[b.ID] = b
	}
	out := make([]RecentAdmission, 0, len(active))
	for _, a := range active {
		r := RecentAdmission{
			Name: snap.AdmissionName(a),
			Bed:  placeholder,
			Slug: ward.CategoryClinico.Slug(),
			Hour: clock.HourMinute(a.EntryDate, loc),
		}
		if b, ok := beds[a.BedID]; ok {
			r.Bed = b.Label()
			r.Slug = b.ResolvedCategory().Slug()
		}
		out = append(out, r)
	}
	return out
}
