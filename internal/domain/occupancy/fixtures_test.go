package occupancy

import (
	"context"
	"time"

	"github.com/nir/leitos/internal/domain/ward"
)

var brt = time.FixedZone("BRT", -3*60*60)

var testNow = time.Date(2024, 3, 10, 14, 0, 0, 0, brt)

func sp(s string) *string { return &s }

func occupy(b *ward.Bed, admissionID, name string) *ward.Bed {
	b.Status = ward.BedOcupado
	b.CurrentAdmissionID = sp(admissionID)
	b.CurrentPatientName = sp(name)
	return b
}

// testSnapshot is the demo ward: eight beds, three occupied, plus one
// admission discharged earlier today from bed 102.
func testSnapshot() *ward.Snapshot {
	patients := []*ward.Patient{
		{ID: "p1", Name: "Maria Silva Oliveira"},
		{ID: "p2", Name: "João Santos Souza"},
		{ID: "p3", Name: "Francisca Ferreira"},
		{ID: "p4", Name: "Pedro Lima"},
	}
	beds := []*ward.Bed{
		occupy(&ward.Bed{ID: "b1", Number: "101", Type: "Clínico", Category: ward.CategoryClinico}, "a1", "Maria Silva Oliveira"),
		{ID: "b2", Number: "102", Type: "Clínico", Category: ward.CategoryClinico, Status: ward.BedHigienizacao},
		{ID: "b3", Number: "103", Type: "Clínico", Category: ward.CategoryClinico, Status: ward.BedManutencao},
		occupy(&ward.Bed{ID: "b4", Number: "201", Type: "Isolamento (TB)", Category: ward.CategoryIsolamento}, "a2", "João Santos Souza"),
		{ID: "b5", Number: "202", Type: "Isolamento (TB)", Category: ward.CategoryIsolamento, Status: ward.BedLivre},
		occupy(&ward.Bed{ID: "b6", Number: "OBS-01", Type: "Observação", Category: ward.CategoryObservacao}, "a3", "Francisca Ferreira"),
		{ID: "b7", Number: "OBS-02", Type: "Observação", Category: ward.CategoryObservacao, Status: ward.BedLivre},
		{ID: "b8", Number: "EST-01", Type: "Estabilização", Category: ward.CategoryEstabilizacao, Status: ward.BedLivre},
	}
	discharged := testNow.Add(-2 * time.Hour)
	admissions := []*ward.Admission{
		{ID: "a1", PatientID: "p1", BedID: "b1", EntryDate: testNow.Add(-48 * time.Hour), Status: ward.StatusInternado},
		{ID: "a2", PatientID: "p2", BedID: "b4", EntryDate: testNow.Add(-5 * 24 * time.Hour), Status: ward.StatusInternado},
		{ID: "a3", PatientID: "p3", BedID: "b6", EntryDate: testNow.Add(-4 * time.Hour), Status: ward.StatusInternado},
		{ID: "a4", PatientID: "p4", BedID: "b2", EntryDate: testNow.Add(-6 * time.Hour), Status: ward.StatusAlta, DischargeDate: &discharged},
	}
	return ward.NewSnapshot(patients, beds, admissions)
}

type fakeSource struct {
	snap  *ward.Snapshot
	err   error
	calls int
}

func (f *fakeSource) Snapshot(context.Context) (*ward.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

type fakeRecorder struct {
	totals map[string][2]int
	rate   int
	sets   int
}

func (r *fakeRecorder) ObserveCategory(category string, total, occupied int) {
	if r.totals == nil {
		r.totals = map[string][2]int{}
	}
	r.totals[category] = [2]int{total, occupied}
}

func (r *fakeRecorder) SetOccupancyRate(rate int) {
	r.rate = rate
	r.sets++
}
