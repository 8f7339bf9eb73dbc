package ward

import (
	"context"
	"testing"
	"time"

	"github.com/nir/leitos/internal/platform/clock"
)

var brt = time.FixedZone("BRT", -3*60*60)

var testNow = time.Date(2024, 3, 10, 14, 0, 0, 0, brt)

// seedWard loads three patients, eight beds and three active admissions
// (a1 in b1, a2 in b4, a3 in b6).
func seedWard(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	patients := []*Patient{
		{ID: "p1", InternalID: "00129384", Name: "Maria Silva Oliveira", CPF: "123.456.789-00", SUSCard: "700000000000001",
			BirthDate: time.Date(1980, 5, 15, 0, 0, 0, 0, time.UTC), Sex: SexFemale, MotherName: "Ana Silva", EditedBy: "Admin"},
		{ID: "p2", InternalID: "00129385", Name: "João Santos Souza", CPF: "222.333.444-55", SUSCard: "700000000000002",
			BirthDate: time.Date(1965, 8, 20, 0, 0, 0, 0, time.UTC), Sex: SexMale, MotherName: "Maria Santos"},
		{ID: "p3", InternalID: "00129386", Name: "Francisca Ferreira", Sex: SexFemale},
	}
	beds := []*Bed{
		{ID: "b1", Number: "101", Type: "Clínico", Sector: SectorInternacao},
		{ID: "b2", Number: "102", Type: "Clínico", Sector: SectorInternacao},
		{ID: "b3", Number: "103", Type: "Clínico", Sector: SectorInternacao, Status: BedManutencao},
		{ID: "b4", Number: "201", Type: "Isolamento (TB)", Sector: SectorInternacao},
		{ID: "b5", Number: "202", Type: "Isolamento (TB)", Sector: SectorInternacao},
		{ID: "b6", Number: "OBS-01", Type: "Observação", Sector: SectorEmergencia},
		{ID: "b7", Number: "OBS-02", Type: "Observação", Sector: SectorEmergencia},
		{ID: "b8", Number: "EST-01", Type: "Estabilização", Sector: SectorEmergencia},
	}
	admissions := []*Admission{
		{ID: "a1", PatientID: "p1", BedID: "b1", EntryDate: testNow.Add(-48 * time.Hour), Origin: "UPA",
			RiskLevel: RiskAmarelo, Isolation: IsolationNenhum, Diagnosis: "Pneumonia adquirida na comunidade", CreatedBy: "Admin"},
		{ID: "a2", PatientID: "p2", BedID: "b4", EntryDate: testNow.Add(-5 * 24 * time.Hour), Origin: "Transferência",
			RiskLevel: RiskVermelho, Isolation: IsolationAerossol, Diagnosis: "Tuberculose Pulmonar", CreatedBy: "Admin"},
		{ID: "a3", PatientID: "p3", BedID: "b6", EntryDate: testNow.Add(-4 * time.Hour),
			RiskLevel: RiskVerde, CreatedBy: "Dr. Plantonista"},
	}

	err := repo.WithTx(ctx, func(ctx context.Context) error {
		for _, p := range patients {
			if err := repo.CreatePatient(ctx, p); err != nil {
				return err
			}
		}
		for _, b := range beds {
			if err := repo.CreateBed(ctx, b); err != nil {
				return err
			}
		}
		for _, a := range admissions {
			if err := repo.CreateAdmission(ctx, a); err != nil {
				return err
			}
			b, err := repo.GetBed(ctx, a.BedID)
			if err != nil {
				return err
			}
			p, err := repo.GetPatient(ctx, a.PatientID)
			if err != nil {
				return err
			}
			b.Status = BedOcupado
			b.CurrentAdmissionID = strPtr(a.ID)
			b.CurrentPatientName = strPtr(p.Name)
			if err := repo.SaveBed(ctx, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed ward: %v", err)
	}
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *clock.FixedClock) {
	t.Helper()
	repo := NewMemoryStore()
	seedWard(t, repo)
	clk := fixedTestClock()
	return NewService(repo, clk), repo, clk
}

func fixedTestClock() *clock.FixedClock { return clock.Fixed(testNow) }
