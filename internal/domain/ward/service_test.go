package ward

import (
	"context"
	"errors"
	"testing"
	"time"
)

func dischargeA1() DischargeInput {
	return DischargeInput{
		AdmissionID: "a1",
		BedID:       "b1",
		PatientID:   "p1",
		Type:        "Alta",
		EventTime:   "10/03/2024 13:30",
		Notes:       "Alta melhorada",
	}
}

func TestDischargePatient(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	var got []Change
	svc.OnChange(func(_ context.Context, c Change) { got = append(got, c) })

	adm, err := svc.DischargePatient(ctx, dischargeA1())
	if err != nil {
		t.Fatalf("discharge: %v", err)
	}
	if adm.Status != StatusAlta {
		t.Errorf("status = %s", adm.Status)
	}

	want := time.Date(2024, 3, 10, 13, 30, 0, 0, brt)
	stored, _ := repo.GetAdmission(ctx, "a1")
	if stored.Status != StatusAlta || stored.DischargeDate == nil || !stored.DischargeDate.Equal(want) {
		t.Errorf("admission not closed: %+v", stored)
	}
	if strPtrVal(stored.DischargeDestination) != "Alta" || strPtrVal(stored.DischargeNotes) != "Alta melhorada" {
		t.Errorf("discharge metadata = %v / %v", strPtrVal(stored.DischargeDestination), strPtrVal(stored.DischargeNotes))
	}

	bed, _ := repo.GetBed(ctx, "b1")
	if bed.Status != BedLivre || bed.CurrentAdmissionID != nil || bed.CurrentPatientName != nil {
		t.Errorf("bed not released: %+v", bed)
	}

	p, _ := repo.GetPatient(ctx, "p1")
	if p.LastDischargeDate == nil || !p.LastDischargeDate.Equal(want) {
		t.Errorf("last discharge = %v", p.LastDischargeDate)
	}

	snap, _ := repo.Snapshot(ctx)
	for _, b := range snap.Beds {
		if b.Occupied() && strPtrVal(b.CurrentAdmissionID) == "a1" {
			t.Error("a1 still occupies a bed")
		}
	}

	if len(got) != 1 || got[0].Type != ChangeAdmissionDischarged || got[0].DischargeType != DischargeAlta || got[0].BedID != "b1" {
		t.Errorf("changes = %+v", got)
	}
}

func TestDischargePatient_TypesMapToStatus(t *testing.T) {
	tests := []struct {
		tipo string
		want AdmissionStatus
	}{
		{"Obito", StatusObito},
		{"Evasão", StatusEvasao},
		{"transferido", StatusTransferido},
	}
	for _, tt := range tests {
		t.Run(tt.tipo, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			in := dischargeA1()
			in.Type = tt.tipo
			adm, err := svc.DischargePatient(context.Background(), in)
			if err != nil {
				t.Fatalf("discharge: %v", err)
			}
			if adm.Status != tt.want {
				t.Errorf("status = %s, want %s", adm.Status, tt.want)
			}
		})
	}
}

func TestDischargePatient_EmptyEventTimeUsesNow(t *testing.T) {
	svc, _, clk := newTestService(t)
	in := dischargeA1()
	in.EventTime = ""
	adm, err := svc.DischargePatient(context.Background(), in)
	if err != nil {
		t.Fatalf("discharge: %v", err)
	}
	if !adm.DischargeDate.Equal(clk.Now()) {
		t.Errorf("discharge date = %v, want %v", adm.DischargeDate, clk.Now())
	}
}

func TestDischargePatient_Twice(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.DischargePatient(ctx, dischargeA1()); err != nil {
		t.Fatalf("first discharge: %v", err)
	}
	before, _ := repo.GetAdmission(ctx, "a1")

	in := dischargeA1()
	in.Type = "Obito"
	_, err := svc.DischargePatient(ctx, in)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
	after, _ := repo.GetAdmission(ctx, "a1")
	if after.Status != before.Status || strPtrVal(after.DischargeDestination) != "Alta" {
		t.Errorf("second discharge changed admission: %+v", after)
	}
}

func TestDischargePatient_UnknownIDLeavesOthersUntouched(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DischargeInput)
	}{
		{"unknown admission", func(in *DischargeInput) { in.AdmissionID = "zz" }},
		{"unknown bed", func(in *DischargeInput) { in.BedID = "zz" }},
		{"unknown patient", func(in *DischargeInput) { in.PatientID = "zz" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)
			ctx := context.Background()
			in := dischargeA1()
			tt.mutate(&in)

			_, err := svc.DischargePatient(ctx, in)
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			assertA1Untouched(t, repo)
		})
	}
}

func TestDischargePatient_MismatchedTriple(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DischargeInput)
	}{
		{"bed of another admission", func(in *DischargeInput) { in.BedID = "b4" }},
		{"free bed", func(in *DischargeInput) { in.BedID = "b2" }},
		{"other patient", func(in *DischargeInput) { in.PatientID = "p2" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)
			in := dischargeA1()
			tt.mutate(&in)

			_, err := svc.DischargePatient(context.Background(), in)
			if !errors.Is(err, ErrInvariant) {
				t.Fatalf("expected ErrInvariant, got %v", err)
			}
			assertA1Untouched(t, repo)
		})
	}
}

func TestDischargePatient_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DischargeInput)
	}{
		{"missing admission id", func(in *DischargeInput) { in.AdmissionID = "" }},
		{"missing bed id", func(in *DischargeInput) { in.BedID = " " }},
		{"missing patient id", func(in *DischargeInput) { in.PatientID = "" }},
		{"unknown type", func(in *DischargeInput) { in.Type = "Fuga" }},
		{"bad event time", func(in *DischargeInput) { in.EventTime = "ontem" }},
		{"event before entry", func(in *DischargeInput) { in.EventTime = "01/03/2024 08:00" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)
			in := dischargeA1()
			tt.mutate(&in)

			_, err := svc.DischargePatient(context.Background(), in)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			assertA1Untouched(t, repo)
		})
	}
}

func assertA1Untouched(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	a, _ := repo.GetAdmission(ctx, "a1")
	if a.Status != StatusInternado || a.DischargeDate != nil {
		t.Errorf("admission a1 changed: %+v", a)
	}
	b, _ := repo.GetBed(ctx, "b1")
	if b.Status != BedOcupado || strPtrVal(b.CurrentAdmissionID) != "a1" {
		t.Errorf("bed b1 changed: %+v", b)
	}
	p, _ := repo.GetPatient(ctx, "p1")
	if p.LastDischargeDate != nil {
		t.Errorf("patient p1 stamped: %v", p.LastDischargeDate)
	}
}

func updateP2() UpdatePatientInput {
	return UpdatePatientInput{
		PatientID:  "p2",
		Name:       "New Name",
		CPF:        "999.888.777-66",
		SUSCard:    "700000000000099",
		BirthDate:  "19650821",
		Sex:        "Masculino",
		MotherName: "Maria Santos",
		Phone:      "(98) 90000-0000",
		Address:    "Rua Nova, 1",
		EditedBy:   "Enf. Carla",
	}
}

func TestUpdatePatient_PropagatesNameToBed(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	var got []Change
	svc.OnChange(func(_ context.Context, c Change) { got = append(got, c) })

	p, err := svc.UpdatePatient(ctx, updateP2())
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Name != "New Name" || p.EditedBy != "Enf. Carla" || p.BirthDateString() != "1965-08-21" {
		t.Errorf("patient = %+v", p)
	}

	bed, _ := repo.GetBed(ctx, "b4")
	if strPtrVal(bed.CurrentPatientName) != "New Name" {
		t.Errorf("bed b4 name = %q", strPtrVal(bed.CurrentPatientName))
	}
	if len(got) != 1 || got[0].Type != ChangePatientUpdated || got[0].BedID != "b4" {
		t.Errorf("changes = %+v", got)
	}
}

func TestUpdatePatient_NotAdmitted(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.DischargePatient(ctx, dischargeA1()); err != nil {
		t.Fatalf("discharge: %v", err)
	}
	in := updateP2()
	in.PatientID = "p1"
	in.Name = "Maria S. Oliveira"
	in.Sex = "Feminino"
	if _, err := svc.UpdatePatient(ctx, in); err != nil {
		t.Fatalf("update: %v", err)
	}
	bed, _ := repo.GetBed(ctx, "b1")
	if bed.CurrentPatientName != nil {
		t.Errorf("released bed got a name: %q", *bed.CurrentPatientName)
	}
}

func TestUpdatePatient_EmptyBirthDateKeepsCurrent(t *testing.T) {
	svc, _, _ := newTestService(t)
	in := updateP2()
	in.BirthDate = ""
	p, err := svc.UpdatePatient(context.Background(), in)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.BirthDateString() != "1965-08-20" {
		t.Errorf("birth date = %s", p.BirthDateString())
	}
}

func TestUpdatePatient_DefaultEditor(t *testing.T) {
	svc, _, _ := newTestService(t)
	in := updateP2()
	in.EditedBy = ""
	p, err := svc.UpdatePatient(context.Background(), in)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.EditedBy != DefaultEditor {
		t.Errorf("edited by = %q", p.EditedBy)
	}
}

func TestUpdatePatient_NotFound(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	before, _ := repo.Snapshot(ctx)

	in := updateP2()
	in.PatientID = "p404"
	_, err := svc.UpdatePatient(ctx, in)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	after, _ := repo.Snapshot(ctx)
	for i := range before.Patients {
		if before.Patients[i].Name != after.Patients[i].Name || before.Patients[i].EditedBy != after.Patients[i].EditedBy {
			t.Errorf("patient %s changed", before.Patients[i].ID)
		}
	}
	for i := range before.Beds {
		if strPtrVal(before.Beds[i].CurrentPatientName) != strPtrVal(after.Beds[i].CurrentPatientName) {
			t.Errorf("bed %s changed", before.Beds[i].ID)
		}
	}
}

func TestUpdatePatient_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*UpdatePatientInput)
	}{
		{"missing id", func(in *UpdatePatientInput) { in.PatientID = "" }},
		{"missing name", func(in *UpdatePatientInput) { in.Name = "  " }},
		{"bad sex", func(in *UpdatePatientInput) { in.Sex = "M" }},
		{"short birth date", func(in *UpdatePatientInput) { in.BirthDate = "1965082" }},
		{"dashed birth date", func(in *UpdatePatientInput) { in.BirthDate = "1965-08-21" }},
		{"impossible birth date", func(in *UpdatePatientInput) { in.BirthDate = "19650231" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)
			in := updateP2()
			tt.mutate(&in)
			_, err := svc.UpdatePatient(context.Background(), in)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			p, _ := repo.GetPatient(context.Background(), "p2")
			if p.Name != "João Santos Souza" {
				t.Errorf("patient changed to %q", p.Name)
			}
		})
	}
}
