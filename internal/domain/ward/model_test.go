package ward

import (
	"errors"
	"testing"
)

func TestClassifyBedType(t *testing.T) {
	tests := []struct {
		raw  string
		want Category
	}{
		{"Clínico", CategoryClinico},
		{"Isolamento (TB)", CategoryIsolamento},
		{"Observação", CategoryObservacao},
		{"Observacao adulto", CategoryObservacao},
		{"Estabilização", CategoryEstabilizacao},
		{"", CategoryClinico},
		{"UTI", CategoryClinico},
	}
	for _, tt := range tests {
		if got := ClassifyBedType(tt.raw); got != tt.want {
			t.Errorf("ClassifyBedType(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("isolamento")
	if err != nil || c != CategoryIsolamento {
		t.Fatalf("ParseCategory(isolamento) = %q, %v", c, err)
	}
	if _, err := ParseCategory("uti"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCategory_SlugAndColor(t *testing.T) {
	if CategoryEstabilizacao.Slug() != "estabilizacao" {
		t.Errorf("slug = %q", CategoryEstabilizacao.Slug())
	}
	for _, c := range Categories {
		if c.Color() == "" {
			t.Errorf("category %s has no color", c)
		}
	}
}

func TestParseDischargeType(t *testing.T) {
	tests := []struct {
		in         string
		wantStatus AdmissionStatus
	}{
		{"Alta", StatusAlta},
		{"alta", StatusAlta},
		{"Obito", StatusObito},
		{"Óbito", StatusObito},
		{"EVASAO", StatusEvasao},
		{"Evasão", StatusEvasao},
		{" Transferido ", StatusTransferido},
	}
	for _, tt := range tests {
		dt, err := ParseDischargeType(tt.in)
		if err != nil {
			t.Errorf("ParseDischargeType(%q): %v", tt.in, err)
			continue
		}
		if dt.Status() != tt.wantStatus {
			t.Errorf("ParseDischargeType(%q).Status() = %s, want %s", tt.in, dt.Status(), tt.wantStatus)
		}
		if dt.Status().Active() {
			t.Errorf("discharge status %s must be terminal", dt.Status())
		}
	}

	if _, err := ParseDischargeType("Fuga"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBed_Label(t *testing.T) {
	if got := (&Bed{Number: "101"}).Label(); got != "Leito 101" {
		t.Errorf("label = %q", got)
	}
	if got := (&Bed{Number: "Leito 7"}).Label(); got != "Leito 7" {
		t.Errorf("label = %q", got)
	}
}

func TestBed_ResolvedCategory(t *testing.T) {
	tests := []struct {
		bed  Bed
		want Category
	}{
		{Bed{Type: "Isolamento", Category: CategoryObservacao}, CategoryObservacao},
		{Bed{Type: "Isolamento (TB)"}, CategoryIsolamento},
		{Bed{Type: "Sala Vermelha", Category: "UTI"}, CategoryClinico},
	}
	for _, tt := range tests {
		if got := tt.bed.ResolvedCategory(); got != tt.want {
			t.Errorf("%+v: got %s, want %s", tt.bed, got, tt.want)
		}
	}
}

func TestBed_Release(t *testing.T) {
	b := &Bed{Status: BedOcupado, CurrentAdmissionID: strPtr("a1"), CurrentPatientName: strPtr("X")}
	b.Release()
	if b.Status != BedLivre || b.CurrentAdmissionID != nil || b.CurrentPatientName != nil {
		t.Errorf("release left %+v", b)
	}
}

func TestSex_Valid(t *testing.T) {
	if !SexMale.Valid() || !SexFemale.Valid() {
		t.Error("expected both sexes valid")
	}
	if Sex("M").Valid() {
		t.Error("abbreviation must not validate")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNotFound, 404},
		{ErrInvalidInput, 400},
		{ErrInvariant, 409},
		{errors.New("boom"), 500},
	}
	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
