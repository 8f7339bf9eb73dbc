package ward

import (
	"fmt"
	"strings"
	"time"
)

// Sex as recorded on the patient registration form.
type Sex string

const (
	SexMale   Sex = "Masculino"
	SexFemale Sex = "Feminino"
)

func (s Sex) Valid() bool { return s == SexMale || s == SexFemale }

// Category is the clinical bed category used for occupancy charts.
type Category string

const (
	CategoryClinico       Category = "Clinico"
	CategoryIsolamento    Category = "Isolamento"
	CategoryObservacao    Category = "Observacao"
	CategoryEstabilizacao Category = "Estabilizacao"
)

// Categories lists every category in chart order.
var Categories = []Category{CategoryClinico, CategoryIsolamento, CategoryObservacao, CategoryEstabilizacao}

var categoryColors = map[Category]string{
	CategoryClinico:       "#1e88e5",
	CategoryIsolamento:    "#8e24aa",
	CategoryObservacao:    "#fb8c00",
	CategoryEstabilizacao: "#c62828",
}

// Slug is the lower-case key used by the front end for styling.
func (c Category) Slug() string { return strings.ToLower(string(c)) }

// Color is the fixed chart colour of the category.
func (c Category) Color() string { return categoryColors[c] }

func (c Category) Valid() bool {
	_, ok := categoryColors[c]
	return ok
}

// ParseCategory accepts a category key or slug in any case.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown bed category %q", ErrInvalidInput, s)
}

// ClassifyBedType maps a free-text bed type such as "Isolamento (TB)" to its
// category. It is applied once, when a bed is provisioned without an explicit
// category; read models never look at the free text.
func ClassifyBedType(raw string) Category {
	switch {
	case strings.Contains(raw, "Isolamento"):
		return CategoryIsolamento
	case strings.Contains(raw, "Observação"), strings.Contains(raw, "Observacao"):
		return CategoryObservacao
	case strings.Contains(raw, "Estabilização"), strings.Contains(raw, "Estabilizacao"):
		return CategoryEstabilizacao
	default:
		return CategoryClinico
	}
}

// Sector is the hospital area a bed belongs to.
type Sector string

const (
	SectorInternacao Sector = "Internação"
	SectorEmergencia Sector = "Emergência"
)

// BedStatus is the operational state of a bed.
type BedStatus string

const (
	BedLivre        BedStatus = "Livre"
	BedOcupado      BedStatus = "Ocupado"
	BedHigienizacao BedStatus = "Higienização"
	BedManutencao   BedStatus = "Manutenção"
	BedBloqueado    BedStatus = "Bloqueado"
)

var validBedStatuses = map[BedStatus]bool{
	BedLivre:        true,
	BedOcupado:      true,
	BedHigienizacao: true,
	BedManutencao:   true,
	BedBloqueado:    true,
}

func (s BedStatus) Valid() bool { return validBedStatuses[s] }

// RiskLevel is the Manchester triage colour recorded at admission.
type RiskLevel string

const (
	RiskVermelho RiskLevel = "Vermelho"
	RiskLaranja  RiskLevel = "Laranja"
	RiskAmarelo  RiskLevel = "Amarelo"
	RiskVerde    RiskLevel = "Verde"
	RiskAzul     RiskLevel = "Azul"
)

// Isolation is the precaution type required by the admitted patient.
type Isolation string

const (
	IsolationNenhum    Isolation = "Nenhum"
	IsolationContato   Isolation = "Contato"
	IsolationAerossol  Isolation = "Aerossol"
	IsolationGoticulas Isolation = "Gotículas"
)

// AdmissionStatus is the lifecycle state of an admission. StatusInternado is
// the only active state; every other value is a terminal discharge outcome.
type AdmissionStatus string

const (
	StatusInternado   AdmissionStatus = "internado"
	StatusAlta        AdmissionStatus = "alta"
	StatusObito       AdmissionStatus = "óbito"
	StatusEvasao      AdmissionStatus = "evasão"
	StatusTransferido AdmissionStatus = "transferido"
)

func (s AdmissionStatus) Active() bool { return s == StatusInternado }

// DischargeType is the outcome chosen on the discharge form.
type DischargeType string

const (
	DischargeAlta        DischargeType = "Alta"
	DischargeObito       DischargeType = "Obito"
	DischargeEvasao      DischargeType = "Evasao"
	DischargeTransferido DischargeType = "Transferido"
)

var dischargeAliases = map[string]DischargeType{
	"alta":        DischargeAlta,
	"obito":       DischargeObito,
	"óbito":       DischargeObito,
	"evasao":      DischargeEvasao,
	"evasão":      DischargeEvasao,
	"transferido": DischargeTransferido,
}

// ParseDischargeType accepts the four outcomes with or without accents, in any case.
func ParseDischargeType(s string) (DischargeType, error) {
	if t, ok := dischargeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown discharge type %q", ErrInvalidInput, s)
}

// Status is the terminal admission status the discharge type leads to.
func (t DischargeType) Status() AdmissionStatus {
	switch t {
	case DischargeObito:
		return StatusObito
	case DischargeEvasao:
		return StatusEvasao
	case DischargeTransferido:
		return StatusTransferido
	default:
		return StatusAlta
	}
}

// Patient is a registered patient. Patients are never deleted.
type Patient struct {
	ID                string     `db:"id" json:"id"`
	InternalID        string     `db:"internal_id" json:"internal_id"`
	Name              string     `db:"name" json:"name"`
	CPF               string     `db:"cpf" json:"cpf"`
	SUSCard           string     `db:"sus_card" json:"sus_card"`
	BirthDate         time.Time  `db:"birth_date" json:"birth_date"`
	Sex               Sex        `db:"sex" json:"sex"`
	MotherName        string     `db:"mother_name" json:"mother_name"`
	Phone             string     `db:"phone" json:"phone"`
	Address           string     `db:"address" json:"address"`
	EditedBy          string     `db:"edited_by" json:"edited_by,omitempty"`
	LastDischargeDate *time.Time `db:"last_discharge_date" json:"last_discharge_date,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// BirthDateString returns the birth date as YYYY-MM-DD, or "" when unknown.
func (p *Patient) BirthDateString() string {
	if p.BirthDate.IsZero() {
		return ""
	}
	return p.BirthDate.Format("2006-01-02")
}

func (p *Patient) clone() *Patient {
	cp := *p
	cp.LastDischargeDate = cloneTime(p.LastDischargeDate)
	return &cp
}

// Bed is a provisioned bed. The bed set is fixed externally; only status and
// the current-admission fields change at runtime.
type Bed struct {
	ID                 string    `db:"id" json:"id"`
	Number             string    `db:"number" json:"number"`
	Title              string    `db:"title" json:"title"`
	Type               string    `db:"type" json:"type"`
	Category           Category  `db:"category" json:"category"`
	Sector             Sector    `db:"sector" json:"sector"`
	Status             BedStatus `db:"status" json:"status"`
	CurrentAdmissionID *string   `db:"current_admission_id" json:"current_admission_id,omitempty"`
	CurrentPatientName *string   `db:"current_patient_name" json:"current_patient_name,omitempty"`
	Notes              *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Label is the display label "Leito {number}".
func (b *Bed) Label() string {
	if strings.Contains(b.Number, "Leito") {
		return b.Number
	}
	return "Leito " + b.Number
}

// Occupied reports whether the bed is marked Ocupado.
func (b *Bed) Occupied() bool { return b.Status == BedOcupado }

// ResolvedCategory returns the stored category, or the one derived from the
// free-text type when the stored value is missing or unknown.
func (b *Bed) ResolvedCategory() Category {
	if b.Category.Valid() {
		return b.Category
	}
	return ClassifyBedType(b.Type)
}

// Release frees the bed and clears its admission back-reference.
func (b *Bed) Release() {
	b.Status = BedLivre
	b.CurrentAdmissionID = nil
	b.CurrentPatientName = nil
}

func (b *Bed) clone() *Bed {
	cp := *b
	cp.CurrentAdmissionID = cloneString(b.CurrentAdmissionID)
	cp.CurrentPatientName = cloneString(b.CurrentPatientName)
	cp.Notes = cloneString(b.Notes)
	return &cp
}

// Admission links a patient to a bed for the duration of a stay.
type Admission struct {
	ID                   string          `db:"id" json:"id"`
	PatientID            string          `db:"patient_id" json:"patient_id"`
	BedID                string          `db:"bed_id" json:"bed_id"`
	EntryDate            time.Time       `db:"entry_date" json:"entry_date"`
	SystemEntryDate      time.Time       `db:"system_entry_date" json:"system_entry_date"`
	Origin               string          `db:"origin" json:"origin"`
	RiskLevel            RiskLevel       `db:"risk_level" json:"risk_level"`
	Isolation            Isolation       `db:"isolation" json:"isolation"`
	Diagnosis            string          `db:"diagnosis" json:"diagnosis"`
	Status               AdmissionStatus `db:"status" json:"status"`
	DischargeDate        *time.Time      `db:"discharge_date" json:"discharge_date,omitempty"`
	DischargeDestination *string         `db:"discharge_destination" json:"discharge_destination,omitempty"`
	DischargeNotes       *string         `db:"discharge_notes" json:"discharge_notes,omitempty"`
	CreatedBy            string          `db:"created_by" json:"created_by"`
}

func (a *Admission) clone() *Admission {
	cp := *a
	cp.DischargeDate = cloneTime(a.DischargeDate)
	cp.DischargeDestination = cloneString(a.DischargeDestination)
	cp.DischargeNotes = cloneString(a.DischargeNotes)
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func strPtr(s string) *string { return &s }

func strPtrVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
