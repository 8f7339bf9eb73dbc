package ward

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Repository is the entity store for patients, beds and admissions.
//
// Mutations that must be observed together run inside WithTx; repository
// calls made with the context passed to fn join that transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// ReadTx runs fn against one consistent read-only view of the ward.
	// Writes inside fn fail.
	ReadTx(ctx context.Context, fn func(ctx context.Context) error) error
	Snapshot(ctx context.Context) (*Snapshot, error)

	GetPatient(ctx context.Context, id string) (*Patient, error)
	GetBed(ctx context.Context, id string) (*Bed, error)
	GetAdmission(ctx context.Context, id string) (*Admission, error)
	ActiveAdmissionByPatient(ctx context.Context, patientID string) (*Admission, error)

	SavePatient(ctx context.Context, p *Patient) error
	SaveBed(ctx context.Context, b *Bed) error
	SaveAdmission(ctx context.Context, a *Admission) error

	// Provisioning and seeding
	CreatePatient(ctx context.Context, p *Patient) error
	CreateBed(ctx context.Context, b *Bed) error
	CreateAdmission(ctx context.Context, a *Admission) error

	ListBeds(ctx context.Context, f BedFilter, limit, offset int) ([]*Bed, int, error)
	ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

// BedFilter narrows ListBeds. Zero fields match everything.
type BedFilter struct {
	Sector   Sector
	Status   BedStatus
	Category Category
}

func (f BedFilter) Match(b *Bed) bool {
	if f.Sector != "" && b.Sector != f.Sector {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.Category != "" && b.Category != f.Category {
		return false
	}
	return true
}

// Snapshot is a consistent, detached copy of the whole ward. Beds keep
// provisioning order.
type Snapshot struct {
	Patients   []*Patient
	Beds       []*Bed
	Admissions []*Admission

	patients   map[string]*Patient
	admissions map[string]*Admission
}

func NewSnapshot(patients []*Patient, beds []*Bed, admissions []*Admission) *Snapshot {
	s := &Snapshot{
		Patients:   patients,
		Beds:       beds,
		Admissions: admissions,
		patients:   make(map[string]*Patient, len(patients)),
		admissions: make(map[string]*Admission, len(admissions)),
	}
	for _, p := range patients {
		s.patients[p.ID] = p
	}
	for _, a := range admissions {
		s.admissions[a.ID] = a
	}
	return s
}

func (s *Snapshot) Patient(id string) *Patient { return s.patients[id] }

func (s *Snapshot) Admission(id string) *Admission { return s.admissions[id] }

// DisplayName resolves the name shown for an occupied bed: the patient behind
// the bed's admission, then the bed's cached name, then "Desconhecido".
func (s *Snapshot) DisplayName(b *Bed) string {
	if b.CurrentAdmissionID != nil {
		if a := s.Admission(*b.CurrentAdmissionID); a != nil {
			if p := s.Patient(a.PatientID); p != nil && p.Name != "" {
				return p.Name
			}
		}
	}
	if b.CurrentPatientName != nil && *b.CurrentPatientName != "" {
		return *b.CurrentPatientName
	}
	return UnknownPatient
}

// AdmissionName resolves the patient name of an admission.
func (s *Snapshot) AdmissionName(a *Admission) string {
	if p := s.Patient(a.PatientID); p != nil && p.Name != "" {
		return p.Name
	}
	return UnknownPatient
}

// UnknownPatient is shown when no patient name can be resolved.
const UnknownPatient = "Desconhecido"

// latestActive picks the active admission with the most recent entry date.
func latestActive(admissions []*Admission) *Admission {
	var active []*Admission
	for _, a := range admissions {
		if a.Status.Active() {
			active = append(active, a)
		}
	}
	if len(active) == 0 {
		return nil
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].EntryDate.After(active[j].EntryDate)
	})
	return active[0]
}

func newID() string { return uuid.NewString() }

// provisionBed fills bed defaults and validates a bed before it is first
// stored. Beds always enter the ward unoccupied.
func provisionBed(b *Bed) error {
	if b.Number == "" {
		return fmt.Errorf("%w: bed number is required", ErrInvalidInput)
	}
	if b.Category == "" {
		b.Category = ClassifyBedType(b.Type)
	}
	if !b.Category.Valid() {
		return fmt.Errorf("%w: unknown bed category %q", ErrInvalidInput, b.Category)
	}
	if b.Status == "" {
		b.Status = BedLivre
	}
	if !b.Status.Valid() {
		return fmt.Errorf("%w: unknown bed status %q", ErrInvalidInput, b.Status)
	}
	if b.Occupied() || b.CurrentAdmissionID != nil {
		return fmt.Errorf("%w: bed %s must be provisioned unoccupied", ErrInvalidInput, b.Number)
	}
	if b.Title == "" {
		b.Title = b.Label()
	}
	return nil
}
