package ward

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nir/leitos/internal/platform/clock"
)

// Change types published after a committed mutation.
const (
	ChangePatientUpdated      = "ward.patient.updated"
	ChangeAdmissionDischarged = "ward.admission.discharged"
)

// Change describes a committed mutation.
type Change struct {
	Type          string        `json:"type"`
	PatientID     string        `json:"patient_id"`
	AdmissionID   string        `json:"admission_id,omitempty"`
	BedID         string        `json:"bed_id,omitempty"`
	DischargeType DischargeType `json:"discharge_type,omitempty"`
}

// Listener is notified after a mutation commits.
type Listener func(ctx context.Context, c Change)

// DefaultEditor stamps patients edited without an authenticated user.
const DefaultEditor = "Sistema"

type Service struct {
	repo      Repository
	clock     clock.Clock
	logger    zerolog.Logger
	listeners []Listener
}

func NewService(repo Repository, clk clock.Clock) *Service {
	return &Service{repo: repo, clock: clk, logger: zerolog.Nop()}
}

// SetLogger attaches the logger used for mutation audit lines.
func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "ward").Logger()
}

// OnChange registers a listener for committed mutations.
func (s *Service) OnChange(l Listener) {
	s.listeners = append(s.listeners, l)
}

func (s *Service) notify(ctx context.Context, c Change) {
	for _, l := range s.listeners {
		l(ctx, c)
	}
}

// UpdatePatientInput carries the replacement demographics. BirthDate is the
// compact YYYYMMDD form; empty keeps the stored date.
type UpdatePatientInput struct {
	PatientID  string
	Name       string
	CPF        string
	SUSCard    string
	BirthDate  string
	Sex        string
	MotherName string
	Phone      string
	Address    string
	EditedBy   string
}

func (in UpdatePatientInput) validate() error {
	if strings.TrimSpace(in.PatientID) == "" {
		return fmt.Errorf("%w: paciente_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: nome is required", ErrInvalidInput)
	}
	if !Sex(in.Sex).Valid() {
		return fmt.Errorf("%w: sexo must be Masculino or Feminino", ErrInvalidInput)
	}
	if in.BirthDate != "" {
		if _, err := clock.ParseCompactDate(in.BirthDate); err != nil {
			return fmt.Errorf("%w: nasc: %v", ErrInvalidInput, err)
		}
	}
	return nil
}

// UpdatePatient overwrites a patient's demographics and, when the patient is
// currently admitted, refreshes the name cached on their bed. Both writes
// commit together.
func (s *Service) UpdatePatient(ctx context.Context, in UpdatePatientInput) (*Patient, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	editor := strings.TrimSpace(in.EditedBy)
	if editor == "" {
		editor = DefaultEditor
	}

	var updated *Patient
	var bedID string
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetPatient(ctx, in.PatientID)
		if err != nil {
			return err
		}
		p.Name = strings.TrimSpace(in.Name)
		p.CPF = in.CPF
		p.SUSCard = in.SUSCard
		if in.BirthDate != "" {
			p.BirthDate, _ = clock.ParseCompactDate(in.BirthDate)
		}
		p.Sex = Sex(in.Sex)
		p.MotherName = in.MotherName
		p.Phone = in.Phone
		p.Address = in.Address
		p.EditedBy = editor
		if err := s.repo.SavePatient(ctx, p); err != nil {
			return err
		}
		updated = p

		adm, err := s.repo.ActiveAdmissionByPatient(ctx, p.ID)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		bed, err := s.repo.GetBed(ctx, adm.BedID)
		if isNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if strPtrVal(bed.CurrentAdmissionID) != adm.ID {
			return nil
		}
		bed.CurrentPatientName = strPtr(p.Name)
		bedID = bed.ID
		return s.repo.SaveBed(ctx, bed)
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("patient_id", in.PatientID).Msg("patient update rejected")
		return nil, err
	}

	s.logger.Info().
		Str("patient_id", updated.ID).
		Str("bed_id", bedID).
		Str("edited_by", editor).
		Msg("patient updated")
	s.notify(ctx, Change{Type: ChangePatientUpdated, PatientID: updated.ID, BedID: bedID})
	return updated, nil
}

// DischargeInput identifies the admission triple being closed. EventTime is
// the clinician-entered moment of discharge; empty means now.
type DischargeInput struct {
	AdmissionID string
	BedID       string
	PatientID   string
	Type        string
	EventTime   string
	Notes       string
}

// DischargePatient closes an active admission, frees its bed and stamps the
// patient's last discharge. Every id must resolve and agree with the others
// before anything is written; the three writes commit together.
func (s *Service) DischargePatient(ctx context.Context, in DischargeInput) (*Admission, error) {
	required := []struct{ field, value string }{
		{"admissao_id", in.AdmissionID},
		{"leito_id", in.BedID},
		{"paciente_id", in.PatientID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidInput, r.field)
		}
	}
	dtype, err := ParseDischargeType(in.Type)
	if err != nil {
		return nil, err
	}
	at, err := clock.ParseEventTime(in.EventTime, s.clock.Location(), s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: data_evento: %v", ErrInvalidInput, err)
	}

	var closed *Admission
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		adm, err := s.repo.GetAdmission(ctx, in.AdmissionID)
		if err != nil {
			return err
		}
		bed, err := s.repo.GetBed(ctx, in.BedID)
		if err != nil {
			return err
		}
		pat, err := s.repo.GetPatient(ctx, in.PatientID)
		if err != nil {
			return err
		}

		if !adm.Status.Active() {
			return fmt.Errorf("admission %s is already %s: %w", adm.ID, adm.Status, ErrInvariant)
		}
		if adm.BedID != bed.ID || adm.PatientID != pat.ID {
			return fmt.Errorf("admission %s does not link bed %s and patient %s: %w", adm.ID, bed.ID, pat.ID, ErrInvariant)
		}
		if strPtrVal(bed.CurrentAdmissionID) != adm.ID {
			return fmt.Errorf("bed %s does not hold admission %s: %w", bed.ID, adm.ID, ErrInvariant)
		}
		if at.Before(adm.EntryDate) {
			return fmt.Errorf("%w: data_evento precedes admission entry", ErrInvalidInput)
		}

		adm.Status = dtype.Status()
		adm.DischargeDate = &at
		adm.DischargeDestination = strPtr(string(dtype))
		adm.DischargeNotes = strPtr(in.Notes)
		if err := s.repo.SaveAdmission(ctx, adm); err != nil {
			return err
		}

		bed.Release()
		if err := s.repo.SaveBed(ctx, bed); err != nil {
			return err
		}

		pat.LastDischargeDate = &at
		if err := s.repo.SavePatient(ctx, pat); err != nil {
			return err
		}
		closed = adm
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Str("admission_id", in.AdmissionID).
			Str("bed_id", in.BedID).
			Str("patient_id", in.PatientID).
			Msg("discharge rejected")
		return nil, err
	}

	s.logger.Info().
		Str("admission_id", closed.ID).
		Str("bed_id", closed.BedID).
		Str("patient_id", closed.PatientID).
		Str("status", string(closed.Status)).
		Time("discharged_at", at).
		Msg("patient discharged")
	s.notify(ctx, Change{
		Type:          ChangeAdmissionDischarged,
		PatientID:     closed.PatientID,
		AdmissionID:   closed.ID,
		BedID:         closed.BedID,
		DischargeType: dtype,
	})
	return closed, nil
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return s.repo.GetPatient(ctx, id)
}

func (s *Service) ListBeds(ctx context.Context, f BedFilter, limit, offset int) ([]*Bed, int, error) {
	return s.repo.ListBeds(ctx, f, limit, offset)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.ListPatients(ctx, limit, offset)
}

func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
