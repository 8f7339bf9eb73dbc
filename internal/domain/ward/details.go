package ward

import (
	"context"
	"fmt"

	"github.com/nir/leitos/internal/platform/clock"
)

// AdmissionDetails is the read model behind the admission detail panel.
type AdmissionDetails struct {
	Admission AdmissionView `json:"admissao"`
	Bed       BedView       `json:"leito"`
	Patient   PatientView   `json:"paciente"`
}

type AdmissionView struct {
	ID         string         `json:"id"`
	EntryDate  string         `json:"data_entrada"`
	SystemDate string         `json:"data_sistema"`
	Diagnosis  string         `json:"diagnostico"`
	Risk       string         `json:"risco"`
	Isolation  string         `json:"isolamento"`
	Origin     string         `json:"origem"`
	CreatedBy  string         `json:"cadastrado_por"`
	Status     string         `json:"status"`
	Discharge  *DischargeView `json:"alta,omitempty"`
}

type DischargeView struct {
	Date    string `json:"data"`
	Type    string `json:"tipo"`
	Details string `json:"detalhes"`
}

type BedView struct {
	ID   string `json:"id"`
	Name string `json:"nome"`
	Type string `json:"tipo"`
}

type PatientView struct {
	ID         string `json:"id"`
	InternalID string `json:"id_interno"`
	Name       string `json:"nome"`
	CPF        string `json:"cpf"`
	SUS        string `json:"sus"`
	BirthDate  string `json:"nasc"`
	Sex        string `json:"sexo"`
	Mother     string `json:"mae"`
	Phone      string `json:"telefone"`
	Address    string `json:"endereco"`
	EditedBy   string `json:"editado_por"`
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// GetAdmissionDetails assembles the admission, its bed and its patient from
// one read transaction. A dangling bed or patient reference is reported as
// not found.
func (s *Service) GetAdmissionDetails(ctx context.Context, id string) (*AdmissionDetails, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	var (
		adm *Admission
		p   *Patient
		b   *Bed
	)
	err := s.repo.ReadTx(ctx, func(ctx context.Context) error {
		var err error
		if adm, err = s.repo.GetAdmission(ctx, id); err != nil {
			return err
		}
		if p, err = s.repo.GetPatient(ctx, adm.PatientID); err != nil {
			return err
		}
		b, err = s.repo.GetBed(ctx, adm.BedID)
		return err
	})
	if err != nil {
		return nil, err
	}

	loc := s.clock.Location()
	out := &AdmissionDetails{
		Admission: AdmissionView{
			ID:         adm.ID,
			EntryDate:  clock.DateTimeBR(adm.EntryDate, loc),
			SystemDate: clock.DateTimeBR(adm.SystemEntryDate, loc),
			Diagnosis:  orDefault(adm.Diagnosis, "Não informado"),
			Risk:       orDefault(string(adm.RiskLevel), "-"),
			Isolation:  orDefault(string(adm.Isolation), "Não"),
			Origin:     orDefault(adm.Origin, "-"),
			CreatedBy:  adm.CreatedBy,
			Status:     string(adm.Status),
		},
		Bed: BedView{
			ID:   b.ID,
			Name: b.Label(),
			Type: b.Type,
		},
		Patient: PatientView{
			ID:         p.ID,
			InternalID: p.InternalID,
			Name:       p.Name,
			CPF:        p.CPF,
			SUS:        p.SUSCard,
			BirthDate:  p.BirthDateString(),
			Sex:        string(p.Sex),
			Mother:     p.MotherName,
			Phone:      p.Phone,
			Address:    p.Address,
			EditedBy:   orDefault(p.EditedBy, "-"),
		},
	}
	if adm.DischargeDate != nil {
		out.Admission.Discharge = &DischargeView{
			Date:    clock.DateTimeBR(*adm.DischargeDate, loc),
			Type:    strPtrVal(adm.DischargeDestination),
			Details: strPtrVal(adm.DischargeNotes),
		}
	}
	return out, nil
}
