// Package sandbox loads a demo ward for development and UI demos: the three
// reference patients and eight beds, optionally followed by reproducible
// synthetic beds and admissions.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/nir/leitos/internal/domain/ward"
	"github.com/nir/leitos/internal/platform/auth"
	"github.com/nir/leitos/internal/platform/clock"
)

// SeedConfig controls the volume of synthetic data added after the
// reference ward.
type SeedConfig struct {
	ExtraBeds     int     `json:"extraBeds"`
	OccupancyRate float64 `json:"occupancyRate"`
	Seed          int64   `json:"seed"`
}

// defaultRandSeed drives synthetic beds when SeedConfig.Seed is zero.
const defaultRandSeed int64 = 20240310

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{OccupancyRate: 0.6, Seed: defaultRandSeed}
}

// SeedResult summarizes one seed run. Skipped is set when the ward already
// had beds and nothing was written.
type SeedResult struct {
	Patients   int           `json:"patients"`
	Beds       int           `json:"beds"`
	Admissions int           `json:"admissions"`
	Skipped    bool          `json:"skipped"`
	Duration   time.Duration `json:"duration"`
}

type demoAdmission struct {
	admission *ward.Admission
	age       time.Duration
}

func demoPatients() []*ward.Patient {
	date := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	lastDischarge := time.Date(2023, 10, 10, 0, 0, 0, 0, time.UTC)
	return []*ward.Patient{
		{ID: "p1", InternalID: "00129384", Name: "Maria Silva Oliveira", CPF: "123.456.789-00", SUSCard: "700000000000001",
			BirthDate: date(1980, 5, 15), Sex: ward.SexFemale, MotherName: "Ana Silva", Phone: "(98) 99999-9999",
			Address: "Rua das Flores, 123, Centro", LastDischargeDate: &lastDischarge, EditedBy: "Admin"},
		{ID: "p2", InternalID: "00129385", Name: "João Santos Souza", CPF: "222.333.444-55", SUSCard: "700000000000002",
			BirthDate: date(1965, 8, 20), Sex: ward.SexMale, MotherName: "Maria Santos", Phone: "(98) 98888-8888",
			Address: "Av. Principal, 500, Cohab", EditedBy: "Admin"},
		{ID: "p3", InternalID: "00129386", Name: "Francisca Ferreira", CPF: "333.444.555-66", SUSCard: "700000000000003",
			BirthDate: date(1990, 1, 10), Sex: ward.SexFemale, MotherName: "Josefa Ferreira", Phone: "(98) 97777-7777",
			Address: "Rua 10, Qd 20, Renascença", EditedBy: "Dr. Plantonista"},
	}
}

func demoBeds() []*ward.Bed {
	return []*ward.Bed{
		{ID: "b1", Number: "101", Title: "Leito 101", Type: "Clínico", Sector: ward.SectorInternacao},
		{ID: "b2", Number: "102", Title: "Leito 102", Type: "Clínico", Sector: ward.SectorInternacao},
		{ID: "b3", Number: "103", Title: "Leito 103", Type: "Clínico", Sector: ward.SectorInternacao, Status: ward.BedManutencao},
		{ID: "b4", Number: "201", Title: "Leito 201", Type: "Isolamento (TB)", Sector: ward.SectorInternacao},
		{ID: "b5", Number: "202", Title: "Leito 202", Type: "Isolamento (TB)", Sector: ward.SectorInternacao},
		{ID: "b6", Number: "OBS-01", Title: "Leito OBS-01", Type: "Observação", Sector: ward.SectorEmergencia},
		{ID: "b7", Number: "OBS-02", Title: "Leito OBS-02", Type: "Observação", Sector: ward.SectorEmergencia},
		{ID: "b8", Number: "EST-01", Title: "Leito EST-01", Type: "Estabilização", Sector: ward.SectorEmergencia},
	}
}

func demoAdmissions() []demoAdmission {
	return []demoAdmission{
		{age: 48 * time.Hour, admission: &ward.Admission{ID: "a1", PatientID: "p1", BedID: "b1", Origin: "UPA",
			RiskLevel: ward.RiskAmarelo, Isolation: ward.IsolationNenhum, Diagnosis: "Pneumonia adquirida na comunidade", CreatedBy: "Admin"}},
		{age: 5 * 24 * time.Hour, admission: &ward.Admission{ID: "a2", PatientID: "p2", BedID: "b4", Origin: "Transferência",
			RiskLevel: ward.RiskVermelho, Isolation: ward.IsolationAerossol, Diagnosis: "Tuberculose Pulmonar", CreatedBy: "Admin"}},
		{age: 4 * time.Hour, admission: &ward.Admission{ID: "a3", PatientID: "p3", BedID: "b6", Origin: "Demanda Espontânea",
			RiskLevel: ward.RiskVerde, Isolation: ward.IsolationNenhum, Diagnosis: "Cefaleia intensa a esclarecer", CreatedBy: "Dr. Plantonista"}},
	}
}

// Seeder writes the demo ward through a ward.Repository in one transaction.
type Seeder struct {
	repo   ward.Repository
	clock  clock.Clock
	config SeedConfig
	logger zerolog.Logger
	seeded []func(ctx context.Context)
}

func NewSeeder(repo ward.Repository, clk clock.Clock, config SeedConfig) *Seeder {
	return &Seeder{repo: repo, clock: clk, config: config, logger: zerolog.Nop()}
}

func (s *Seeder) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "sandbox").Logger()
}

// OnSeeded registers fn to run after a seed commits new data.
func (s *Seeder) OnSeeded(fn func(ctx context.Context)) {
	s.seeded = append(s.seeded, fn)
}

// Seed loads the demo ward unless the store already has beds. Admission
// entry dates are relative to the seeder's clock.
func (s *Seeder) Seed(ctx context.Context) (*SeedResult, error) {
	start := time.Now()
	result := &SeedResult{}

	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		snap, err := s.repo.Snapshot(ctx)
		if err != nil {
			return err
		}
		if len(snap.Beds) > 0 {
			result.Skipped = true
			return nil
		}

		now := s.clock.Now()
		for _, p := range demoPatients() {
			if err := s.repo.CreatePatient(ctx, p); err != nil {
				return fmt.Errorf("seed patient %s: %w", p.ID, err)
			}
			result.Patients++
		}
		for _, b := range demoBeds() {
			if err := s.repo.CreateBed(ctx, b); err != nil {
				return fmt.Errorf("seed bed %s: %w", b.ID, err)
			}
			result.Beds++
		}
		for _, d := range demoAdmissions() {
			d.admission.EntryDate = now.Add(-d.age)
			if err := s.admit(ctx, d.admission); err != nil {
				return err
			}
			result.Admissions++
		}
		return s.synthesize(ctx, now, result)
	})
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	if result.Skipped {
		s.logger.Info().Msg("ward already provisioned, demo seed skipped")
	} else {
		s.logger.Info().
			Int("patients", result.Patients).
			Int("beds", result.Beds).
			Int("admissions", result.Admissions).
			Dur("duration", result.Duration).
			Msg("demo ward seeded")
		for _, fn := range s.seeded {
			fn(ctx)
		}
	}
	return result, nil
}

// admit stores the admission and marks its bed occupied.
func (s *Seeder) admit(ctx context.Context, a *ward.Admission) error {
	if err := s.repo.CreateAdmission(ctx, a); err != nil {
		return fmt.Errorf("seed admission %s: %w", a.ID, err)
	}
	p, err := s.repo.GetPatient(ctx, a.PatientID)
	if err != nil {
		return err
	}
	b, err := s.repo.GetBed(ctx, a.BedID)
	if err != nil {
		return err
	}
	name := p.Name
	b.Status = ward.BedOcupado
	b.CurrentAdmissionID = &a.ID
	b.CurrentPatientName = &name
	if err := s.repo.SaveBed(ctx, b); err != nil {
		return fmt.Errorf("occupy bed %s: %w", b.ID, err)
	}
	return nil
}

var (
	givenNames  = []string{"Ana", "Antônio", "Carla", "Francisco", "José", "Luiza", "Marcos", "Raimunda", "Sebastião", "Tereza"}
	familyNames = []string{"Almeida", "Barbosa", "Cardoso", "Costa", "Lima", "Nascimento", "Pereira", "Ribeiro", "Rocha", "Sousa"}
	bedTypes    = []struct {
		prefix, kind string
		sector       ward.Sector
	}{
		{"3", "Clínico", ward.SectorInternacao},
		{"ISO-", "Isolamento (Contato)", ward.SectorInternacao},
		{"OBS-", "Observação", ward.SectorEmergencia},
		{"EST-", "Estabilização", ward.SectorEmergencia},
	}
	origins   = []string{"UPA", "SAMU", "Demanda Espontânea", "Transferência", "Ambulatório"}
	risks     = []ward.RiskLevel{ward.RiskVermelho, ward.RiskLaranja, ward.RiskAmarelo, ward.RiskVerde, ward.RiskAzul}
	diagnoses = []string{"Insuficiência cardíaca descompensada", "Celulite em membro inferior", "Crise hipertensiva",
		"Dengue com sinais de alarme", "DPOC exacerbado", "Infecção do trato urinário"}
)

// synthesize adds ExtraBeds reproducible beds, occupying roughly
// OccupancyRate of them with synthetic patients admitted in the last week.
func (s *Seeder) synthesize(ctx context.Context, now time.Time, result *SeedResult) error {
	if s.config.ExtraBeds <= 0 {
		return nil
	}
	seed := s.config.Seed
	if seed == 0 {
		seed = defaultRandSeed
	}
	rng := rand.New(rand.NewSource(seed))
	pick := func(pool []string) string { return pool[rng.Intn(len(pool))] }

	for i := 0; i < s.config.ExtraBeds; i++ {
		bt := bedTypes[i%len(bedTypes)]
		bed := &ward.Bed{
			ID:     fmt.Sprintf("sb%d", i+1),
			Number: fmt.Sprintf("%s%02d", bt.prefix, i/len(bedTypes)+1),
			Type:   bt.kind,
			Sector: bt.sector,
		}
		bed.Title = bed.Label()
		if err := s.repo.CreateBed(ctx, bed); err != nil {
			return fmt.Errorf("seed bed %s: %w", bed.ID, err)
		}
		result.Beds++

		if rng.Float64() >= s.config.OccupancyRate {
			continue
		}
		sex := ward.SexFemale
		if rng.Intn(2) == 0 {
			sex = ward.SexMale
		}
		patient := &ward.Patient{
			ID:         fmt.Sprintf("sp%d", i+1),
			InternalID: fmt.Sprintf("%08d", 200000+i),
			Name:       pick(givenNames) + " " + pick(familyNames) + " " + pick(familyNames),
			BirthDate:  time.Date(1940+rng.Intn(65), time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC),
			Sex:        sex,
			MotherName: pick(givenNames) + " " + pick(familyNames),
			EditedBy:   ward.DefaultEditor,
		}
		if err := s.repo.CreatePatient(ctx, patient); err != nil {
			return fmt.Errorf("seed patient %s: %w", patient.ID, err)
		}
		result.Patients++

		adm := &ward.Admission{
			ID:        fmt.Sprintf("sa%d", i+1),
			PatientID: patient.ID,
			BedID:     bed.ID,
			EntryDate: now.Add(-time.Duration(rng.Intn(7*24*60)) * time.Minute),
			Origin:    pick(origins),
			RiskLevel: risks[rng.Intn(len(risks))],
			Isolation: ward.IsolationNenhum,
			Diagnosis: pick(diagnoses),
			CreatedBy: ward.DefaultEditor,
		}
		if bt.kind == "Isolamento (Contato)" {
			adm.Isolation = ward.IsolationContato
		}
		if err := s.admit(ctx, adm); err != nil {
			return err
		}
		result.Admissions++
	}
	return nil
}

// SeedHandler exposes the seeder to administrators in development.
type SeedHandler struct {
	seeder *Seeder
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/sandbox/seed", h.handleSeed, auth.RequireRole(auth.RoleAdmin))
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	result, err := h.seeder.Seed(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(ward.StatusCode(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "seed": result})
}
