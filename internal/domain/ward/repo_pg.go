package ward

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nir/leitos/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewPGRepo returns the Postgres-backed ward store.
func NewPGRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// forUpdate locks rows read inside a mutation so concurrent discharges of
// the same bed serialise.
func forUpdate(ctx context.Context) string {
	if readOnly, _ := ctx.Value(readOnlyKey{}).(bool); readOnly {
		return ``
	}
	if db.TxFromContext(ctx) != nil {
		return ` FOR UPDATE`
	}
	return ``
}

func (r *repoPG) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

type readOnlyKey struct{}

// ReadTx runs fn in a repeatable-read, read-only transaction. Inside an
// existing transaction fn joins it.
func (r *repoPG) ReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return db.WithTxOptions(ctx, r.pool, opts, func(ctx context.Context) error {
		return fn(context.WithValue(ctx, readOnlyKey{}, true))
	})
}

func (r *repoPG) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	err := r.ReadTx(ctx, func(ctx context.Context) error {
		q := r.conn(ctx)
		patients, err := collectPatients(q.Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at, id`))
		if err != nil {
			return err
		}
		beds, err := collectBeds(q.Query(ctx, `SELECT `+bedCols+` FROM bed ORDER BY seq`))
		if err != nil {
			return err
		}
		admissions, err := collectAdmissions(q.Query(ctx, `SELECT `+admissionCols+` FROM admission ORDER BY system_entry_date, id`))
		if err != nil {
			return err
		}
		snap = NewSnapshot(patients, beds, admissions)
		return nil
	})
	return snap, err
}

// -- patients --

const patientCols = `id, internal_id, name, cpf, sus_card, birth_date, sex, mother_name,
	phone, address, edited_by, last_discharge_date, created_at, updated_at`

func (r *repoPG) GetPatient(ctx context.Context, id string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`+forUpdate(ctx), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("patient %s: %w", id, ErrNotFound)
	}
	return p, err
}

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	if p.ID == "" {
		p.ID = newID()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, internal_id, name, cpf, sus_card, birth_date, sex, mother_name,
			phone, address, edited_by, last_discharge_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		p.ID, p.InternalID, p.Name, p.CPF, p.SUSCard, nullDate(p.BirthDate), p.Sex, p.MotherName,
		p.Phone, p.Address, p.EditedBy, p.LastDischargeDate,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapPGError(err)
}

func (r *repoPG) SavePatient(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET
			internal_id=$2, name=$3, cpf=$4, sus_card=$5, birth_date=$6, sex=$7, mother_name=$8,
			phone=$9, address=$10, edited_by=$11, last_discharge_date=$12, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.InternalID, p.Name, p.CPF, p.SUSCard, nullDate(p.BirthDate), p.Sex, p.MotherName,
		p.Phone, p.Address, p.EditedBy, p.LastDischargeDate,
	)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patient %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (r *repoPG) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	patients, err := collectPatients(r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patient ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset))
	return patients, total, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPatient(row scanner) (*Patient, error) {
	var p Patient
	var birth *time.Time
	if err := row.Scan(&p.ID, &p.InternalID, &p.Name, &p.CPF, &p.SUSCard, &birth, &p.Sex, &p.MotherName,
		&p.Phone, &p.Address, &p.EditedBy, &p.LastDischargeDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if birth != nil {
		p.BirthDate = *birth
	}
	return &p, nil
}

func collectPatients(rows pgx.Rows, err error) ([]*Patient, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// -- beds --

const bedCols = `id, number, title, type, category, sector, status,
	current_admission_id, current_patient_name, notes, created_at, updated_at`

func (r *repoPG) GetBed(ctx context.Context, id string) (*Bed, error) {
	b, err := scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+` FROM bed WHERE id = $1`+forUpdate(ctx), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("bed %s: %w", id, ErrNotFound)
	}
	return b, err
}

func (r *repoPG) CreateBed(ctx context.Context, b *Bed) error {
	if b.ID == "" {
		b.ID = newID()
	}
	if err := provisionBed(b); err != nil {
		return err
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bed (id, number, title, type, category, sector, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		b.ID, b.Number, b.Title, b.Type, b.Category, b.Sector, b.Status, b.Notes,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	return mapPGError(err)
}

// SaveBed writes status and the admission back-reference. The reference must
// point at an active admission placed in this bed.
func (r *repoPG) SaveBed(ctx context.Context, b *Bed) error {
	if ref := strPtrVal(b.CurrentAdmissionID); ref != "" {
		var bedID string
		var status AdmissionStatus
		err := r.conn(ctx).QueryRow(ctx, `SELECT bed_id, status FROM admission WHERE id = $1`, ref).Scan(&bedID, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("bed %s references admission %s: %w", b.ID, ref, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if bedID != b.ID || !status.Active() {
			return fmt.Errorf("bed %s references admission %s which is not active in it: %w", b.ID, ref, ErrInvariant)
		}
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bed SET
			number=$2, title=$3, type=$4, category=$5, sector=$6, status=$7,
			current_admission_id=$8, current_patient_name=$9, notes=$10, updated_at=NOW()
		WHERE id = $1`,
		b.ID, b.Number, b.Title, b.Type, b.Category, b.Sector, b.Status,
		b.CurrentAdmissionID, b.CurrentPatientName, b.Notes,
	)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bed %s: %w", b.ID, ErrNotFound)
	}
	return nil
}

func (r *repoPG) ListBeds(ctx context.Context, f BedFilter, limit, offset int) ([]*Bed, int, error) {
	var where []string
	var args []interface{}
	add := func(col string, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("sector", string(f.Sector))
	add("status", string(f.Status))
	add("category", string(f.Category))

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bed`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	q := fmt.Sprintf(`SELECT %s FROM bed%s ORDER BY seq LIMIT $%d OFFSET $%d`, bedCols, clause, len(args)-1, len(args))
	beds, err := collectBeds(r.conn(ctx).Query(ctx, q, args...))
	return beds, total, err
}

func scanBed(row scanner) (*Bed, error) {
	var b Bed
	if err := row.Scan(&b.ID, &b.Number, &b.Title, &b.Type, &b.Category, &b.Sector, &b.Status,
		&b.CurrentAdmissionID, &b.CurrentPatientName, &b.Notes, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBeds(rows pgx.Rows, err error) ([]*Bed, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// -- admissions --

const admissionCols = `id, patient_id, bed_id, entry_date, system_entry_date, origin, risk_level,
	isolation, diagnosis, status, discharge_date, discharge_destination, discharge_notes, created_by`

func (r *repoPG) GetAdmission(ctx context.Context, id string) (*Admission, error) {
	a, err := scanAdmission(r.conn(ctx).QueryRow(ctx, `SELECT `+admissionCols+` FROM admission WHERE id = $1`+forUpdate(ctx), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("admission %s: %w", id, ErrNotFound)
	}
	return a, err
}

func (r *repoPG) ActiveAdmissionByPatient(ctx context.Context, patientID string) (*Admission, error) {
	a, err := scanAdmission(r.conn(ctx).QueryRow(ctx, `SELECT `+admissionCols+` FROM admission
		WHERE patient_id = $1 AND status = $2
		ORDER BY entry_date DESC LIMIT 1`+forUpdate(ctx), patientID, StatusInternado))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("active admission for patient %s: %w", patientID, ErrNotFound)
	}
	return a, err
}

func (r *repoPG) CreateAdmission(ctx context.Context, a *Admission) error {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.Status == "" {
		a.Status = StatusInternado
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO admission (id, patient_id, bed_id, entry_date, origin, risk_level,
			isolation, diagnosis, status, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING system_entry_date`,
		a.ID, a.PatientID, a.BedID, a.EntryDate, a.Origin, a.RiskLevel,
		a.Isolation, a.Diagnosis, a.Status, a.CreatedBy,
	).Scan(&a.SystemEntryDate)
	return mapPGError(err)
}

// SaveAdmission refuses to move a terminal admission back to internado.
func (r *repoPG) SaveAdmission(ctx context.Context, a *Admission) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE admission SET
			origin=$2, risk_level=$3, isolation=$4, diagnosis=$5, status=$6,
			discharge_date=$7, discharge_destination=$8, discharge_notes=$9
		WHERE id = $1 AND (status = 'internado' OR $6 <> 'internado')`,
		a.ID, a.Origin, a.RiskLevel, a.Isolation, a.Diagnosis, a.Status,
		a.DischargeDate, a.DischargeDestination, a.DischargeNotes,
	)
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM admission WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("admission %s: %w", a.ID, ErrNotFound)
	}
	return fmt.Errorf("admission %s: reopening a terminal admission: %w", a.ID, ErrInvariant)
}

func scanAdmission(row scanner) (*Admission, error) {
	var a Admission
	if err := row.Scan(&a.ID, &a.PatientID, &a.BedID, &a.EntryDate, &a.SystemEntryDate, &a.Origin, &a.RiskLevel,
		&a.Isolation, &a.Diagnosis, &a.Status, &a.DischargeDate, &a.DischargeDestination, &a.DischargeNotes,
		&a.CreatedBy); err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAdmissions(rows pgx.Rows, err error) ([]*Admission, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Admission
	for rows.Next() {
		a, err := scanAdmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// mapPGError folds constraint violations into the ward error kinds.
func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23503":
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrNotFound)
	case "23505", "23514":
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrInvariant)
	case "22P02", "23502":
		return fmt.Errorf("%s: %w", pgErr.Message, ErrInvalidInput)
	}
	return err
}
