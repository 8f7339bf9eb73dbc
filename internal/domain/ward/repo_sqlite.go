package ward

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteStore is a MemoryStore whose committed state is written to SQLite as
// one JSON payload per entity bucket. Every successful WithTx rewrites the
// buckets before the new state becomes visible, so a failed write leaves
// both the file and memory unchanged.
type SQLiteStore struct {
	*MemoryStore
	db   *sql.DB
	path string
}

const (
	bucketPatients   = "patients"
	bucketBeds       = "beds"
	bucketAdmissions = "admissions"
)

var sqliteBuckets = []string{bucketPatients, bucketBeds, bucketAdmissions}

// NewSQLiteStore opens (or creates) the database at path and loads any saved ward.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "nir.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s, err := NewSQLiteStoreFromDB(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.path = path
	return s, nil
}

// NewSQLiteStoreFromDB wraps an already opened database handle.
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ward_state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &SQLiteStore{MemoryStore: NewMemoryStore(), db: db}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.onCommit = s.persist
	return s, nil
}

var _ Repository = (*SQLiteStore)(nil)

func (s *SQLiteStore) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM ward_state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		patients   []*Patient
		beds       []*Bed
		admissions []*Admission
	)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		switch bucket {
		case bucketPatients:
			err = json.Unmarshal(payload, &patients)
		case bucketBeds:
			err = json.Unmarshal(payload, &beds)
		case bucketAdmissions:
			err = json.Unmarshal(payload, &admissions)
		}
		if err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read state: %w", err)
	}

	st := newMemState()
	for _, p := range patients {
		st.Patients[p.ID] = p
		st.PatientOrder = append(st.PatientOrder, p.ID)
	}
	for _, b := range beds {
		b.Category = b.ResolvedCategory()
		st.Beds[b.ID] = b
		st.BedOrder = append(st.BedOrder, b.ID)
	}
	for _, a := range admissions {
		st.Admissions[a.ID] = a
		st.AdmissionOrder = append(st.AdmissionOrder, a.ID)
	}
	s.state = st
	return nil
}

func (s *SQLiteStore) persist(st *memState) (retErr error) {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		var data []byte
		switch bucket {
		case bucketPatients:
			data, err = json.Marshal(st.patientList())
		case bucketBeds:
			data, err = json.Marshal(st.bedList())
		case bucketAdmissions:
			data, err = json.Marshal(st.admissionList())
		}
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err = tx.Exec(`INSERT INTO ward_state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Path returns the database file path, empty when built from a handle.
func (s *SQLiteStore) Path() string { return s.path }
