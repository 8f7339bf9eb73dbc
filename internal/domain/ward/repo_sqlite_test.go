package ward

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ward", "nir.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	seedWard(t, s)

	svc := NewService(s, fixedTestClock())
	_, err = svc.DischargePatient(context.Background(), DischargeInput{
		AdmissionID: "a1", BedID: "b1", PatientID: "p1", Type: "Alta",
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, path, reopened.Path())

	snap, err := reopened.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Patients, 3)
	require.Len(t, snap.Beds, 8)
	require.Len(t, snap.Admissions, 3)
	require.Equal(t, []string{"b1", "b2", "b3", "b4", "b5", "b6", "b7", "b8"}, ids(snap.Beds))

	require.Equal(t, StatusAlta, snap.Admission("a1").Status)
	require.Equal(t, BedLivre, snap.Beds[0].Status)
	require.Nil(t, snap.Beds[0].CurrentAdmissionID)
	require.NotNil(t, snap.Patient("p1").LastDischargeDate)
	require.Equal(t, "1980-05-15", snap.Patient("p1").BirthDateString())
	require.Equal(t, "a2", *snap.Beds[3].CurrentAdmissionID)
}

func TestSQLiteStore_FailedPersistKeepsState(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ward_state").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT bucket, payload FROM ward_state").
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "payload"}).
			AddRow("patients", []byte(`[{"id":"p1","name":"Maria","sex":"Feminino"}]`)).
			AddRow("beds", []byte(`[{"id":"b1","number":"101","category":"Clinico","status":"Livre"}]`)).
			AddRow("admissions", []byte(`[]`)))

	s, err := NewSQLiteStoreFromDB(db)
	require.NoError(t, err)

	p, err := s.GetPatient(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "Maria", p.Name)

	mock.ExpectBegin().WillReturnError(errors.New("disk full"))
	p.Name = "Maria Changed"
	err = s.SavePatient(context.Background(), p)
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")

	again, err := s.GetPatient(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "Maria", again.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_UpsertFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ward_state").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT bucket, payload FROM ward_state").
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "payload"}))

	s, err := NewSQLiteStoreFromDB(db)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO ward_state").WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	err = s.CreatePatient(context.Background(), &Patient{ID: "p9", Name: "Novo", Sex: SexMale})
	require.Error(t, err)

	_, err = s.GetPatient(context.Background(), "p9")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_CorruptPayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ward_state").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT bucket, payload FROM ward_state").
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "payload"}).AddRow("beds", []byte(`{not json`)))

	_, err = NewSQLiteStoreFromDB(db)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode beds")
}

func TestSQLiteStore_LoadDerivesMissingCategory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ward_state").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT bucket, payload FROM ward_state").
		WillReturnRows(sqlmock.NewRows([]string{"bucket", "payload"}).
			AddRow("beds", []byte(`[{"id":"b1","number":"1","type":"Isolamento (TB)","status":"Livre"},`+
				`{"id":"b2","number":"2","type":"Observação","category":"Observacao","status":"Livre"}]`)))

	s, err := NewSQLiteStoreFromDB(db)
	require.NoError(t, err)

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Beds, 2)
	require.Equal(t, CategoryIsolamento, snap.Beds[0].Category)
	require.Equal(t, CategoryObservacao, snap.Beds[1].Category)
}
