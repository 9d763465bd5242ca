package audit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interpharma-gateway/internal/models"
)

func TestPostgresRepository_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS query_logs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewPostgresRepository(db).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := NewPostgresRepository(db)
	repo.now = func() time.Time { return fixed }

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO query_logs")).
		WithArgs(sqlmock.AnyArg(), "req-1", "10.0.0.1", "medical-chat", "Pharmacist", "en",
			"", "provider", false, 18, int64(1500), fixed).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.Record(context.Background(), Entry{
		RequestID:     "req-1",
		ClientID:      "10.0.0.1",
		Persona:       models.PersonaMedicalChat,
		Mode:          models.ModePharmacist,
		Language:      "en",
		ModelLabel:    models.LabelProvider,
		MessageLength: 18,
		Duration:      1500 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_RecordBlocked(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO query_logs")).
		WithArgs("fixed-id", sqlmock.AnyArg(), sqlmock.AnyArg(), "pharma-chat", "Student", "en",
			"prescription", "safety", true, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewPostgresRepository(db).Record(context.Background(), Entry{
		ID:         "fixed-id",
		Persona:    models.PersonaPharmaChat,
		Mode:       models.ModeStudent,
		Language:   "en",
		Category:   models.CategoryPrescription,
		ModelLabel: models.LabelSafety,
		Blocked:    true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_RecordError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO query_logs")).WillReturnError(errors.New("connection reset"))

	err = NewPostgresRepository(db).Record(context.Background(), Entry{RequestID: "r"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
