// Package audit records one row per answered query. Message text is never stored.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"interpharma-gateway/internal/models"
)

type Entry struct {
	ID            string
	RequestID     string
	ClientID      string
	Persona       models.Persona
	Mode          models.Mode
	Language      string
	Category      models.SafetyCategory
	ModelLabel    models.ModelLabel
	Blocked       bool
	MessageLength int
	Duration      time.Duration
	CreatedAt     time.Time
}

type Repository interface {
	Record(ctx context.Context, e Entry) error
}

const schema = `CREATE TABLE IF NOT EXISTS query_logs (
	id             UUID PRIMARY KEY,
	request_id     TEXT NOT NULL,
	client_id      TEXT NOT NULL,
	persona        TEXT NOT NULL,
	mode           TEXT NOT NULL,
	language       TEXT NOT NULL,
	category       TEXT NOT NULL DEFAULT '',
	model_label    TEXT NOT NULL,
	blocked        BOOLEAN NOT NULL DEFAULT FALSE,
	message_length INTEGER NOT NULL,
	duration_ms    BIGINT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
)`

const insertEntry = `INSERT INTO query_logs
	(id, request_id, client_id, persona, mode, language, category, model_label, blocked, message_length, duration_ms, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create query_logs: %w", err)
	}
	return nil
}

// Record fills ID and CreatedAt when they are unset.
func (r *PostgresRepository) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	_, err := r.db.ExecContext(ctx, insertEntry,
		e.ID, e.RequestID, e.ClientID, string(e.Persona), string(e.Mode), e.Language,
		string(e.Category), string(e.ModelLabel), e.Blocked, e.MessageLength,
		e.Duration.Milliseconds(), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert query_logs: %w", err)
	}
	return nil
}

type Noop struct{}

func (Noop) Record(context.Context, Entry) error { return nil }
