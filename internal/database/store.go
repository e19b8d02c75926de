package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	apperrors "github.com/akarpov/botconsole/internal/errors"
)

// Fixed name of the single durable key-value entry.
const identityName = "device_id"

// Store defines the interface for local store operations.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetOrCreateIdentity returns the persisted device identity, generating
	// and persisting a new one on first call. The value is stable across
	// calls and across restarts.
	GetOrCreateIdentity(ctx context.Context) (string, error)

	// RunMaintenance performs database maintenance tasks like VACUUM.
	RunMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.NewStorageError("identity store unreachable", err)
	}
	return nil
}

// GetOrCreateIdentity returns the stored device identity, creating it on
// first use. The insert tolerates a concurrent writer: on conflict the row
// is left alone and the winning value is read back.
func (s *sqlxStore) GetOrCreateIdentity(ctx context.Context) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value,
		`SELECT value FROM device_identity WHERE name = ?`, identityName)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		s.logger.ErrorContext(ctx, "Failed to read device identity", "error", err)
		return "", apperrors.NewStorageError("failed to read device identity", err)
	}

	generated := newDeviceID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO device_identity (name, value, created_at) VALUES (?, ?, ?)
         ON CONFLICT(name) DO NOTHING`,
		identityName, generated, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist device identity", "error", err)
		return "", apperrors.NewStorageError("failed to persist device identity", err)
	}

	err = s.db.GetContext(ctx, &value,
		`SELECT value FROM device_identity WHERE name = ?`, identityName)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to re-read device identity", "error", err)
		return "", apperrors.NewStorageError("failed to read device identity", err)
	}

	if value == generated {
		s.logger.InfoContext(ctx, "Generated new device identity")
	}
	return value, nil
}

// RunMaintenance performs periodic maintenance on the local store.
func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	start := time.Now()
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		s.logger.ErrorContext(ctx, "Failed to run VACUUM", "error", err)
		return apperrors.NewStorageError("maintenance failed", err)
	}
	s.logger.InfoContext(ctx, "Store maintenance completed", "duration", time.Since(start))
	return nil
}

// newDeviceID produces a collision-resistant opaque device identifier.
// It only needs to be unique enough for per-device scoping, not secret.
func newDeviceID() string {
	return "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// UnavailableStore is the Store used when the local database could not be
// opened. Every call reports storage unavailable, which lets the rest of
// the application run the session as an unidentified device.
type UnavailableStore struct {
	Err error
}

func (u UnavailableStore) Ping(context.Context) error {
	return apperrors.NewStorageError("identity store unavailable", u.Err)
}

func (u UnavailableStore) GetOrCreateIdentity(context.Context) (string, error) {
	return "", apperrors.NewStorageError("identity store unavailable", u.Err)
}

func (u UnavailableStore) RunMaintenance(context.Context) error {
	return fmt.Errorf("skipping maintenance: %w",
		apperrors.NewStorageError("identity store unavailable", u.Err))
}
