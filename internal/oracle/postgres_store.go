package oracle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PostgresStore persists registry state in PostgreSQL. Schema lives in
// migrations/00001_risk_oracle.sql.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed registry store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Scores: make(map[string]uint8)}

	var admin sql.NullString
	var lastUpdate sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT admin_address, last_update FROM oracle_state WHERE id = 1
	`).Scan(&admin, &lastUpdate)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load oracle state: %w", err)
	}
	if admin.Valid && admin.String != "" {
		snap.Admin = common.HexToAddress(admin.String)
		snap.HasAdmin = true
	}
	if lastUpdate.Valid {
		snap.LastUpdate = lastUpdate.Time
	}

	rows, err := s.db.QueryContext(ctx, `SELECT validator_id, score FROM risk_scores`)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk scores: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		var score int16
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("failed to scan risk score: %w", err)
		}
		snap.Scores[id] = uint8(score) //nolint:gosec // CHECK constraint keeps score in 0..255
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate risk scores: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) SetAdmin(ctx context.Context, admin common.Address) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO oracle_state (id, admin_address)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE
			SET admin_address = EXCLUDED.admin_address
			WHERE oracle_state.admin_address IS NULL
	`, admin.Hex())
	if err != nil {
		return fmt.Errorf("failed to record admin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record admin: %w", err)
	}
	if n == 0 {
		return ErrAlreadyInitialized
	}
	return nil
}

func (s *PostgresStore) PutScore(ctx context.Context, validatorID string, score uint8, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO risk_scores (validator_id, score, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (validator_id) DO UPDATE
			SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at
	`, validatorID, int16(score), at); err != nil {
		return fmt.Errorf("failed to upsert risk score: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO oracle_state (id, last_update)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET last_update = EXCLUDED.last_update
	`, at); err != nil {
		return fmt.Errorf("failed to update last_update: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
