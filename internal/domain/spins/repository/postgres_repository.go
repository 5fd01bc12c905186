package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/common"
)

// PgxPool abstracts the subset of pgxpool.Pool used by the repository to allow mocking in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ PgxPool = (*pgxpool.Pool)(nil)

var _ LayoutRepository = (*PostgresLayoutRepository)(nil)

// PostgresLayoutRepository implements LayoutRepository using PostgreSQL
type PostgresLayoutRepository struct {
	pool PgxPool
}

// NewPostgresLayoutRepository creates a new PostgreSQL-backed layout repository
func NewPostgresLayoutRepository(pool PgxPool) *PostgresLayoutRepository {
	return &PostgresLayoutRepository{pool: pool}
}

const (
	getLayoutByFingerprintQuery = `
		SELECT id, fingerprint, name, date_format,
		       bet_col, payout_col, free_spin_col, game_col, date_col,
		       created_at, updated_at
		FROM column_layouts
		WHERE fingerprint = $1
	`
	listLayoutsQuery = `
		SELECT id, fingerprint, name, date_format,
		       bet_col, payout_col, free_spin_col, game_col, date_col,
		       created_at, updated_at
		FROM column_layouts
		ORDER BY updated_at DESC
	`
	upsertLayoutQuery = `
		INSERT INTO column_layouts (
			id, fingerprint, name, date_format,
			bet_col, payout_col, free_spin_col, game_col, date_col
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (fingerprint) DO UPDATE SET
			name = EXCLUDED.name, date_format = EXCLUDED.date_format,
			bet_col = EXCLUDED.bet_col, payout_col = EXCLUDED.payout_col,
			free_spin_col = EXCLUDED.free_spin_col, game_col = EXCLUDED.game_col,
			date_col = EXCLUDED.date_col, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	deleteLayoutQuery = `DELETE FROM column_layouts WHERE id = $1`
)

// GetLayoutByFingerprint looks up a layout by its header fingerprint
func (r *PostgresLayoutRepository) GetLayoutByFingerprint(ctx context.Context, fingerprint string) (*Layout, error) {
	rows, err := r.pool.Query(ctx, getLayoutByFingerprintQuery, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to get layout by fingerprint: %w", err)
	}

	layout, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[Layout])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan layout: %w", err)
	}

	return &layout, nil
}

type layoutUpsertRow struct {
	ID        uuid.UUID `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// UpsertLayout inserts a layout or overwrites the one sharing its fingerprint
func (r *PostgresLayoutRepository) UpsertLayout(ctx context.Context, layout *Layout) error {
	if layout.ID == uuid.Nil {
		layout.ID = uuid.New()
	}

	rows, err := r.pool.Query(ctx, upsertLayoutQuery,
		layout.ID, layout.Fingerprint, layout.Name, layout.DateFormat,
		layout.BetCol, layout.PayoutCol, layout.FreeSpinCol, layout.GameCol, layout.DateCol,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert layout: %w", err)
	}

	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[layoutUpsertRow])
	if err != nil {
		return fmt.Errorf("failed to upsert layout: %w", err)
	}

	layout.ID = row.ID
	layout.CreatedAt = row.CreatedAt
	layout.UpdatedAt = row.UpdatedAt
	return nil
}

// ListLayouts returns all remembered layouts, most recently updated first
func (r *PostgresLayoutRepository) ListLayouts(ctx context.Context) ([]*Layout, error) {
	rows, err := r.pool.Query(ctx, listLayoutsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list layouts: %w", err)
	}

	layouts, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Layout])
	if err != nil {
		return nil, fmt.Errorf("failed to scan layouts: %w", err)
	}

	return layouts, nil
}

// DeleteLayout removes a layout by ID
func (r *PostgresLayoutRepository) DeleteLayout(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deleteLayoutQuery, id)
	if err != nil {
		return fmt.Errorf("failed to delete layout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}
