// Package repository persists remembered column layouts of spin exports.
// Uploaded rows and computed reports are never stored.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Layout is a learned export format, keyed by the fingerprint of its headers
type Layout struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Fingerprint string    `db:"fingerprint" json:"fingerprint"`
	Name        *string   `db:"name" json:"name,omitempty"` // provider or back-office label
	DateFormat  string    `db:"date_format" json:"date_format"`
	BetCol      int       `db:"bet_col" json:"bet_col"`
	PayoutCol   int       `db:"payout_col" json:"payout_col"`
	FreeSpinCol *int      `db:"free_spin_col" json:"free_spin_col,omitempty"`
	GameCol     *int      `db:"game_col" json:"game_col,omitempty"`
	DateCol     *int      `db:"date_col" json:"date_col,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// LayoutRepository defines data access operations for layouts
type LayoutRepository interface {
	// GetLayoutByFingerprint returns nil, nil when no layout matches.
	GetLayoutByFingerprint(ctx context.Context, fingerprint string) (*Layout, error)
	// UpsertLayout inserts the layout or replaces the one with the same
	// fingerprint. ID and timestamps are filled in on return.
	UpsertLayout(ctx context.Context, layout *Layout) error
	ListLayouts(ctx context.Context) ([]*Layout, error)
	DeleteLayout(ctx context.Context, id uuid.UUID) error
}
