package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SandersonMaxwell/spin-cashback/internal/domain/common"
)

var _ LayoutRepository = (*MemoryLayoutRepository)(nil)

// MemoryLayoutRepository keeps layouts in process memory. It backs the
// service when no database is configured; layouts are lost on restart.
type MemoryLayoutRepository struct {
	mu      sync.RWMutex
	byPrint map[string]*Layout
	now     func() time.Time
}

func NewMemoryLayoutRepository() *MemoryLayoutRepository {
	return &MemoryLayoutRepository{
		byPrint: make(map[string]*Layout),
		now:     time.Now,
	}
}

func (r *MemoryLayoutRepository) GetLayoutByFingerprint(_ context.Context, fingerprint string) (*Layout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.byPrint[fingerprint]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *MemoryLayoutRepository) UpsertLayout(_ context.Context, layout *Layout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.byPrint[layout.Fingerprint]; ok {
		layout.ID = existing.ID
		layout.CreatedAt = existing.CreatedAt
	} else {
		if layout.ID == uuid.Nil {
			layout.ID = uuid.New()
		}
		layout.CreatedAt = now
	}
	layout.UpdatedAt = now

	cp := *layout
	r.byPrint[layout.Fingerprint] = &cp
	return nil
}

func (r *MemoryLayoutRepository) ListLayouts(_ context.Context) ([]*Layout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	layouts := make([]*Layout, 0, len(r.byPrint))
	for _, l := range r.byPrint {
		cp := *l
		layouts = append(layouts, &cp)
	}
	sort.Slice(layouts, func(i, j int) bool {
		return layouts[i].UpdatedAt.After(layouts[j].UpdatedAt)
	})
	return layouts, nil
}

func (r *MemoryLayoutRepository) DeleteLayout(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for fp, l := range r.byPrint {
		if l.ID == id {
			delete(r.byPrint, fp)
			return nil
		}
	}
	return common.ErrNotFound
}
