package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry holds independent tables by id.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

func (r *Registry) Add(t *Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tables[t.ID()]; exists {
		return fmt.Errorf("table %s already registered", t.ID())
	}
	r.tables[t.ID()] = t
	return nil
}

func (r *Registry) Table(id string) (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, id)
	}
	return t, nil
}

// Tables returns every table ordered by id.
func (r *Registry) Tables() []*Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Start restores each table from store, when one is given, and then
// auto-starts the tables configured for it.
func (r *Registry) Start(ctx context.Context, store CheckpointStore) error {
	for _, t := range r.Tables() {
		if store != nil {
			cp, err := store.Load(ctx, t.ID())
			if err != nil {
				return fmt.Errorf("failed to load checkpoint for %s: %w", t.ID(), err)
			}
			if cp != nil {
				if err := t.Restore(ctx, cp); err != nil {
					return fmt.Errorf("failed to restore %s: %w", t.ID(), err)
				}
			}
		}
		if err := t.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s: %w", t.ID(), err)
		}
		log.Info().Str("table_id", t.ID()).Str("phase", string(t.Phase())).Msg("table ready")
	}
	return nil
}

// Close stops every table's timers.
func (r *Registry) Close() {
	for _, t := range r.Tables() {
		t.Close()
	}
}
