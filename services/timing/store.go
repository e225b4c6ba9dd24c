package timing

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/instantcocoa/perftrace/pkg/config"
)

// Store persists analyses.
type Store interface {
	Save(ctx context.Context, a *Analysis) error
	// Get returns ErrAnalysisNotFound for unknown IDs.
	Get(ctx context.Context, id string) (*Analysis, error)
	List(ctx context.Context, query ListQuery) ([]*Analysis, int, error)
}

// StoreOptions contains configuration for creating a store.
type StoreOptions struct {
	Backend config.StorageBackend
	DB      *sql.DB
}

// NewStore creates a Store for the configured backend.
func NewStore(opts StoreOptions) (Store, error) {
	switch opts.Backend {
	case config.StoragePostgres, config.StorageSQLite:
		if opts.DB == nil {
			return nil, fmt.Errorf("database connection required for %s backend", opts.Backend)
		}
		return NewSQLStore(opts.DB), nil
	default:
		return NewMemoryStore(), nil
	}
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu       sync.RWMutex
	analyses map[string]*Analysis
	order    []string // insertion order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		analyses: make(map[string]*Analysis),
	}
}

func (s *MemoryStore) Save(ctx context.Context, a *Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.analyses[a.ID]; exists {
		return fmt.Errorf("analysis already exists: %s", a.ID)
	}
	s.analyses[a.ID] = CopyAnalysis(a)
	s.order = append(s.order, a.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.analyses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAnalysisNotFound, id)
	}
	return CopyAnalysis(a), nil
}

func (s *MemoryStore) List(ctx context.Context, query ListQuery) ([]*Analysis, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Analysis
	for _, id := range s.order {
		a := s.analyses[id]
		if query.Name != "" && a.Name != query.Name {
			continue
		}
		results = append(results, a)
	}

	// Newest first; equal timestamps fall back to reverse insertion order.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	total := len(results)
	results = paginate(results, query.Offset, query.Limit)

	out := make([]*Analysis, len(results))
	for i, a := range results {
		out[i] = CopyAnalysis(a)
	}
	return out, total, nil
}

func paginate(results []*Analysis, offset, limit int) []*Analysis {
	if offset > 0 {
		if offset >= len(results) {
			return nil
		}
		results = results[offset:]
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
