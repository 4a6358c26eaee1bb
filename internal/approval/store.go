package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-authz/internal/shared"
)

// ListFilter narrows Store.List. Zero values match everything.
type ListFilter struct {
	Kind   Kind
	Status Status
}

// Store persists approvable requests.
type Store interface {
	Create(ctx context.Context, req Request) error
	Get(ctx context.Context, id uuid.UUID) (Request, error)
	List(ctx context.Context, filter ListFilter) ([]Request, error)
	// Update writes req only if the stored version equals expected.
	Update(ctx context.Context, req Request, expected int64) error
	NextSequence(ctx context.Context, kind Kind) (int64, error)
}

// FormatNumber renders the sequence number of a request.
func FormatNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%06d", prefix, seq)
}

// MemoryStore keeps requests in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]Request
	seqs map[Kind]int64
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[uuid.UUID]Request), seqs: make(map[Kind]int64)}
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[req.ID]; exists {
		return fmt.Errorf("approval: request %s exists: %w", req.ID, shared.ErrAlreadyProcessed)
	}
	s.rows[req.ID] = req.clone()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.rows[id]
	if !ok {
		return Request{}, fmt.Errorf("approval request %s: %w", id, shared.ErrNotFound)
	}
	return req.clone(), nil
}

// List implements Store. Results are ordered by creation time, newest first.
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]Request, error) {
	s.mu.RLock()
	out := make([]Request, 0, len(s.rows))
	for _, req := range s.rows {
		if filter.Kind != "" && req.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, req.clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Number > out[j].Number
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, req Request, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rows[req.ID]
	if !ok {
		return fmt.Errorf("approval request %s: %w", req.ID, shared.ErrNotFound)
	}
	if current.Version != expected {
		return ErrStaleVersion
	}
	s.rows[req.ID] = req.clone()
	return nil
}

// NextSequence implements Store.
func (s *MemoryStore) NextSequence(ctx context.Context, kind Kind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[kind]++
	return s.seqs[kind], nil
}
