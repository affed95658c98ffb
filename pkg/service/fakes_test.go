package service

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/incidentops/incident-tracker/pkg/audit"
	"github.com/incidentops/incident-tracker/pkg/domain"
)

// memIncidentStore is an in-memory IncidentStore for tests.
type memIncidentStore struct {
	mu        sync.Mutex
	incidents map[uuid.UUID]*domain.Incident
	deleteErr error
	createErr error
}

func newMemIncidentStore() *memIncidentStore {
	return &memIncidentStore{incidents: make(map[uuid.UUID]*domain.Incident)}
}

func (s *memIncidentStore) Create(ctx context.Context, incident *domain.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	cp := *incident
	s.incidents[incident.ID] = &cp
	return nil
}

func (s *memIncidentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.incidents[id]
	if !ok {
		return nil, domain.ErrIncidentNotFound
	}
	cp := *in
	return &cp, nil
}

func (s *memIncidentStore) List(ctx context.Context, accountID *uuid.UUID) ([]*domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Incident
	for _, in := range s.incidents {
		if accountID != nil && in.AccountID != *accountID {
			continue
		}
		cp := *in
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memIncidentStore) Update(ctx context.Context, incident *domain.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[incident.ID]; !ok {
		return domain.ErrIncidentNotFound
	}
	cp := *incident
	s.incidents[incident.ID] = &cp
	return nil
}

func (s *memIncidentStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.incidents[id]; !ok {
		return domain.ErrIncidentNotFound
	}
	delete(s.incidents, id)
	return nil
}

func (s *memIncidentStore) CountByCategory(ctx context.Context, categoryID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, in := range s.incidents {
		if in.CategoryID == categoryID {
			count++
		}
	}
	return count, nil
}

// memCategoryStore is an in-memory CategoryStore for tests.
type memCategoryStore struct {
	mu         sync.Mutex
	categories map[uuid.UUID]*domain.Category
}

func newMemCategoryStore() *memCategoryStore {
	return &memCategoryStore{categories: make(map[uuid.UUID]*domain.Category)}
}

func (s *memCategoryStore) Create(ctx context.Context, category *domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.Name == category.Name {
			return domain.ErrDuplicateCategory
		}
	}
	cp := *category
	s.categories[category.ID] = &cp
	return nil
}

func (s *memCategoryStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, domain.ErrCategoryNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memCategoryStore) List(ctx context.Context) ([]*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Category
	for _, c := range s.categories {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memCategoryStore) Update(ctx context.Context, category *domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[category.ID]; !ok {
		return domain.ErrCategoryNotFound
	}
	for id, c := range s.categories {
		if id != category.ID && c.Name == category.Name {
			return domain.ErrDuplicateCategory
		}
	}
	cp := *category
	s.categories[category.ID] = &cp
	return nil
}

func (s *memCategoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return domain.ErrCategoryNotFound
	}
	delete(s.categories, id)
	return nil
}

// memAuditStore collects audit entries for assertions.
type memAuditStore struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
}

func (s *memAuditStore) Insert(ctx context.Context, entry *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *memAuditStore) List(ctx context.Context, filter audit.Filter) ([]*domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.AuditEntry, len(s.entries))
	for i, e := range s.entries {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (s *memAuditStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *memAuditStore) last() *domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil
	}
	return s.entries[len(s.entries)-1]
}

// passthroughTx stands in for the database transaction runner. The stores
// above have no shared transaction concept, so it just runs fn; the
// store-then-record ordering inside fn still surfaces coupling failures.
type passthroughTx struct {
	calls int
}

func (t *passthroughTx) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}
