package identity

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used in dev mode and tests.
type MemoryStore struct {
	mu         sync.Mutex
	byID       map[string]Record
	byUsername map[string]string
	byEmail    map[string]string
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]Record),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec Record) (Record, error) {
	const op = "identity.MemoryStore.Create"

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := rec.validateForStore(op); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[rec.ID]; ok {
		return Record{}, ConflictError{Op: op, Field: "id"}
	}
	if _, ok := s.byUsername[rec.Username]; ok {
		return Record{}, ConflictError{Op: op, Field: "username"}
	}
	if _, ok := s.byEmail[rec.Email]; ok {
		return Record{}, ConflictError{Op: op, Field: "email"}
	}

	rec = rec.Clone()
	rec.Version = 1
	s.byID[rec.ID] = rec
	s.byUsername[rec.Username] = rec.ID
	s.byEmail[rec.Email] = rec.ID
	return rec.Clone(), nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return Record{}, notFound("identity.MemoryStore.GetByID")
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) GetByUsername(ctx context.Context, username string) (Record, error) {
	return s.getByIndex(ctx, "identity.MemoryStore.GetByUsername", s.byUsername, NormalizeUsername(username))
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (Record, error) {
	return s.getByIndex(ctx, "identity.MemoryStore.GetByEmail", s.byEmail, NormalizeEmail(email))
}

func (s *MemoryStore) getByIndex(ctx context.Context, op string, idx map[string]string, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := idx[key]
	if !ok {
		return Record{}, notFound(op)
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, rec Record) (Record, error) {
	const op = "identity.MemoryStore.Update"

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := rec.validateForStore(op); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[rec.ID]
	if !ok {
		return Record{}, notFound(op)
	}
	if cur.Version != rec.Version {
		return Record{}, versionConflict(op)
	}
	if cur.Username != rec.Username || cur.Email != rec.Email {
		return Record{}, invalid(op, "username and email are immutable")
	}

	rec = rec.Clone()
	rec.Version = cur.Version + 1
	rec.CreatedAt = cur.CreatedAt
	s.byID[rec.ID] = rec
	return rec.Clone(), nil
}
