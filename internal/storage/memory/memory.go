// Package memory is an in-process storage adapter. Nothing survives a restart;
// it backs tests and the "memory" backend of the client.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"github.com/google/uuid"
)

// Store keeps records and params in maps guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]storage.Record
	order   []string
	params  map[string]*storage.Params
	now     func() time.Time
}

var (
	_ storage.Store        = (*Store)(nil)
	_ storage.BlobReplacer = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		records: make(map[string]storage.Record),
		params:  make(map[string]*storage.Params),
		now:     time.Now,
	}
}

func (s *Store) Insert(ctx context.Context, ownerID string, blob []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	now := s.now()
	s.order = append(s.order, id)
	s.records[id] = storage.Record{
		ID:        id,
		OwnerID:   ownerID,
		Blob:      append([]byte(nil), blob...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

// FetchAll returns the owner's records in insertion order.
func (s *Store) FetchAll(ctx context.Context, ownerID string) ([]storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.Record
	for _, id := range s.order {
		r := s.records[id]
		if r.OwnerID != ownerID {
			continue
		}
		r.Blob = append([]byte(nil), r.Blob...)
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, ownerID, recordID string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[recordID]
	if !ok || r.OwnerID != ownerID {
		return common.ErrorNotFound
	}
	r.Blob = append([]byte(nil), blob...)
	r.UpdatedAt = s.now()
	s.records[recordID] = r
	return nil
}

func (s *Store) Delete(ctx context.Context, ownerID, recordID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[recordID]
	if !ok || r.OwnerID != ownerID {
		return common.ErrorNotFound
	}
	delete(s.records, recordID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == recordID })
	return nil
}

// ReplaceBlobs updates every listed record or, if any id is missing,
// none of them.
func (s *Store) ReplaceBlobs(ctx context.Context, ownerID string, blobs map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range blobs {
		if r, ok := s.records[id]; !ok || r.OwnerID != ownerID {
			return common.ErrorNotFound
		}
	}
	now := s.now()
	for id, blob := range blobs {
		r := s.records[id]
		r.Blob = append([]byte(nil), blob...)
		r.UpdatedAt = now
		s.records[id] = r
	}
	return nil
}

func (s *Store) LoadParams(ctx context.Context, ownerID string) (*storage.Params, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.params[ownerID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return p.Clone(), nil
}

func (s *Store) SaveParams(ctx context.Context, ownerID string, p *storage.Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.params[ownerID] = p.Clone()
	return nil
}
