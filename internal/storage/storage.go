// Package storage defines the boundary between the vault core and the
// places encrypted records live. Adapters only ever see opaque blobs; they
// must filter every operation by owner id.
package storage

import (
	"context"
	"time"
)

// Record is one encrypted credential as persisted by an adapter.
type Record struct {
	ID        string
	OwnerID   string
	Blob      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Params are the per-owner key derivation parameters. They are written once,
// when the vault is initialised, and replaced only by a passphrase change.
type Params struct {
	Salt       []byte
	Iterations int
	Cipher     string
	// Canary is a known plaintext sealed under the derived key, used to
	// detect a wrong passphrase when strict checking is enabled.
	Canary []byte
}

// RecordStore persists encrypted records.
//
// Update returns common.ErrorNotFound when recordID does not exist or
// belongs to another owner. Delete returns common.ErrorNotFound for a
// missing id. Any other error means the backing store could not be reached.
type RecordStore interface {
	Insert(ctx context.Context, ownerID string, blob []byte) (string, error)
	FetchAll(ctx context.Context, ownerID string) ([]Record, error)
	Update(ctx context.Context, ownerID, recordID string, blob []byte) error
	Delete(ctx context.Context, ownerID, recordID string) error
}

// ParamsStore persists VaultParams. LoadParams returns common.ErrorNotFound
// when the owner has never unlocked a vault.
type ParamsStore interface {
	LoadParams(ctx context.Context, ownerID string) (*Params, error)
	SaveParams(ctx context.Context, ownerID string, p *Params) error
}

// BlobReplacer is implemented by adapters that can rewrite several records
// in one transaction. Passphrase changes use it when available.
type BlobReplacer interface {
	ReplaceBlobs(ctx context.Context, ownerID string, blobs map[string][]byte) error
}

// Store is what a full adapter provides.
type Store interface {
	RecordStore
	ParamsStore
}

// Clone returns a deep copy of p.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	c := *p
	c.Salt = append([]byte(nil), p.Salt...)
	c.Canary = append([]byte(nil), p.Canary...)
	return &c
}
