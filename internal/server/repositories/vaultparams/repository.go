// Package vaultparams stores each owner's key derivation parameters.
package vaultparams

import (
	"context"

	"github.com/dmitrijs2005/gophvault/internal/storage"
)

type Repository interface {
	// Get returns common.ErrorNotFound for an owner without a vault.
	Get(ctx context.Context, ownerID string) (*storage.Params, error)
	// Put inserts or replaces the owner's parameters.
	Put(ctx context.Context, ownerID string, p *storage.Params) error
}
