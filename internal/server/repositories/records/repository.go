// Package records stores encrypted vault records on the server. Rows are
// opaque blobs; every query is scoped by owner id.
package records

import (
	"context"

	"github.com/dmitrijs2005/gophvault/internal/storage"
)

type Repository interface {
	Insert(ctx context.Context, ownerID string, blob []byte) (string, error)
	// FetchAll returns the owner's records oldest first.
	FetchAll(ctx context.Context, ownerID string) ([]storage.Record, error)
	// Update and Delete return common.ErrorNotFound when no row of the
	// owner has the given id.
	Update(ctx context.Context, ownerID, recordID string, blob []byte) error
	Delete(ctx context.Context, ownerID, recordID string) error
}
