package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/storage"
)

// RecordService stores opaque encrypted records and vault parameters on
// behalf of an authenticated owner. It never sees plaintext.
type RecordService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewRecordService(db *sql.DB, m repomanager.RepositoryManager) *RecordService {
	return &RecordService{db: db, repomanager: m}
}

func (s *RecordService) Insert(ctx context.Context, ownerID string, blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", fmt.Errorf("%w: empty blob", common.ErrInvalidInput)
	}
	return s.repomanager.Records(s.db).Insert(ctx, ownerID, blob)
}

func (s *RecordService) FetchAll(ctx context.Context, ownerID string) ([]storage.Record, error) {
	return s.repomanager.Records(s.db).FetchAll(ctx, ownerID)
}

func (s *RecordService) Update(ctx context.Context, ownerID, recordID string, blob []byte) error {
	if len(blob) == 0 {
		return fmt.Errorf("%w: empty blob", common.ErrInvalidInput)
	}
	return s.repomanager.Records(s.db).Update(ctx, ownerID, recordID, blob)
}

func (s *RecordService) Delete(ctx context.Context, ownerID, recordID string) error {
	return s.repomanager.Records(s.db).Delete(ctx, ownerID, recordID)
}

// ReplaceBlobs rewrites several records in one transaction. If any id is
// missing nothing is changed and common.ErrorNotFound is returned.
func (s *RecordService) ReplaceBlobs(ctx context.Context, ownerID string, blobs map[string][]byte) error {
	for id, blob := range blobs {
		if len(blob) == 0 {
			return fmt.Errorf("%w: empty blob for %s", common.ErrInvalidInput, id)
		}
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Records(tx)
		for id, blob := range blobs {
			if err := repo.Update(ctx, ownerID, id, blob); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *RecordService) GetParams(ctx context.Context, ownerID string) (*storage.Params, error) {
	return s.repomanager.VaultParams(s.db).Get(ctx, ownerID)
}

// PutParams rejects parameters no client could have produced.
func (s *RecordService) PutParams(ctx context.Context, ownerID string, p *storage.Params) error {
	if len(p.Salt) < cryptox.MinSaltSize {
		return fmt.Errorf("%w: salt shorter than %d bytes", common.ErrInvalidInput, cryptox.MinSaltSize)
	}
	if p.Iterations < cryptox.MinIterations {
		return fmt.Errorf("%w: fewer than %d iterations", common.ErrInvalidInput, cryptox.MinIterations)
	}
	if _, err := cryptox.CipherByName(p.Cipher); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	return s.repomanager.VaultParams(s.db).Put(ctx, ownerID, p)
}
