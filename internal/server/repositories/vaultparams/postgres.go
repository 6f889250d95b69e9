package vaultparams

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/storage"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, ownerID string) (*storage.Params, error) {
	query :=
		`SELECT salt, iterations, cipher, canary FROM vault_params
		 WHERE owner_id = $1
		 `

	p := &storage.Params{}
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&p.Salt, &p.Iterations, &p.Cipher, &p.Canary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Put(ctx context.Context, ownerID string, p *storage.Params) error {
	query :=
		`INSERT INTO vault_params (owner_id, salt, iterations, cipher, canary)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (owner_id) DO UPDATE
		 SET salt = EXCLUDED.salt, iterations = EXCLUDED.iterations,
		     cipher = EXCLUDED.cipher, canary = EXCLUDED.canary
		 `

	if _, err := r.db.ExecContext(ctx, query, ownerID, p.Salt, p.Iterations, p.Cipher, p.Canary); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
