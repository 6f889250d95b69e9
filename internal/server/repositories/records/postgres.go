package records

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, ownerID string, blob []byte) (string, error) {
	query :=
		`INSERT INTO records (id, owner_id, blob)
		 VALUES ($1, $2, $3)
		 `

	id := uuid.NewString()
	if _, err := r.db.ExecContext(ctx, query, id, ownerID, blob); err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) FetchAll(ctx context.Context, ownerID string) ([]storage.Record, error) {
	query :=
		`SELECT id, blob, created_at, updated_at FROM records
		 WHERE owner_id = $1
		 ORDER BY created_at, id
		 `

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []storage.Record
	for rows.Next() {
		rec := storage.Record{OwnerID: ownerID}
		if err := rows.Scan(&rec.ID, &rec.Blob, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, ownerID, recordID string, blob []byte) error {
	if _, err := uuid.Parse(recordID); err != nil {
		return common.ErrorNotFound
	}

	query :=
		`UPDATE records SET blob = $3, updated_at = clock_timestamp()
		 WHERE owner_id = $1 AND id = $2
		 `

	res, err := r.db.ExecContext(ctx, query, ownerID, recordID, blob)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res.RowsAffected())
}

func (r *PostgresRepository) Delete(ctx context.Context, ownerID, recordID string) error {
	if _, err := uuid.Parse(recordID); err != nil {
		return common.ErrorNotFound
	}

	query :=
		`DELETE FROM records
		 WHERE owner_id = $1 AND id = $2
		 `

	res, err := r.db.ExecContext(ctx, query, ownerID, recordID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res.RowsAffected())
}

func expectOneRow(n int64, err error) error {
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
