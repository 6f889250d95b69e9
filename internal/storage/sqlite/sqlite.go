// Package sqlite is the local storage adapter: one SQLite file per profile,
// opened with the pure-Go modernc driver and migrated with goose.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"github.com/dmitrijs2005/gophvault/internal/storage/sqlite/migrations"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// RunMigrations brings the schema up to date. Running it twice is a no-op.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Store implements storage.Store on top of SQLite.
type Store struct {
	db  *sql.DB
	q   dbx.DBTX
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One connection: a vault file has a single writer, and :memory:
	// databases are per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}
	return New(db), nil
}

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db, now: time.Now}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, ownerID string, blob []byte) (string, error) {
	id := uuid.NewString()
	now := s.now().UnixNano()

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO records (id, owner_id, blob, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, ownerID, blob, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to insert record: %w", err)
	}
	return id, nil
}

func (s *Store) FetchAll(ctx context.Context, ownerID string) ([]storage.Record, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, owner_id, blob, created_at, updated_at FROM records WHERE owner_id = ? ORDER BY created_at, rowid`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []storage.Record
	for rows.Next() {
		var (
			r                  storage.Record
			created, updated int64
		)
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Blob, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		r.UpdatedAt = time.Unix(0, updated).UTC()
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record rows: %w", err)
	}
	return result, nil
}

func (s *Store) Update(ctx context.Context, ownerID, recordID string, blob []byte) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE records SET blob = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
		blob, s.now().UnixNano(), recordID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return expectOneRow(res)
}

func (s *Store) Delete(ctx context.Context, ownerID, recordID string) error {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM records WHERE id = ? AND owner_id = ?`, recordID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (s *Store) LoadParams(ctx context.Context, ownerID string) (*storage.Params, error) {
	p := &storage.Params{}
	err := s.q.QueryRowContext(ctx,
		`SELECT salt, iterations, cipher, canary FROM vault_params WHERE owner_id = ?`, ownerID).
		Scan(&p.Salt, &p.Iterations, &p.Cipher, &p.Canary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vault params: %w", err)
	}
	return p, nil
}

func (s *Store) SaveParams(ctx context.Context, ownerID string, p *storage.Params) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO vault_params (owner_id, salt, iterations, cipher, canary) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			salt = excluded.salt,
			iterations = excluded.iterations,
			cipher = excluded.cipher,
			canary = excluded.canary
	`, ownerID, p.Salt, p.Iterations, p.Cipher, p.Canary)
	if err != nil {
		return fmt.Errorf("failed to save vault params: %w", err)
	}
	return nil
}

// ReplaceBlobs rewrites several records of one owner atomically. Either all
// ids are updated or none is.
func (s *Store) ReplaceBlobs(ctx context.Context, ownerID string, blobs map[string][]byte) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txStore := &Store{db: s.db, q: tx, now: s.now}
		for id, blob := range blobs {
			if err := txStore.Update(ctx, ownerID, id, blob); err != nil {
				return fmt.Errorf("record %s: %w", id, err)
			}
		}
		return nil
	})
}
