package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/records"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/users"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/vaultparams"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"github.com/stretchr/testify/require"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type fakeUsersRepo struct {
	mu     sync.Mutex
	byName map[string]*models.User
	getErr error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byName: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byName[u.UserName]; ok {
		return nil, common.ErrorAlreadyExists
	}
	c := *u
	c.ID = "id-" + u.UserName
	f.byName[u.UserName] = &c
	return &c, nil
}

func (f *fakeUsersRepo) GetUserByLogin(_ context.Context, name string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byName[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

type fakeRefreshRepo struct {
	mu        sync.Mutex
	tokens    map[string]*models.RefreshToken
	createErr error
	deleteErr error
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: map[string]*models.RefreshToken{}}
}

func (f *fakeRefreshRepo) Create(_ context.Context, userID, token string, expires time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.tokens[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: expires}
	return nil
}

func (f *fakeRefreshRepo) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *rt
	return &c, nil
}

func (f *fakeRefreshRepo) Delete(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.tokens, token)
	return nil
}

func (f *fakeRefreshRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, rt := range f.tokens {
		if rt.Expires.Before(now) {
			delete(f.tokens, k)
			n++
		}
	}
	return n, nil
}

type fakeRecordsRepo struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	owners map[string]string
	nextID int
}

func newFakeRecordsRepo() *fakeRecordsRepo {
	return &fakeRecordsRepo{blobs: map[string][]byte{}, owners: map[string]string{}}
}

func (f *fakeRecordsRepo) Insert(_ context.Context, ownerID string, blob []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := string(rune('a' + f.nextID - 1))
	f.blobs[id] = blob
	f.owners[id] = ownerID
	return id, nil
}

func (f *fakeRecordsRepo) FetchAll(_ context.Context, ownerID string) ([]storage.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Record
	for id, owner := range f.owners {
		if owner == ownerID {
			out = append(out, storage.Record{ID: id, OwnerID: owner, Blob: f.blobs[id]})
		}
	}
	return out, nil
}

func (f *fakeRecordsRepo) Update(_ context.Context, ownerID, id string, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.owners[id] != ownerID {
		return common.ErrorNotFound
	}
	f.blobs[id] = blob
	return nil
}

func (f *fakeRecordsRepo) Delete(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.owners[id] != ownerID {
		return common.ErrorNotFound
	}
	delete(f.owners, id)
	delete(f.blobs, id)
	return nil
}

type fakeParamsRepo struct {
	params map[string]*storage.Params
}

func (f *fakeParamsRepo) Get(_ context.Context, ownerID string) (*storage.Params, error) {
	p, ok := f.params[ownerID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return p.Clone(), nil
}

func (f *fakeParamsRepo) Put(_ context.Context, ownerID string, p *storage.Params) error {
	f.params[ownerID] = p.Clone()
	return nil
}

type fakeRepoManager struct {
	users   *fakeUsersRepo
	refresh *fakeRefreshRepo
	records *fakeRecordsRepo
	params  *fakeParamsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:   newFakeUsersRepo(),
		refresh: newFakeRefreshRepo(),
		records: newFakeRecordsRepo(),
		params:  &fakeParamsRepo{params: map[string]*storage.Params{}},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                 { return m.users }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.refresh }
func (m *fakeRepoManager) Records(dbx.DBTX) records.Repository             { return m.records }
func (m *fakeRepoManager) VaultParams(dbx.DBTX) vaultparams.Repository     { return m.params }
