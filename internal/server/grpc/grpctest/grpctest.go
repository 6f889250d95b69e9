// Package grpctest runs the gRPC server in-process over bufconn with
// in-memory services, for tests of the server and of its clients.
package grpctest

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	srvgrpc "github.com/dmitrijs2005/gophvault/internal/server/grpc"
	"github.com/dmitrijs2005/gophvault/internal/server/auth"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/services"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"github.com/dmitrijs2005/gophvault/internal/storage/memory"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// Secret signs access tokens issued by the test server.
const Secret = "grpctest-secret"

// Users is an in-memory UserService. Passwords are compared verbatim and
// the owner id of an account is its username.
type Users struct {
	mu        sync.Mutex
	passwords map[string]string
	ids       map[string]string
	refresh   map[string]string
	accessTTL time.Duration
}

func NewUsers() *Users {
	return &Users{
		passwords: map[string]string{},
		ids:       map[string]string{},
		refresh:   map[string]string{},
		accessTTL: time.Hour,
	}
}

// SetAccessTTL changes the lifetime of access tokens issued from now on.
// A negative value makes them expired on arrival.
func (u *Users) SetAccessTTL(d time.Duration) {
	u.mu.Lock()
	u.accessTTL = d
	u.mu.Unlock()
}

func (u *Users) Register(_ context.Context, username, password string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if username == "" || password == "" {
		return nil, common.ErrInvalidInput
	}
	if _, ok := u.passwords[username]; ok {
		return nil, common.ErrorAlreadyExists
	}
	u.passwords[username] = password
	u.ids[username] = username
	return &models.User{ID: u.ids[username], UserName: username}, nil
}

func (u *Users) Login(_ context.Context, username, password string) (*services.TokenPair, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if pw, ok := u.passwords[username]; !ok || pw != password {
		return nil, common.ErrorUnauthorized
	}
	return u.issue(u.ids[username])
}

func (u *Users) RefreshToken(_ context.Context, token string) (*services.TokenPair, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	owner, ok := u.refresh[token]
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	delete(u.refresh, token)
	return u.issue(owner)
}

func (u *Users) issue(owner string) (*services.TokenPair, error) {
	access, err := auth.GenerateToken(owner, []byte(Secret), u.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, err
	}
	u.refresh[refresh] = owner
	return &services.TokenPair{OwnerID: owner, AccessToken: access, RefreshToken: refresh}, nil
}

// Records adapts a memory.Store to the server's RecordService.
type Records struct {
	*memory.Store

	mu   sync.Mutex
	fail error
}

func NewRecords() *Records { return &Records{Store: memory.New()} }

// FailWith makes every record call return err until called with nil.
func (r *Records) FailWith(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

func (r *Records) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fail
}

func (r *Records) Insert(ctx context.Context, ownerID string, blob []byte) (string, error) {
	if err := r.failure(); err != nil {
		return "", err
	}
	return r.Store.Insert(ctx, ownerID, blob)
}

func (r *Records) FetchAll(ctx context.Context, ownerID string) ([]storage.Record, error) {
	if err := r.failure(); err != nil {
		return nil, err
	}
	return r.Store.FetchAll(ctx, ownerID)
}

func (r *Records) Update(ctx context.Context, ownerID, id string, blob []byte) error {
	if err := r.failure(); err != nil {
		return err
	}
	return r.Store.Update(ctx, ownerID, id, blob)
}

func (r *Records) Delete(ctx context.Context, ownerID, id string) error {
	if err := r.failure(); err != nil {
		return err
	}
	return r.Store.Delete(ctx, ownerID, id)
}

func (r *Records) ReplaceBlobs(ctx context.Context, ownerID string, blobs map[string][]byte) error {
	if err := r.failure(); err != nil {
		return err
	}
	return r.Store.ReplaceBlobs(ctx, ownerID, blobs)
}

func (r *Records) GetParams(ctx context.Context, ownerID string) (*storage.Params, error) {
	if err := r.failure(); err != nil {
		return nil, err
	}
	return r.Store.LoadParams(ctx, ownerID)
}

func (r *Records) PutParams(ctx context.Context, ownerID string, p *storage.Params) error {
	if err := r.failure(); err != nil {
		return err
	}
	return r.Store.SaveParams(ctx, ownerID, p)
}

// Backend is a running test server.
type Backend struct {
	Users   *Users
	Records *Records
	Conn    *grpc.ClientConn
}

// Start serves a fresh backend over bufconn and returns a connected client.
// Everything is torn down by t.Cleanup.
func Start(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{Users: NewUsers(), Records: NewRecords()}
	srv := srvgrpc.NewGRPCServer("bufconn", logging.Discard(), b.Users, b.Records, Secret)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	b.Conn = conn

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})
	return b
}
