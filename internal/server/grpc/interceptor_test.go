package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/api"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func newTestServer(secret string) *GRPCServer {
	return NewGRPCServer("", logging.Discard(), nil, nil, secret)
}

func incoming(kv ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(kv...))
}

func token(t *testing.T, owner, secret string, ttl time.Duration) string {
	t.Helper()
	tok, err := auth.GenerateToken(owner, []byte(secret), ttl)
	require.NoError(t, err)
	return tok
}

func TestInterceptor_PublicMethodsSkipAuth(t *testing.T) {
	s := newTestServer("secret")

	for _, m := range []string{api.MethodRegister, api.MethodLogin, api.MethodRefreshToken, "/grpc.health.v1.Health/Check"} {
		called := false
		h := func(ctx context.Context, req any) (any, error) {
			called = true
			_, err := ownerFromContext(ctx)
			assert.Error(t, err)
			return "ok", nil
		}
		resp, err := s.accessTokenInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: m}, h)
		require.NoError(t, err, m)
		assert.Equal(t, "ok", resp)
		assert.True(t, called, m)
	}
}

func TestInterceptor_ProtectedMethod(t *testing.T) {
	s := newTestServer("secret")
	info := &grpc.UnaryServerInfo{FullMethod: api.MethodInsert}

	tests := []struct {
		name string
		ctx  context.Context
		code codes.Code
	}{
		{"no metadata", context.Background(), codes.Unauthenticated},
		{"empty token", incoming(common.AccessTokenHeaderName, ""), codes.Unauthenticated},
		{"garbage token", incoming(common.AccessTokenHeaderName, "not.a.jwt"), codes.Unauthenticated},
		{"wrong secret", incoming(common.AccessTokenHeaderName, token(t, "alice", "other", time.Hour)), codes.Unauthenticated},
		{"expired", incoming(common.AccessTokenHeaderName, token(t, "alice", "secret", -time.Minute)), codes.Unauthenticated},
		{"owner mismatch", incoming(
			common.AccessTokenHeaderName, token(t, "alice", "secret", time.Hour),
			common.OwnerIDHeaderName, "bob",
		), codes.PermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := func(ctx context.Context, req any) (any, error) {
				t.Fatal("handler must not run")
				return nil, nil
			}
			_, err := s.accessTokenInterceptor(tt.ctx, nil, info, h)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestInterceptor_PutsOwnerInContext(t *testing.T) {
	s := newTestServer("secret")
	info := &grpc.UnaryServerInfo{FullMethod: api.MethodFetchAll}

	for _, ctx := range []context.Context{
		incoming(common.AccessTokenHeaderName, token(t, "alice", "secret", time.Hour)),
		incoming(common.AccessTokenHeaderName, token(t, "alice", "secret", time.Hour), common.OwnerIDHeaderName, "alice"),
	} {
		var got string
		h := func(ctx context.Context, req any) (any, error) {
			var err error
			got, err = ownerFromContext(ctx)
			return nil, err
		}
		_, err := s.accessTokenInterceptor(ctx, nil, info, h)
		require.NoError(t, err)
		assert.Equal(t, "alice", got)
	}
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func TestStreamInterceptor(t *testing.T) {
	s := newTestServer("secret")
	info := &grpc.StreamServerInfo{FullMethod: api.MethodFetchAll, IsServerStream: true}

	err := s.streamAccessTokenInterceptor(nil, &fakeStream{ctx: context.Background()}, info, func(any, grpc.ServerStream) error {
		t.Fatal("handler must not run")
		return nil
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	var got string
	ctx := incoming(common.AccessTokenHeaderName, token(t, "carol", "secret", time.Hour))
	err = s.streamAccessTokenInterceptor(nil, &fakeStream{ctx: ctx}, info, func(_ any, ss grpc.ServerStream) error {
		var err error
		got, err = ownerFromContext(ss.Context())
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "carol", got)
}
