package grpc_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/dmitrijs2005/gophvault/internal/api"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/server/grpc/grpctest"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func login(t *testing.T, c *api.RecordStoreClient, user string) (context.Context, api.Tokens) {
	t.Helper()
	ctx := context.Background()
	creds := api.CredentialsToStruct(api.Credentials{Username: user, Password: "pw-" + user})

	_, err := c.Register(ctx, creds)
	require.NoError(t, err)
	resp, err := c.Login(ctx, creds)
	require.NoError(t, err)
	tok, err := api.TokensFromStruct(resp)
	require.NoError(t, err)

	return metadata.AppendToOutgoingContext(ctx,
		common.AccessTokenHeaderName, tok.AccessToken,
		common.OwnerIDHeaderName, tok.OwnerID,
	), tok
}

func fetchAll(t *testing.T, ctx context.Context, c *api.RecordStoreClient, owner string) []storage.Record {
	t.Helper()
	stream, err := c.FetchAll(ctx, &emptypb.Empty{})
	require.NoError(t, err)

	var out []storage.Record
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		rec, err := api.RecordFromStruct(owner, msg)
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestHandlers_RecordLifecycle(t *testing.T) {
	b := grpctest.Start(t)
	c := api.NewRecordStoreClient(b.Conn)
	ctx, tok := login(t, c, "alice")

	id, err := c.Insert(ctx, wrapperspb.Bytes([]byte("blob-1")))
	require.NoError(t, err)
	_, err = c.Insert(ctx, wrapperspb.Bytes([]byte("blob-2")))
	require.NoError(t, err)

	recs := fetchAll(t, ctx, c, tok.OwnerID)
	require.Len(t, recs, 2)
	assert.Equal(t, id.GetValue(), recs[0].ID)
	assert.Equal(t, []byte("blob-2"), recs[1].Blob)

	_, err = c.Update(ctx, api.UpdateToStruct(id.GetValue(), []byte("blob-1b")))
	require.NoError(t, err)

	_, err = c.ReplaceBlobs(ctx, api.BlobsToStruct(map[string][]byte{recs[0].ID: []byte("r1"), recs[1].ID: []byte("r2")}))
	require.NoError(t, err)
	recs = fetchAll(t, ctx, c, tok.OwnerID)
	assert.Equal(t, []byte("r1"), recs[0].Blob)
	assert.Equal(t, []byte("r2"), recs[1].Blob)

	_, err = c.Delete(ctx, wrapperspb.String(id.GetValue()))
	require.NoError(t, err)
	_, err = c.Delete(ctx, wrapperspb.String(id.GetValue()))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.Update(ctx, api.UpdateToStruct("missing", []byte("x")))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestHandlers_OwnersAreIsolated(t *testing.T) {
	b := grpctest.Start(t)
	c := api.NewRecordStoreClient(b.Conn)
	aliceCtx, _ := login(t, c, "alice")
	bobCtx, bob := login(t, c, "bob")

	id, err := c.Insert(aliceCtx, wrapperspb.Bytes([]byte("secret")))
	require.NoError(t, err)

	assert.Empty(t, fetchAll(t, bobCtx, c, bob.OwnerID))

	_, err = c.Update(bobCtx, api.UpdateToStruct(id.GetValue(), []byte("mine now")))
	assert.Equal(t, codes.NotFound, status.Code(err))
	_, err = c.Delete(bobCtx, wrapperspb.String(id.GetValue()))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestHandlers_Params(t *testing.T) {
	b := grpctest.Start(t)
	c := api.NewRecordStoreClient(b.Conn)
	ctx, _ := login(t, c, "alice")

	_, err := c.GetParams(ctx, &emptypb.Empty{})
	assert.Equal(t, codes.NotFound, status.Code(err))

	p := &storage.Params{Salt: []byte("0123456789abcdef"), Iterations: 100000, Cipher: "aes-256-gcm", Canary: []byte{1}}
	_, err = c.PutParams(ctx, api.ParamsToStruct(p))
	require.NoError(t, err)

	resp, err := c.GetParams(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	got, err := api.ParamsFromStruct(resp)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestHandlers_Auth(t *testing.T) {
	b := grpctest.Start(t)
	c := api.NewRecordStoreClient(b.Conn)
	ctx := context.Background()

	_, err := c.Insert(ctx, wrapperspb.Bytes([]byte("x")))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	stream, err := c.FetchAll(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = c.Login(ctx, api.CredentialsToStruct(api.Credentials{Username: "nobody", Password: "x"}))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, tok := login(t, c, "alice")
	_, err = c.Register(ctx, api.CredentialsToStruct(api.Credentials{Username: "alice", Password: "again"}))
	assert.Equal(t, codes.AlreadyExists, status.Code(err))

	spoofed := metadata.AppendToOutgoingContext(ctx,
		common.AccessTokenHeaderName, tok.AccessToken,
		common.OwnerIDHeaderName, "bob",
	)
	_, err = c.Insert(spoofed, wrapperspb.Bytes([]byte("x")))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	resp, err := c.RefreshToken(ctx, wrapperspb.String(tok.RefreshToken))
	require.NoError(t, err)
	fresh, err := api.TokensFromStruct(resp)
	require.NoError(t, err)
	assert.Equal(t, tok.OwnerID, fresh.OwnerID)

	_, err = c.RefreshToken(ctx, wrapperspb.String(tok.RefreshToken))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestHandlers_BadRequests(t *testing.T) {
	b := grpctest.Start(t)
	c := api.NewRecordStoreClient(b.Conn)
	ctx, _ := login(t, c, "alice")

	_, err := c.PutParams(ctx, api.UpdateToStruct("x", nil))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Login(context.Background(), api.UpdateToStruct("x", nil))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestHandlers_BackendFailureIsInternal(t *testing.T) {
	b := grpctest.Start(t)
	c := api.NewRecordStoreClient(b.Conn)
	ctx, _ := login(t, c, "alice")

	b.Records.FailWith(errors.New("connection refused"))
	_, err := c.Insert(ctx, wrapperspb.Bytes([]byte("x")))
	st, _ := status.FromError(err)
	assert.Equal(t, codes.Internal, st.Code())
	assert.NotContains(t, st.Message(), "connection refused")
}

func TestHealth(t *testing.T) {
	b := grpctest.Start(t)

	resp, err := healthpb.NewHealthClient(b.Conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: api.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
