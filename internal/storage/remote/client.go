// Package remote is the storage adapter backed by the gophvault server.
// Records cross the wire as the same opaque blobs the other adapters
// persist; the server never sees plaintext or key material.
package remote

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/gophvault/internal/api"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client holds the connection and the token pairs of every owner logged
// in through it.
type Client struct {
	api    *api.RecordStoreClient
	closer io.Closer

	mu       sync.Mutex
	sessions map[string]api.Tokens
}

// Dial connects to addr. Without options the connection is plaintext.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client: %w", err)
	}
	c := NewClient(conn)
	c.closer = conn
	return c, nil
}

// NewClient wraps an existing connection. Close does not close cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{
		api:      api.NewRecordStoreClient(cc),
		sessions: make(map[string]api.Tokens),
	}
}

// Close closes a connection opened by Dial.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Register creates a server account.
func (c *Client) Register(ctx context.Context, username, password string) error {
	_, err := c.api.Register(ctx, api.CredentialsToStruct(api.Credentials{Username: username, Password: password}))
	return api.FromStatus(err)
}

// Login authenticates and returns the owner id the server assigned.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	resp, err := c.api.Login(ctx, api.CredentialsToStruct(api.Credentials{Username: username, Password: password}))
	if err != nil {
		return "", api.FromStatus(err)
	}
	tokens, err := api.TokensFromStruct(resp)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.sessions[tokens.OwnerID] = tokens
	c.mu.Unlock()
	return tokens.OwnerID, nil
}

// Logout forgets the tokens held for ownerID.
func (c *Client) Logout(ownerID string) {
	c.mu.Lock()
	delete(c.sessions, ownerID)
	c.mu.Unlock()
}

// Refresh trades the owner's refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, ownerID string) error {
	c.mu.Lock()
	tokens, ok := c.sessions[ownerID]
	c.mu.Unlock()
	if !ok {
		return common.ErrorUnauthorized
	}

	resp, err := c.api.RefreshToken(ctx, wrapperspb.String(tokens.RefreshToken))
	if err != nil {
		return api.FromStatus(err)
	}
	fresh, err := api.TokensFromStruct(resp)
	if err != nil {
		return err
	}
	if fresh.OwnerID != ownerID {
		return fmt.Errorf("%w: refreshed token belongs to another owner", common.ErrorUnauthorized)
	}

	c.mu.Lock()
	c.sessions[ownerID] = fresh
	c.mu.Unlock()
	return nil
}

func (c *Client) authorize(ctx context.Context, ownerID string) (context.Context, error) {
	c.mu.Lock()
	tokens, ok := c.sessions[ownerID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: not logged in as %s", common.ErrorUnauthorized, ownerID)
	}
	return metadata.AppendToOutgoingContext(ctx,
		common.AccessTokenHeaderName, tokens.AccessToken,
		common.OwnerIDHeaderName, ownerID,
	), nil
}

// call runs fn with the owner's credentials. An Unauthenticated answer
// triggers one token refresh and one retry.
func (c *Client) call(ctx context.Context, ownerID string, fn func(ctx context.Context) error) error {
	authCtx, err := c.authorize(ctx, ownerID)
	if err != nil {
		return err
	}

	err = fn(authCtx)
	if status.Code(err) == codes.Unauthenticated {
		if rerr := c.Refresh(ctx, ownerID); rerr == nil {
			if authCtx, aerr := c.authorize(ctx, ownerID); aerr == nil {
				err = fn(authCtx)
			}
		}
	}
	return api.FromStatus(err)
}

// Store returns the storage adapter over this client.
func (c *Client) Store() *Store {
	return &Store{c: c}
}
