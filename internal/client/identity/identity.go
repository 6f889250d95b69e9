// Package identity authenticates the human operator and yields the opaque
// owner id the vault core works with. The core never sees these credentials.
package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/storage/remote"
)

// Provider authenticates the operator.
//
// Contract:
//   - Authenticate: verify the operator and return their owner id.
//   - SignOut: forget whatever the provider holds for ownerID.
//
// password is wiped by the caller; providers must not keep it.
type Provider interface {
	Authenticate(ctx context.Context, username string, password []byte) (string, error)
	SignOut(ownerID string)
}

// Registrar is implemented by providers that can create accounts.
type Registrar interface {
	Register(ctx context.Context, username string, password []byte) error
}

// Local is an offline profile: the owner id is the profile name and no
// password is checked. Access to the data is guarded by the master secret.
type Local struct{}

func (Local) Authenticate(_ context.Context, username string, _ []byte) (string, error) {
	name, err := normalize(username)
	if err != nil {
		return "", err
	}
	return name, nil
}

func (Local) SignOut(string) {}

// Remote logs in against the gophvault server. The tokens it obtains stay
// in the shared remote.Client, so a remote storage adapter built from the
// same client acts for the authenticated owner.
type Remote struct {
	client *remote.Client
}

var (
	_ Provider  = Local{}
	_ Provider  = (*Remote)(nil)
	_ Registrar = (*Remote)(nil)
)

// NewRemote wraps an existing client.
func NewRemote(c *remote.Client) *Remote {
	return &Remote{client: c}
}

func (r *Remote) Authenticate(ctx context.Context, username string, password []byte) (string, error) {
	name, err := normalize(username)
	if err != nil {
		return "", err
	}
	if len(password) == 0 {
		return "", fmt.Errorf("%w: empty password", common.ErrInvalidInput)
	}
	return r.client.Login(ctx, name, string(password))
}

func (r *Remote) Register(ctx context.Context, username string, password []byte) error {
	name, err := normalize(username)
	if err != nil {
		return err
	}
	if len(password) == 0 {
		return fmt.Errorf("%w: empty password", common.ErrInvalidInput)
	}
	return r.client.Register(ctx, name, string(password))
}

func (r *Remote) SignOut(ownerID string) {
	r.client.Logout(ownerID)
}

func normalize(username string) (string, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return "", fmt.Errorf("%w: empty user name", common.ErrInvalidInput)
	}
	return name, nil
}
