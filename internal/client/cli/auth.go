package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/client/identity"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/vault"
)

var (
	errNoAccounts      = errors.New("this store has no accounts, just login")
	errAlreadySignedIn = errors.New("already signed in, logout first")
	errNotSignedIn     = errors.New("not signed in, type 'login'")
	errMismatch        = errors.New("secrets do not match")
)

// Register creates an account with a provider that supports it.
func (a *App) Register(ctx context.Context) error {
	reg, ok := a.identity.(identity.Registrar)
	if !ok {
		return errNoAccounts
	}

	userName, err := a.text("Enter user name")
	if err != nil {
		return err
	}
	password, err := a.secret("Account password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := reg.Register(ctx, userName, password); err != nil {
		return err
	}
	a.printf("Account created, type 'login' to sign in.\n")
	return nil
}

// Login authenticates with the identity provider and goes straight on to
// the master secret prompt.
func (a *App) Login(ctx context.Context) error {
	if a.session.State() != vault.StateLoggedOut {
		return errAlreadySignedIn
	}

	userName, err := a.text("Enter user name")
	if err != nil {
		return err
	}

	var password []byte
	if _, hasAccounts := a.identity.(identity.Registrar); hasAccounts {
		password, err = a.secret("Account password")
		if err != nil {
			return err
		}
		defer common.WipeByteArray(password)
	}

	owner, err := a.identity.Authenticate(ctx, userName, password)
	if err != nil {
		return err
	}
	if err := a.session.SignIn(owner); err != nil {
		a.identity.SignOut(owner)
		return err
	}
	a.logger.Debug(ctx, "signed in", "owner", owner)
	return a.Unlock(ctx)
}

// Unlock asks for the master secret. The passphrase buffer is wiped by the
// session.
func (a *App) Unlock(ctx context.Context) error {
	switch a.session.State() {
	case vault.StateLoggedOut:
		return errNotSignedIn
	case vault.StateUnlocked:
		a.printf("Vault is already unlocked.\n")
		return nil
	}

	passphrase, err := a.secret("Master secret")
	if err != nil {
		return err
	}
	if err := a.session.Unlock(ctx, passphrase); err != nil {
		return err
	}
	a.printf("Vault unlocked, it locks after %s without activity.\n", a.config.IdleWindow)
	return nil
}

// Lock forgets the key and the cached listing.
func (a *App) Lock(context.Context) error {
	if err := a.session.Lock(); err != nil {
		if errors.Is(err, vault.ErrInvalidTransition) {
			return errNotSignedIn
		}
		return err
	}
	a.dropCache()
	a.printf("Vault locked.\n")
	return nil
}

// Logout signs out of the session and the identity provider.
func (a *App) Logout(context.Context) error {
	if a.session.State() == vault.StateLoggedOut {
		return errNotSignedIn
	}
	a.signOut()
	a.printf("Signed out.\n")
	return nil
}

func (a *App) signOut() {
	owner := a.session.Status().OwnerID
	a.session.SignOut()
	if owner != "" {
		a.identity.SignOut(owner)
	}
	a.clipboard.Clear()
	a.dropCache()
}

// Passwd changes the master secret and re-encrypts the vault.
func (a *App) Passwd(ctx context.Context) error {
	if a.session.State() != vault.StateUnlocked {
		return common.ErrVaultLocked
	}

	first, err := a.secret("New master secret")
	if err != nil {
		return err
	}
	second, err := a.secret("Repeat new master secret")
	if err != nil {
		common.WipeByteArray(first)
		return err
	}
	same := bytes.Equal(first, second)
	common.WipeByteArray(second)
	if !same {
		common.WipeByteArray(first)
		return errMismatch
	}

	res, err := a.creds.Rekey(ctx, first)
	if err != nil {
		return err
	}
	a.dropCache()
	a.printf("Master secret changed, %d record(s) re-encrypted.\n", res.Rekeyed)
	if len(res.Skipped) > 0 {
		a.printf("%d unreadable record(s) were left as they were:\n", len(res.Skipped))
		for _, id := range res.Skipped {
			a.printf("  %s\n", id)
		}
	}
	return nil
}

// Status prints the session state.
func (a *App) Status(context.Context) error {
	st := a.session.Status()
	a.printf("State:   %s\n", st.State)
	if st.OwnerID != "" {
		a.printf("Owner:   %s\n", st.OwnerID)
	}
	if st.State == vault.StateUnlocked {
		a.printf("Locks:   in %s\n", time.Until(st.ExpiresAt).Round(time.Second))
	}
	a.printf("Store:   %s\n", a.config.Store)
	return nil
}

// describe turns errors into something an operator can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, common.ErrVaultLocked):
		return "vault is locked, type 'unlock'"
	case errors.Is(err, common.ErrInvalidMasterSecret):
		return "master secret rejected: " + err.Error()
	case errors.Is(err, common.ErrStorageUnavailable):
		return "storage unavailable, try again: " + err.Error()
	case errors.Is(err, common.ErrorUnauthorized):
		return "not authorized: " + err.Error()
	case errors.Is(err, common.ErrorNotFound):
		return "no such credential"
	case errors.Is(err, common.ErrorAlreadyExists):
		return "that account already exists"
	default:
		return fmt.Sprint(err)
	}
}
