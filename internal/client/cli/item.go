package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/vault"
)

// defaultGeneratedLength is used by "generate" and "add" when no length is given.
const defaultGeneratedLength = 20

// List prints the owner's credentials and remembers them for numeric
// references. Unreadable records are reported one by one.
func (a *App) List(ctx context.Context) error {
	seq, err := a.creds.ListAll(ctx)
	if err != nil {
		return err
	}

	var (
		rows       []listing
		unreadable int
	)
	for e, err := range seq {
		if err != nil {
			var recErr *vault.RecordError
			if errors.As(err, &recErr) {
				unreadable++
				a.printf("  !  %s: %v\n", recErr.ID, recErr.Err)
				continue
			}
			return err
		}
		rows = append(rows, listing{ID: e.ID, Name: e.Name, Username: e.Username})
		e.Wipe()
		a.printf("%3d  %-24s %-24s %s\n", len(rows), e.Name, e.Username, e.ID)
	}
	a.setCache(rows)

	switch {
	case len(rows) == 0 && unreadable == 0:
		a.printf("The vault is empty.\n")
	case len(rows) == 0:
		a.printf("No record could be read. If this is unexpected, lock and unlock with the right master secret.\n")
	}
	return nil
}

// Show prints one credential. The secret is masked unless reveal is set.
func (a *App) Show(ctx context.Context, ref string, reveal bool) error {
	e, err := a.get(ctx, ref)
	if err != nil {
		return err
	}
	defer e.Wipe()

	secret := "********"
	if reveal {
		secret = string(e.Secret)
	}
	a.printf("Name:     %s\n", e.Name)
	a.printf("Username: %s\n", e.Username)
	a.printf("Secret:   %s\n", secret)
	a.printf("Strength: %s\n", vault.Evaluate(e.Secret).Label)
	a.printf("Created:  %s\n", e.CreatedAt.Local().Format(time.DateTime))
	a.printf("Updated:  %s\n", e.UpdatedAt.Local().Format(time.DateTime))
	a.printf("ID:       %s\n", e.ID)
	return nil
}

// Add prompts for a new credential and stores it.
func (a *App) Add(ctx context.Context) error {
	if a.session.State() != vault.StateUnlocked {
		return common.ErrVaultLocked
	}

	name, err := a.text("Name")
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", common.ErrInvalidInput)
	}
	userName, err := a.text("Username")
	if err != nil {
		return err
	}
	secret, err := a.askSecret(false)
	if err != nil {
		return err
	}

	c := vault.Credential{Name: name, Username: userName, Secret: secret}
	defer c.Wipe()

	rec, err := a.creds.Create(ctx, c)
	if err != nil {
		return err
	}
	a.dropCache()
	a.printf("Saved %s (strength: %s).\n", rec.ID, vault.Evaluate(c.Secret).Label)
	return nil
}

// Update edits a credential field by field; empty answers keep the
// current value.
func (a *App) Update(ctx context.Context, ref string) error {
	e, err := a.get(ctx, ref)
	if err != nil {
		return err
	}
	defer e.Wipe()

	name, err := a.text(fmt.Sprintf("Name [%s]", e.Name))
	if err != nil {
		return err
	}
	userName, err := a.text(fmt.Sprintf("Username [%s]", e.Username))
	if err != nil {
		return err
	}
	secret, err := a.askSecret(true)
	if err != nil {
		return err
	}

	c := vault.Credential{Name: e.Name, Username: e.Username}
	if name != "" {
		c.Name = name
	}
	if userName != "" {
		c.Username = userName
	}
	if len(secret) > 0 {
		c.Secret = secret
	} else {
		c.Secret = append([]byte(nil), e.Secret...)
	}
	defer c.Wipe()

	if err := a.creds.Update(ctx, e.ID, c); err != nil {
		return err
	}
	a.printf("Updated %s.\n", e.ID)
	return nil
}

// Delete removes a credential after confirmation.
func (a *App) Delete(ctx context.Context, ref string) error {
	id, err := a.resolve(ref)
	if err != nil {
		return err
	}
	ok, err := confirm(a.reader, fmt.Sprintf("Delete %s?", id), a.out)
	if err != nil {
		return err
	}
	if !ok {
		a.printf("Cancelled.\n")
		return nil
	}
	if err := a.creds.Delete(ctx, id); err != nil {
		return err
	}
	a.dropCache()
	a.printf("Deleted %s.\n", id)
	return nil
}

// Copy puts a secret on the clipboard; it is cleared again after the
// configured delay.
func (a *App) Copy(ctx context.Context, ref string) error {
	e, err := a.get(ctx, ref)
	if err != nil {
		return err
	}
	defer e.Wipe()

	if err := a.clipboard.CopySecret(e.Secret); err != nil {
		return err
	}
	a.printf("Secret of %q copied, the clipboard is cleared in %s.\n", e.Name, a.clipboard.Delay())
	return nil
}

// Generate prints a random secret. It needs no session.
func (a *App) Generate(_ context.Context, length string) error {
	n := defaultGeneratedLength
	if length != "" {
		v, err := strconv.Atoi(length)
		if err != nil {
			return fmt.Errorf("%w: length %q", common.ErrInvalidInput, length)
		}
		n = v
	}

	secret, err := vault.Generate(n)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	a.printf("%s\n", secret)
	a.printf("Strength: %s\n", vault.Evaluate(secret).Label)
	return nil
}

// askSecret reads a secret or generates one. With keepable set an empty
// answer means "keep the current secret" and yields nil.
func (a *App) askSecret(keepable bool) ([]byte, error) {
	gen, err := confirm(a.reader, "Generate a random secret?", a.out)
	if err != nil {
		return nil, err
	}
	if gen {
		return vault.Generate(defaultGeneratedLength)
	}

	prompt := "Secret"
	if keepable {
		prompt = "Secret (empty keeps the current one)"
	}
	secret, err := a.secret(prompt)
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 && !keepable {
		return nil, fmt.Errorf("%w: secret must not be empty", common.ErrInvalidInput)
	}
	if len(secret) > 0 {
		if s := vault.Evaluate(secret); s.Score < 3 {
			a.printf("Warning: this secret is %s.\n", s.Label)
		}
	}
	return secret, nil
}

// get resolves ref and decrypts the record.
func (a *App) get(ctx context.Context, ref string) (vault.Entry, error) {
	id, err := a.resolve(ref)
	if err != nil {
		return vault.Entry{}, err
	}
	return a.creds.Get(ctx, id)
}

// resolve maps a 1-based index into the last listing to a record id.
// Anything else is taken as an id.
func (a *App) resolve(ref string) (string, error) {
	if a.session.State() != vault.StateUnlocked {
		return "", common.ErrVaultLocked
	}
	n, err := strconv.Atoi(ref)
	if err != nil {
		return ref, nil
	}
	rows := a.cached()
	if n < 1 || n > len(rows) {
		return "", fmt.Errorf("%w: no entry %d in the last listing, run 'list'", common.ErrInvalidInput, n)
	}
	return rows[n-1].ID, nil
}
