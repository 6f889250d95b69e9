package vault

import (
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
)

// Credential is a decrypted name/username/secret triple. It only ever lives
// in memory; call Wipe once it is no longer needed.
type Credential struct {
	Name     string
	Username string
	Secret   []byte
}

// Wipe zeroes the secret bytes in place.
func (c *Credential) Wipe() {
	common.WipeByteArray(c.Secret)
	c.Secret = nil
}

// Entry is a Credential together with the metadata of the record it was
// decrypted from.
type Entry struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Credential
}
