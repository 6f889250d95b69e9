// Package models defines server-side rows persisted in PostgreSQL.
package models

import "time"

// User is an account that owns a vault. PasswordHash is an argon2id
// encoded hash of the account password, which is unrelated to the vault
// passphrase.
type User struct {
	ID           string
	UserName     string
	PasswordHash string
	CreatedAt    time.Time
}
