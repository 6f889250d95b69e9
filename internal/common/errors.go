// Package common defines shared constants, sentinel errors and small helpers
// used across the vault core, the storage adapters and the server. Callers
// should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Vault core errors.
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidMasterSecret  = errors.New("invalid master secret")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrMalformedRecord      = errors.New("malformed record")
	ErrVaultLocked          = errors.New("vault locked")

	// Adapter I/O failure; the only class callers may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
