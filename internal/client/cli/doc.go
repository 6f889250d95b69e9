// Package cli is the interactive gophvault client.
//
// It wires configuration, a storage backend, an identity provider and a
// vault session into a line-oriented REPL:
//
//	login -> unlock -> list / show / add / update / delete / copy -> lock | logout
//
// Session events (idle lock, sign-out) are printed as they happen, and the
// cached listing used for numeric references is dropped on every lock.
package cli
