// Package vault is the client-side core of gophvault.
//
// A Session owns the derived key and the lock state machine:
//
//	LoggedOut -> AwaitingMasterSecret -> Unlocked <-> Locked
//
// and a CredentialStore turns plain credentials into opaque blobs (Encode,
// then Seal under the session key) before handing them to a storage adapter.
// The key never leaves the Session; the store only ever borrows it for a
// single Seal or Open.
package vault
