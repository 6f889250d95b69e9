package vault

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/storage"
)

// RecordError reports a single record that could not be decrypted or
// decoded. Err wraps common.ErrAuthenticationFailed or
// common.ErrMalformedRecord.
type RecordError struct {
	ID  string
	Err error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.ID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// CredentialStore is CRUD over encrypted records. Every call requires the
// session to be Unlocked and fails with common.ErrVaultLocked otherwise.
// Create, Update and Delete fail with ErrRekeyInProgress while the
// passphrase is being changed.
// Successful calls restart the session's idle window; failed or cancelled
// ones leave it alone.
type CredentialStore struct {
	session *Session
	records storage.RecordStore
	log     logging.Logger
}

// NewCredentialStore binds a store to a session.
func NewCredentialStore(session *Session, records storage.RecordStore) *CredentialStore {
	return &CredentialStore{
		session: session,
		records: records,
		log:     session.log.With("module", "credentials"),
	}
}

// Create encrypts c and inserts it. The returned record carries only the
// new id and owner; timestamps are assigned by the adapter and come back
// through ListAll and Get.
func (cs *CredentialStore) Create(ctx context.Context, c Credential) (storage.Record, error) {
	l, err := cs.session.acquireWrite()
	if err != nil {
		return storage.Record{}, err
	}
	defer cs.session.releaseWrite()

	blob, err := cs.sealCredential(l, c)
	if err != nil {
		return storage.Record{}, err
	}
	cs.logStrength(ctx, "create", c.Secret)

	id, err := cs.records.Insert(ctx, l.owner, blob)
	if err != nil {
		return storage.Record{}, storageError("insert", err)
	}
	cs.session.touch(l)

	return storage.Record{ID: id, OwnerID: l.owner}, nil
}

// ListAll fetches every record of the owner up front and returns a
// sequence that decrypts them one at a time. Records that fail to decrypt
// or decode are yielded as a *RecordError and iteration continues. If the
// session locks part way through, the sequence yields common.ErrVaultLocked
// once and stops; it cannot be resumed after a Lock.
func (cs *CredentialStore) ListAll(ctx context.Context) (iter.Seq2[Entry, error], error) {
	l, err := cs.session.acquire()
	if err != nil {
		return nil, err
	}

	recs, err := cs.records.FetchAll(ctx, l.owner)
	if err != nil {
		return nil, storageError("fetch", err)
	}
	cs.session.touch(l)

	return func(yield func(Entry, error) bool) {
		for _, rec := range recs {
			e, err := cs.decryptRecord(l, rec)
			if errors.Is(err, common.ErrVaultLocked) {
				yield(Entry{}, err)
				return
			}
			if err != nil {
				cs.log.Debug(ctx, "skipping unreadable record", "record", rec.ID, "error", err)
				if !yield(Entry{}, err) {
					return
				}
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}, nil
}

// Get returns the record with the given id.
func (cs *CredentialStore) Get(ctx context.Context, id string) (Entry, error) {
	l, err := cs.session.acquire()
	if err != nil {
		return Entry{}, err
	}

	recs, err := cs.records.FetchAll(ctx, l.owner)
	if err != nil {
		return Entry{}, storageError("fetch", err)
	}

	for _, rec := range recs {
		if rec.ID != id {
			continue
		}
		e, err := cs.decryptRecord(l, rec)
		if err != nil {
			return Entry{}, err
		}
		cs.session.touch(l)
		return e, nil
	}
	return Entry{}, common.ErrorNotFound
}

// Update replaces the record id with a fresh encryption of c. It fails with
// common.ErrorNotFound when id does not belong to the session's owner.
func (cs *CredentialStore) Update(ctx context.Context, id string, c Credential) error {
	l, err := cs.session.acquireWrite()
	if err != nil {
		return err
	}
	defer cs.session.releaseWrite()

	blob, err := cs.sealCredential(l, c)
	if err != nil {
		return err
	}
	cs.logStrength(ctx, "update", c.Secret)

	if err := cs.records.Update(ctx, l.owner, id, blob); err != nil {
		return storageError("update", err)
	}
	cs.session.touch(l)
	return nil
}

// Delete removes the record id. Deleting an id that does not exist is not
// an error.
func (cs *CredentialStore) Delete(ctx context.Context, id string) error {
	l, err := cs.session.acquireWrite()
	if err != nil {
		return err
	}
	defer cs.session.releaseWrite()

	if err := cs.records.Delete(ctx, l.owner, id); err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return storageError("delete", err)
		}
		cs.log.Debug(ctx, "delete of missing record", "record", id)
	}
	cs.session.touch(l)
	return nil
}

// Rekey changes the master passphrase of the session's vault.
func (cs *CredentialStore) Rekey(ctx context.Context, newPassphrase []byte) (RekeyResult, error) {
	return cs.session.Rekey(ctx, cs.records, newPassphrase)
}

func (cs *CredentialStore) sealCredential(l lease, c Credential) ([]byte, error) {
	pt, err := Encode(c)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(pt)

	return cs.session.seal(l, pt)
}

func (cs *CredentialStore) decryptRecord(l lease, rec storage.Record) (Entry, error) {
	pt, err := cs.session.open(l, rec.Blob)
	if errors.Is(err, common.ErrVaultLocked) {
		return Entry{}, err
	}
	if err != nil {
		return Entry{}, &RecordError{ID: rec.ID, Err: err}
	}
	defer common.WipeByteArray(pt)

	c, err := Decode(pt)
	if err != nil {
		return Entry{}, &RecordError{ID: rec.ID, Err: err}
	}
	return Entry{ID: rec.ID, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt, Credential: c}, nil
}

func (cs *CredentialStore) logStrength(ctx context.Context, op string, secret []byte) {
	st := Evaluate(secret)
	cs.log.Debug(ctx, "secret strength", "op", op, "score", st.Score, "label", st.Label)
}

// storageError wraps adapter failures as common.ErrStorageUnavailable.
// common.ErrorNotFound is passed through unchanged.
func storageError(op string, err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", common.ErrStorageUnavailable, op, err)
}

// Collect drains seq into the readable entries and the per-record errors.
func Collect(seq iter.Seq2[Entry, error]) ([]Entry, []error) {
	var (
		entries []Entry
		errs    []error
	)
	for e, err := range seq {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, errs
}
