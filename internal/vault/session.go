package vault

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/storage"
)

// DefaultIdleWindow is how long an unlocked vault stays unlocked without use.
const DefaultIdleWindow = 15 * time.Minute

// ErrInvalidTransition is returned when an operation is not allowed in the
// session's current state.
var ErrInvalidTransition = errors.New("invalid session transition")

// ErrRekeyInProgress is returned by writes attempted while the passphrase
// is being changed.
var ErrRekeyInProgress = errors.New("passphrase change in progress")

var canaryPlaintext = []byte("gophvault-canary-v1")

// State is the lock state of a Session.
type State int

const (
	StateLoggedOut State = iota
	StateAwaitingMasterSecret
	StateUnlocked
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged out"
	case StateAwaitingMasterSecret:
		return "awaiting master secret"
	case StateUnlocked:
		return "unlocked"
	case StateLocked:
		return "locked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EventKind identifies a session transition.
type EventKind int

const (
	EventSignedIn EventKind = iota
	EventUnlocked
	EventLocked
	EventRekeyed
	EventSignedOut
)

func (k EventKind) String() string {
	switch k {
	case EventSignedIn:
		return "signed in"
	case EventUnlocked:
		return "unlocked"
	case EventLocked:
		return "locked"
	case EventRekeyed:
		return "rekeyed"
	case EventSignedOut:
		return "signed out"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Lock reasons carried by EventLocked.
const (
	ReasonManual = "manual"
	ReasonIdle   = "idle"
)

// Event is published on every state transition.
type Event struct {
	Kind   EventKind
	State  State
	Reason string
	At     time.Time
}

// Status is a point-in-time view of a Session.
type Status struct {
	State     State
	OwnerID   string
	ExpiresAt time.Time
}

// Session is the per-identity lock state machine. It is the only holder of
// the derived key. All transitions are serialised by mu; unlockMu
// additionally serialises the slow Unlock and Rekey paths so that two of them
// never race on the owner's vault parameters. Record writes are counted in
// writers; Rekey refuses new writes and waits for in-flight ones to land
// before it reads the records it re-encrypts.
type Session struct {
	params     storage.ParamsStore
	clock      Clock
	log        logging.Logger
	idleWindow time.Duration
	iterations int
	cipher     cryptox.Cipher
	strict     bool

	unlockMu sync.Mutex

	mu        sync.Mutex
	state     State
	owner     string
	key       *memguard.Enclave
	suite     cryptox.Cipher
	expiresAt time.Time
	timer     Timer
	epoch     uint64
	rekeying  bool
	writers   int
	idle      *sync.Cond

	events chan Event
}

// Option configures a Session.
type Option func(*Session)

// WithIdleWindow sets the sliding expiry window.
func WithIdleWindow(d time.Duration) Option {
	return func(s *Session) { s.idleWindow = d }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithLogger sets the session logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithIterations sets the PBKDF2 iteration count used when a vault is
// initialised or rekeyed. Existing vaults keep their stored count.
func WithIterations(n int) Option {
	return func(s *Session) { s.iterations = n }
}

// WithCipher sets the suite used for new vaults and rekeys.
func WithCipher(c cryptox.Cipher) Option {
	return func(s *Session) { s.cipher = c }
}

// WithStrictKeyCheck makes Unlock verify the stored canary and reject a
// wrong passphrase with common.ErrInvalidMasterSecret instead of unlocking
// optimistically.
func WithStrictKeyCheck() Option {
	return func(s *Session) { s.strict = true }
}

// NewSession returns a LoggedOut session whose vault parameters live in params.
func NewSession(params storage.ParamsStore, opts ...Option) (*Session, error) {
	s := &Session{
		params:     params,
		clock:      RealClock(),
		log:        logging.Discard(),
		idleWindow: DefaultIdleWindow,
		iterations: cryptox.DefaultIterations,
		cipher:     cryptox.NewAESGCM(),
		events:     make(chan Event, 32),
	}
	s.idle = sync.NewCond(&s.mu)
	for _, o := range opts {
		o(s)
	}

	if s.params == nil {
		return nil, fmt.Errorf("%w: params store is required", common.ErrInvalidInput)
	}
	if s.idleWindow <= 0 {
		return nil, fmt.Errorf("%w: idle window must be positive", common.ErrInvalidInput)
	}
	if s.iterations < cryptox.MinIterations {
		return nil, fmt.Errorf("%w: iterations must be at least %d", common.ErrInvalidInput, cryptox.MinIterations)
	}
	s.log = s.log.With("module", "session")
	return s, nil
}

// Events delivers transitions as they happen. The channel is buffered and
// never closed; events are dropped when nobody drains it.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Status reports the current state. An expired but not yet collected
// session is reported as Locked.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDueLocked()
	return Status{State: s.state, OwnerID: s.owner, ExpiresAt: s.expiresAt}
}

// State is shorthand for Status().State.
func (s *Session) State() State {
	return s.Status().State
}

// SignIn binds the session to an owner confirmed by the identity provider.
func (s *Session) SignIn(ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("%w: empty owner id", common.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoggedOut {
		return fmt.Errorf("%w: sign in while %s", ErrInvalidTransition, s.state)
	}
	s.owner = ownerID
	s.state = StateAwaitingMasterSecret
	s.epoch++
	s.emitLocked(EventSignedIn, "")
	s.log.Info(context.Background(), "signed in", "owner", ownerID)
	return nil
}

// Unlock derives the key from passphrase and enters Unlocked. On the first
// unlock of an owner's vault the parameters are created with a fresh salt.
// passphrase is wiped before Unlock returns.
//
// Malformed passphrases fail with common.ErrInvalidMasterSecret and leave
// the state unchanged. Without strict key checking a wrong passphrase still
// unlocks; every record then fails with common.ErrAuthenticationFailed.
func (s *Session) Unlock(ctx context.Context, passphrase []byte) error {
	defer common.WipeByteArray(passphrase)

	s.unlockMu.Lock()
	defer s.unlockMu.Unlock()

	s.mu.Lock()
	if s.state != StateAwaitingMasterSecret && s.state != StateLocked {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: unlock while %s", ErrInvalidTransition, st)
	}
	owner, epoch := s.owner, s.epoch
	s.mu.Unlock()

	params, fresh, err := s.loadParams(ctx, owner)
	if err != nil {
		return err
	}

	suite, err := cryptox.CipherByName(params.Cipher)
	if err != nil {
		return fmt.Errorf("vault parameters: %w", err)
	}

	key, err := cryptox.DeriveKey(passphrase, params.Salt, params.Iterations)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidMasterSecret, err)
	}
	defer common.WipeByteArray(key)

	if fresh {
		params.Canary, err = suite.Seal(key, canaryPlaintext)
		if err != nil {
			return fmt.Errorf("seal canary: %w", err)
		}
		if err := s.params.SaveParams(ctx, owner, params); err != nil {
			return fmt.Errorf("%w: save vault parameters: %w", common.ErrStorageUnavailable, err)
		}
		s.log.Info(ctx, "vault initialised", "owner", owner, "cipher", suite.Name(), "iterations", params.Iterations)
	} else if s.strict && len(params.Canary) > 0 {
		if err := checkCanary(suite, key, params.Canary); err != nil {
			s.log.Warn(ctx, "unlock rejected", "owner", owner)
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch || (s.state != StateAwaitingMasterSecret && s.state != StateLocked) {
		return fmt.Errorf("%w: session changed during unlock", ErrInvalidTransition)
	}
	s.key = memguard.NewEnclave(key)
	s.suite = suite
	s.state = StateUnlocked
	s.epoch++
	s.armLocked()
	s.emitLocked(EventUnlocked, "")
	s.log.Info(ctx, "vault unlocked", "owner", owner)
	return nil
}

func (s *Session) loadParams(ctx context.Context, owner string) (*storage.Params, bool, error) {
	params, err := s.params.LoadParams(ctx, owner)
	if err == nil {
		if len(params.Salt) == 0 || params.Iterations == 0 {
			return nil, false, fmt.Errorf("%w: incomplete vault parameters", common.ErrMalformedRecord)
		}
		return params, false, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, false, fmt.Errorf("%w: load vault parameters: %w", common.ErrStorageUnavailable, err)
	}

	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return nil, false, err
	}
	return &storage.Params{Salt: salt, Iterations: s.iterations, Cipher: s.cipher.Name()}, true, nil
}

func checkCanary(suite cryptox.Cipher, key, canary []byte) error {
	pt, err := suite.Open(key, canary)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidMasterSecret, err)
	}
	defer common.WipeByteArray(pt)
	if subtle.ConstantTimeCompare(pt, canaryPlaintext) != 1 {
		return fmt.Errorf("%w: canary mismatch", common.ErrInvalidMasterSecret)
	}
	return nil
}

// Lock destroys the key. Locking a locked session is a no-op.
func (s *Session) Lock() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateLocked:
		return nil
	case StateUnlocked:
		s.lockLocked(ReasonManual)
		return nil
	default:
		return fmt.Errorf("%w: lock while %s", ErrInvalidTransition, s.state)
	}
}

// SignOut returns to LoggedOut from any state, destroying the key and
// tearing down the idle timer.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateLoggedOut {
		return
	}
	owner := s.owner
	s.dropKeyLocked()
	s.owner = ""
	s.state = StateLoggedOut
	s.epoch++
	s.emitLocked(EventSignedOut, "")
	s.log.Info(context.Background(), "signed out", "owner", owner)
}

// RekeyResult summarises a passphrase change.
type RekeyResult struct {
	Rekeyed int
	// Skipped lists records that could not be decrypted with the current
	// key. They are left untouched and stay unreadable.
	Skipped []string
}

// Rekey re-encrypts every readable record of the owner under a key derived
// from newPassphrase and a fresh salt, then stores the new parameters and
// switches the session to the new key. Iterators obtained before Rekey stop
// with common.ErrVaultLocked. newPassphrase is wiped before Rekey returns.
//
// Adapters implementing storage.BlobReplacer rewrite all records in one
// transaction. Otherwise records are rewritten one by one and, if a write
// fails, the ones already rewritten are restored to their previous blobs.
// Either way a failure leaves the old key in effect.
func (s *Session) Rekey(ctx context.Context, records storage.RecordStore, newPassphrase []byte) (RekeyResult, error) {
	defer common.WipeByteArray(newPassphrase)

	s.unlockMu.Lock()
	defer s.unlockMu.Unlock()

	var res RekeyResult

	l, err := s.beginRekey()
	if err != nil {
		return res, err
	}
	defer s.endRekey()

	salt, err := cryptox.GenerateSalt()
	if err != nil {
		return res, err
	}
	newKey, err := cryptox.DeriveKey(newPassphrase, salt, s.iterations)
	if err != nil {
		return res, fmt.Errorf("%w: %w", common.ErrInvalidMasterSecret, err)
	}
	defer common.WipeByteArray(newKey)
	suite := s.cipher

	recs, err := records.FetchAll(ctx, l.owner)
	if err != nil {
		return res, fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
	}

	var plan []rekeyWrite
	for _, rec := range recs {
		pt, err := s.open(l, rec.Blob)
		if errors.Is(err, common.ErrVaultLocked) {
			return res, err
		}
		if err != nil {
			res.Skipped = append(res.Skipped, rec.ID)
			continue
		}
		blob, err := suite.Seal(newKey, pt)
		common.WipeByteArray(pt)
		if err != nil {
			return res, err
		}
		plan = append(plan, rekeyWrite{id: rec.ID, oldBlob: rec.Blob, newBlob: blob})
	}

	canary, err := suite.Seal(newKey, canaryPlaintext)
	if err != nil {
		return res, err
	}

	if err := s.rewrite(ctx, l.owner, records, plan); err != nil {
		return res, err
	}

	params := &storage.Params{Salt: salt, Iterations: s.iterations, Cipher: suite.Name(), Canary: canary}
	if err := s.params.SaveParams(ctx, l.owner, params); err != nil {
		s.rollback(l.owner, records, plan)
		return res, fmt.Errorf("%w: save vault parameters: %w", common.ErrStorageUnavailable, err)
	}
	res.Rekeyed = len(plan)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != l.epoch || s.state != StateUnlocked {
		// Parameters are already switched; the next Unlock must use the new passphrase.
		s.log.Warn(ctx, "session changed during rekey", "owner", l.owner)
		return res, nil
	}
	s.key = memguard.NewEnclave(newKey)
	s.suite = suite
	s.epoch++
	s.armLocked()
	s.emitLocked(EventRekeyed, "")
	s.log.Info(ctx, "vault rekeyed", "owner", l.owner, "records", res.Rekeyed, "skipped", len(res.Skipped))
	return res, nil
}

type rekeyWrite struct {
	id      string
	oldBlob []byte
	newBlob []byte
}

func (s *Session) rewrite(ctx context.Context, owner string, records storage.RecordStore, plan []rekeyWrite) error {
	if br, ok := records.(storage.BlobReplacer); ok {
		blobs := make(map[string][]byte, len(plan))
		for _, rw := range plan {
			blobs[rw.id] = rw.newBlob
		}
		if err := br.ReplaceBlobs(ctx, owner, blobs); err != nil {
			return fmt.Errorf("%w: rewrite records: %w", common.ErrStorageUnavailable, err)
		}
		return nil
	}

	for i, rw := range plan {
		if err := records.Update(ctx, owner, rw.id, rw.newBlob); err != nil {
			s.rollback(owner, records, plan[:i])
			return fmt.Errorf("%w: rewrite record %s: %w", common.ErrStorageUnavailable, rw.id, err)
		}
	}
	return nil
}

// rollback restores rewritten records with a fresh context, since the
// caller's context may be the reason the rewrite failed.
func (s *Session) rollback(owner string, records storage.RecordStore, done []rekeyWrite) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, rw := range done {
		if err := records.Update(ctx, owner, rw.id, rw.oldBlob); err != nil {
			s.log.Error(ctx, "rekey rollback failed", "owner", owner, "record", rw.id, "error", err)
		}
	}
}

// lease is what a CredentialStore call holds between acquire and its last
// seal/open: the owner and key generation seen at call entry.
type lease struct {
	owner string
	epoch uint64
}

// acquire snapshots the session at call entry. It fails with
// common.ErrVaultLocked unless the session is Unlocked and not yet expired.
func (s *Session) acquire() (lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDueLocked()
	if s.state != StateUnlocked {
		return lease{}, common.ErrVaultLocked
	}
	return lease{owner: s.owner, epoch: s.epoch}, nil
}

// acquireWrite is acquire for calls that write a record. The write must be
// finished with releaseWrite. It fails with ErrRekeyInProgress while Rekey
// runs.
func (s *Session) acquireWrite() (lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDueLocked()
	if s.state != StateUnlocked {
		return lease{}, common.ErrVaultLocked
	}
	if s.rekeying {
		return lease{}, ErrRekeyInProgress
	}
	s.writers++
	return lease{owner: s.owner, epoch: s.epoch}, nil
}

func (s *Session) releaseWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writers--
	if s.writers == 0 {
		s.idle.Broadcast()
	}
}

// beginRekey blocks new writes and waits until the in-flight ones have
// landed, so every record sealed under the old key is visible to FetchAll.
func (s *Session) beginRekey() (lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireIfDueLocked()
	if s.state != StateUnlocked {
		return lease{}, common.ErrVaultLocked
	}
	s.rekeying = true
	for s.writers > 0 {
		s.idle.Wait()
	}
	s.expireIfDueLocked()
	if s.state != StateUnlocked {
		s.rekeying = false
		return lease{}, common.ErrVaultLocked
	}
	return lease{owner: s.owner, epoch: s.epoch}, nil
}

func (s *Session) endRekey() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rekeying = false
}

// liveLocked reports whether l still refers to the current unlocked key.
func (s *Session) liveLocked(l lease) bool {
	s.expireIfDueLocked()
	return s.state == StateUnlocked && s.epoch == l.epoch
}

func (s *Session) seal(l lease, plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.liveLocked(l) {
		return nil, common.ErrVaultLocked
	}
	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()

	return s.suite.Seal(buf.Bytes(), plaintext)
}

func (s *Session) open(l lease, blob []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.liveLocked(l) {
		return nil, common.ErrVaultLocked
	}
	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()

	return s.suite.Open(buf.Bytes(), blob)
}

// touch restarts the idle window after a successful store call.
func (s *Session) touch(l lease) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.liveLocked(l) {
		s.armLocked()
	}
}

// armLocked replaces the idle timer with a fresh one.
func (s *Session) armLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.expiresAt = s.clock.Now().Add(s.idleWindow)
	epoch := s.epoch
	s.timer = s.clock.AfterFunc(s.idleWindow, func() { s.expire(epoch) })
}

// expire runs on the timer goroutine. A firing that lost the race against a
// touch or a transition finds a later expiresAt or a newer epoch and does
// nothing.
func (s *Session) expire(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return
	}
	s.expireIfDueLocked()
}

func (s *Session) expireIfDueLocked() {
	if s.state == StateUnlocked && !s.clock.Now().Before(s.expiresAt) {
		s.lockLocked(ReasonIdle)
	}
}

func (s *Session) lockLocked(reason string) {
	s.dropKeyLocked()
	s.state = StateLocked
	s.epoch++
	s.emitLocked(EventLocked, reason)
	s.log.Info(context.Background(), "vault locked", "owner", s.owner, "reason", reason)
}

func (s *Session) dropKeyLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.key = nil
	s.suite = nil
	s.expiresAt = time.Time{}
}

func (s *Session) emitLocked(kind EventKind, reason string) {
	ev := Event{Kind: kind, State: s.state, Reason: reason, At: s.clock.Now()}
	select {
	case s.events <- ev:
	default:
		s.log.Warn(context.Background(), "session event dropped", "event", kind.String())
	}
}
