package vault

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"github.com/dmitrijs2005/gophvault/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

// fakeClock only moves when told to. Advance fires due timers in order on
// the calling goroutine; Skip moves time without firing anything.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) Skip(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Pending counts timers that are neither stopped nor fired.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

const testIdle = 10 * time.Minute

type fixture struct {
	clock   *fakeClock
	store   *memory.Store
	session *Session
	creds   *CredentialStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureOn(t, memory.New(), newFakeClock(), opts...)
}

func newFixtureOn(t *testing.T, store *memory.Store, clock *fakeClock, opts ...Option) *fixture {
	t.Helper()

	base := []Option{
		WithClock(clock),
		WithIdleWindow(testIdle),
		WithIterations(cryptox.MinIterations),
	}
	s, err := NewSession(store, append(base, opts...)...)
	require.NoError(t, err)

	return &fixture{clock: clock, store: store, session: s, creds: NewCredentialStore(s, store)}
}

func (f *fixture) unlock(t *testing.T, owner, passphrase string) {
	t.Helper()
	require.NoError(t, f.session.SignIn(owner))
	require.NoError(t, f.session.Unlock(context.Background(), []byte(passphrase)))
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func cred(name, user, secret string) Credential {
	return Credential{Name: name, Username: user, Secret: []byte(secret)}
}

var errBackend = errors.New("backend down")

// flakyStore fails selected operations.
type flakyStore struct {
	storage.Store

	mu          sync.Mutex
	failFetch   bool
	failInsert  bool
	failSave    bool
	failLoad    bool
	updateCalls int
	failUpdate  int // fail the n-th Update call (1-based), 0 = never

	// called before the wrapped operation runs
	onFetch  func()
	onInsert func()
}

func (s *flakyStore) FetchAll(ctx context.Context, owner string) ([]storage.Record, error) {
	if s.failFetch {
		return nil, errBackend
	}
	if s.onFetch != nil {
		s.onFetch()
	}
	return s.Store.FetchAll(ctx, owner)
}

func (s *flakyStore) Insert(ctx context.Context, owner string, blob []byte) (string, error) {
	if s.failInsert {
		return "", errBackend
	}
	if s.onInsert != nil {
		s.onInsert()
	}
	return s.Store.Insert(ctx, owner, blob)
}

func (s *flakyStore) Update(ctx context.Context, owner, id string, blob []byte) error {
	s.mu.Lock()
	s.updateCalls++
	n := s.updateCalls
	s.mu.Unlock()
	if s.failUpdate != 0 && n == s.failUpdate {
		return errBackend
	}
	return s.Store.Update(ctx, owner, id, blob)
}

func (s *flakyStore) LoadParams(ctx context.Context, owner string) (*storage.Params, error) {
	if s.failLoad {
		return nil, errBackend
	}
	return s.Store.LoadParams(ctx, owner)
}

func (s *flakyStore) SaveParams(ctx context.Context, owner string, p *storage.Params) error {
	if s.failSave {
		return errBackend
	}
	return s.Store.SaveParams(ctx, owner, p)
}
