package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/client/config"
	"github.com/dmitrijs2005/gophvault/internal/client/identity"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/storage/memory"
	"github.com/dmitrijs2005/gophvault/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClipboard struct {
	mu      sync.Mutex
	value   string
	history []string
}

func (c *fakeClipboard) ReadAll() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, nil
}

func (c *fakeClipboard) WriteAll(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = text
	c.history = append(c.history, text)
	return nil
}

func (c *fakeClipboard) writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.history...)
}

// manualClock fires timers only when told to.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
	fns []func()
}

type manualTimer struct{}

func (manualTimer) Stop() bool { return true }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(_ time.Duration, f func()) vault.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, f)
	return manualTimer{}
}

// advance moves time forward and runs every timer registered so far.
func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.Store = config.StoreMemory
	c.Iterations = cryptox.MinIterations
	return c
}

type harness struct {
	app       *App
	out       *bytes.Buffer
	clipboard *fakeClipboard
	store     *memory.Store
}

func newHarness(t *testing.T, cfg *config.Config, input string, clock vault.Clock) *harness {
	t.Helper()
	h := &harness{out: &bytes.Buffer{}, clipboard: &fakeClipboard{}, store: memory.New()}
	app, err := newApp(cfg, backend{
		store:     h.store,
		identity:  identity.Local{},
		clipboard: h.clipboard,
		clock:     clock,
	}, strings.NewReader(input), h.out, logging.Discard())
	require.NoError(t, err)
	h.app = app
	return h
}

func script(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func TestApp_CredentialLifecycle(t *testing.T) {
	h := newHarness(t, testConfig(), script(
		"login", "alice", "master-pass",
		"add", "mail", "alice@example.com", "n", "S3cret!pass",
		"add", "bank", "alice", "y",
		"list",
		"show 1 -r",
		"copy 1",
		"update 1", "", "al", "n", "",
		"show 1 -r",
		"delete 2", "y",
		"list",
		"status",
		"exit",
	), nil)

	h.app.Run(context.Background())
	out := h.out.String()

	assert.Contains(t, out, "Vault unlocked")
	assert.Contains(t, out, "mail")
	assert.Contains(t, out, "bank")
	assert.Contains(t, out, "Secret:   S3cret!pass")
	assert.Contains(t, out, "Username: al\n")
	assert.Contains(t, out, "Deleted")
	assert.Contains(t, out, "Owner:   alice")
	assert.NotContains(t, out, "Error:")

	assert.Equal(t, []string{"S3cret!pass", ""}, h.clipboard.writes(), "copied, then cleared on sign-out")
	assert.Equal(t, vault.StateLoggedOut, h.app.session.State())

	recs, err := h.store.FetchAll(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotContains(t, string(recs[0].Blob), "S3cret!pass")
}

func TestApp_LockedCommandsAndUnlock(t *testing.T) {
	h := newHarness(t, testConfig(), script(
		"list",
		"login", "alice", "master-pass",
		"add", "mail", "alice", "n", "S3cret!pass",
		"list",
		"lock",
		"show 1",
		"unlock", "master-pass",
		"show 1",
		"list",
		"show 1",
		"logout",
		"unlock",
	), nil)

	h.app.Run(context.Background())
	out := h.out.String()

	assert.Contains(t, out, "Error: vault is locked, type 'unlock'")
	assert.Contains(t, out, "Vault locked.")
	assert.Contains(t, out, "no entry 1 in the last listing")
	assert.Contains(t, out, "Name:     mail")
	assert.Contains(t, out, "Signed out.")
	assert.Contains(t, out, "Error: "+errNotSignedIn.Error())
}

func TestApp_WrongMasterSecretLooksEmpty(t *testing.T) {
	h := newHarness(t, testConfig(), script(
		"login", "alice", "master-pass",
		"add", "mail", "alice", "n", "S3cret!pass",
		"lock",
		"unlock", "not-the-pass",
		"list",
	), nil)

	h.app.Run(context.Background())
	out := h.out.String()

	assert.Contains(t, out, "authentication failed")
	assert.Contains(t, out, "No record could be read")
}

func TestApp_PasswdWithStrictCheck(t *testing.T) {
	cfg := testConfig()
	cfg.StrictKeyCheck = true

	h := newHarness(t, cfg, script(
		"login", "alice", "old-pass",
		"add", "mail", "alice", "n", "S3cret!pass",
		"passwd", "new-pass", "other",
		"passwd", "new-pass", "new-pass",
		"lock",
		"unlock", "old-pass",
		"unlock", "new-pass",
		"list",
		"show 1 -r",
	), nil)

	h.app.Run(context.Background())
	out := h.out.String()

	assert.Contains(t, out, "Error: "+errMismatch.Error())
	assert.Contains(t, out, "1 record(s) re-encrypted")
	assert.Contains(t, out, "Error: master secret rejected")
	assert.Contains(t, out, "Secret:   S3cret!pass")
}

func TestApp_RegisterNeedsAccounts(t *testing.T) {
	h := newHarness(t, testConfig(), script("register"), nil)
	h.app.Run(context.Background())
	assert.Contains(t, h.out.String(), "Error: "+errNoAccounts.Error())
}

func TestApp_Generate(t *testing.T) {
	h := newHarness(t, testConfig(), "", nil)
	ctx := context.Background()

	require.NoError(t, h.app.Generate(ctx, "16"))
	lines := strings.Split(h.out.String(), "\n")
	assert.Len(t, lines[0], 16)
	assert.Contains(t, h.out.String(), "Strength:")

	require.Error(t, h.app.Generate(ctx, "abc"))
	require.Error(t, h.app.Generate(ctx, "4"))
}

func TestApp_IdleLockIsReported(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg := testConfig()
	h := newHarness(t, cfg, "", clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.app.session.SignIn("alice"))
	require.NoError(t, h.app.session.Unlock(ctx, []byte("master-pass")))
	h.app.setCache([]listing{{ID: "x", Name: "mail"}})

	done := make(chan struct{})
	go func() {
		h.app.watchSession(ctx)
		close(done)
	}()

	clock.advance(cfg.IdleWindow)

	require.Eventually(t, func() bool { return h.app.cached() == nil }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, vault.StateLocked, h.app.session.State())

	cancel()
	<-done
	assert.Contains(t, h.out.String(), "Vault locked after 15m0s of inactivity")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		b, err := openStore(ctx, testConfig())
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, b.store)
		assert.Equal(t, identity.Local{}, b.identity)
		assert.Nil(t, b.closer)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := testConfig()
		cfg.Store = config.StoreSQLite
		cfg.SQLitePath = t.TempDir() + "/nested/vault.db"

		b, err := openStore(ctx, cfg)
		require.NoError(t, err)
		require.NotNil(t, b.closer)
		require.NoError(t, b.closer.Close())
	})

	t.Run("remote", func(t *testing.T) {
		cfg := testConfig()
		cfg.Store = config.StoreRemote

		b, err := openStore(ctx, cfg)
		require.NoError(t, err)
		assert.IsType(t, &identity.Remote{}, b.identity)
		require.NoError(t, b.closer.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := testConfig()
		cfg.Store = "floppy"
		_, err := openStore(ctx, cfg)
		require.Error(t, err)
	})
}
