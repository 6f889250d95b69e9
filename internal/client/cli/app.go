package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/gophvault/internal/client/config"
	"github.com/dmitrijs2005/gophvault/internal/client/identity"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"github.com/dmitrijs2005/gophvault/internal/storage/memory"
	"github.com/dmitrijs2005/gophvault/internal/storage/remote"
	"github.com/dmitrijs2005/gophvault/internal/storage/s3store"
	"github.com/dmitrijs2005/gophvault/internal/storage/sqlite"
	"github.com/dmitrijs2005/gophvault/internal/vault"
	"golang.org/x/term"
)

// listing is one row of the last "list" output. Secrets are never cached.
type listing struct {
	ID       string
	Name     string
	Username string
}

type App struct {
	config    *config.Config
	logger    logging.Logger
	identity  identity.Provider
	session   *vault.Session
	creds     *vault.CredentialStore
	clipboard *vault.Clipboard
	closer    io.Closer

	reader *bufio.Reader
	out    io.Writer
	tty    bool

	mu    sync.Mutex
	cache []listing
}

// backend is what openStore hands to newApp.
type backend struct {
	store     storage.Store
	identity  identity.Provider
	clipboard vault.ClipboardBackend
	clock     vault.Clock
	closer    io.Closer
}

// NewApp opens the configured store and builds an App on the process
// terminal.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.Stderr(logging.ParseLevel(c.LogLevel))

	b, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}
	b.clipboard = vault.SystemClipboard()
	if !vault.ClipboardSupported() {
		logger.Warn(ctx, "system clipboard is not available, copy will fail")
	}

	app, err := newApp(c, b, os.Stdin, os.Stdout, logger)
	if err != nil {
		if b.closer != nil {
			_ = b.closer.Close()
		}
		return nil, err
	}
	app.tty = term.IsTerminal(int(os.Stdin.Fd()))
	return app, nil
}

// openStore builds the storage adapter and the matching identity provider
// for the configured backend.
func openStore(ctx context.Context, c *config.Config) (backend, error) {
	switch c.Store {
	case config.StoreMemory:
		return backend{store: memory.New(), identity: identity.Local{}}, nil

	case config.StoreSQLite:
		path, err := filex.EnsureParentDir(c.SQLitePath)
		if err != nil {
			return backend{}, err
		}
		st, err := sqlite.Open(ctx, path)
		if err != nil {
			return backend{}, err
		}
		return backend{store: st, identity: identity.Local{}, closer: st}, nil

	case config.StoreS3:
		st, err := s3store.New(ctx, s3store.Config{
			Bucket:    c.S3.Bucket,
			Prefix:    c.S3.Prefix,
			Region:    c.S3.Region,
			Endpoint:  c.S3.Endpoint,
			AccessKey: c.S3.AccessKey,
			SecretKey: c.S3.SecretKey,
			PathStyle: c.S3.PathStyle,
		})
		if err != nil {
			return backend{}, err
		}
		return backend{store: st, identity: identity.Local{}}, nil

	case config.StoreRemote:
		rc, err := remote.Dial(c.ServerEndpointAddr)
		if err != nil {
			return backend{}, err
		}
		return backend{store: rc.Store(), identity: identity.NewRemote(rc), closer: rc}, nil

	default:
		return backend{}, fmt.Errorf("unknown store %q", c.Store)
	}
}

func newApp(c *config.Config, b backend, in io.Reader, out io.Writer, logger logging.Logger) (*App, error) {
	suite, err := cryptox.CipherByName(c.Cipher)
	if err != nil {
		return nil, err
	}

	opts := []vault.Option{
		vault.WithIdleWindow(c.IdleWindow),
		vault.WithIterations(c.Iterations),
		vault.WithCipher(suite),
		vault.WithLogger(logger),
	}
	if b.clock != nil {
		opts = append(opts, vault.WithClock(b.clock))
	}
	if c.StrictKeyCheck {
		opts = append(opts, vault.WithStrictKeyCheck())
	}

	session, err := vault.NewSession(b.store, opts...)
	if err != nil {
		return nil, err
	}

	return &App{
		config:    c,
		logger:    logger,
		identity:  b.identity,
		session:   session,
		creds:     vault.NewCredentialStore(session, b.store),
		clipboard: vault.NewClipboard(b.clipboard, b.clock, c.ClipboardClear, logger),
		closer:    b.closer,
		reader:    bufio.NewReader(in),
		out:       &lockedWriter{w: out},
	}, nil
}

// Run serves the REPL until the input ends or the user exits. It signs out
// on return.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.watchSession(ctx)
	}()

	a.printf("Welcome to gophvault (type 'help' for commands)\n")
	runREPL(ctx, a, a.prompt, a.reader, a.out)

	a.signOut()
	cancel()
	wg.Wait()
}

// Close releases the store.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// watchSession reports lock events and drops the cached listing whenever
// the vault stops being unlocked.
func (a *App) watchSession(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.session.Events():
			// Events can arrive after the user already unlocked again.
			state := a.session.State()
			switch {
			case ev.Kind == vault.EventLocked && state != vault.StateUnlocked:
				a.dropCache()
				a.clipboard.Clear()
				if ev.Reason == vault.ReasonIdle {
					a.printf("\nVault locked after %s of inactivity. Type 'unlock' to continue.\n", a.config.IdleWindow)
				}
			case ev.Kind == vault.EventSignedOut && state == vault.StateLoggedOut:
				a.dropCache()
			}
		}
	}
}

func (a *App) prompt() string {
	st := a.session.Status()
	if st.OwnerID == "" {
		return fmt.Sprintf("gv (%s)> ", st.State)
	}
	return fmt.Sprintf("gv (%s %s)> ", st.OwnerID, st.State)
}

func (a *App) setCache(rows []listing) {
	a.mu.Lock()
	a.cache = rows
	a.mu.Unlock()
}

func (a *App) dropCache() {
	a.mu.Lock()
	a.cache = nil
	a.mu.Unlock()
}

func (a *App) cached() []listing {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cache
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// lockedWriter serialises writes from the REPL and the session watcher.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
