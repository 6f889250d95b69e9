package vault

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/dmitrijs2005/gophvault/internal/logging"
)

// DefaultClipboardClear is how long a copied secret stays on the clipboard.
const DefaultClipboardClear = 30 * time.Second

// ClipboardBackend reads and writes the system clipboard.
type ClipboardBackend interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type systemClipboard struct{}

func (systemClipboard) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// SystemClipboard is the OS clipboard.
func SystemClipboard() ClipboardBackend { return systemClipboard{} }

// ClipboardSupported reports whether the OS clipboard can be used at all.
func ClipboardSupported() bool { return !clipboard.Unsupported }

// Clipboard copies secrets and clears them again after a delay, unless the
// clipboard has been overwritten in the meantime. Clearing is best effort.
type Clipboard struct {
	backend ClipboardBackend
	clock   Clock
	delay   time.Duration
	log     logging.Logger

	mu      sync.Mutex
	pending Timer
	value   string
	gen     uint64
}

// NewClipboard returns a Clipboard over backend. A zero delay means
// DefaultClipboardClear; nil clock and logger get the usual defaults.
func NewClipboard(backend ClipboardBackend, clock Clock, delay time.Duration, log logging.Logger) *Clipboard {
	if clock == nil {
		clock = RealClock()
	}
	if delay <= 0 {
		delay = DefaultClipboardClear
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Clipboard{backend: backend, clock: clock, delay: delay, log: log.With("module", "clipboard")}
}

// Delay is the configured clear delay.
func (c *Clipboard) Delay() time.Duration { return c.delay }

// CopySecret writes secret to the clipboard and schedules it to be
// overwritten with an empty string. A later copy supersedes the pending
// clear of an earlier one.
func (c *Clipboard) CopySecret(secret []byte) error {
	value := string(secret)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.backend.WriteAll(value); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	if c.pending != nil {
		c.pending.Stop()
	}
	c.gen++
	gen := c.gen
	c.value = value
	c.pending = c.clock.AfterFunc(c.delay, func() { c.clear(gen) })
	return nil
}

// Clear cancels any pending timer and clears the clipboard now if it still
// holds the last copied secret. Used on lock and sign-out.
func (c *Clipboard) Clear() {
	c.mu.Lock()
	if c.pending != nil {
		c.pending.Stop()
	}
	gen := c.gen
	c.mu.Unlock()

	c.clear(gen)
}

func (c *Clipboard) clear(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.pending == nil {
		return
	}
	c.pending = nil
	value := c.value
	c.value = ""

	current, err := c.backend.ReadAll()
	if err != nil {
		c.log.Warn(context.Background(), "clipboard read failed", "error", err)
		return
	}
	if current != value {
		c.log.Debug(context.Background(), "clipboard changed, not clearing")
		return
	}
	if err := c.backend.WriteAll(""); err != nil {
		c.log.Warn(context.Background(), "clipboard clear failed", "error", err)
	}
}
