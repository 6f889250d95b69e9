package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTokenJanitor_PurgesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	purge := func(context.Context) (int64, error) {
		if calls.Add(1) == 2 {
			return 0, errors.New("db down")
		}
		return 1, nil
	}

	done := make(chan struct{})
	go func() {
		runTokenJanitor(ctx, logging.Discard(), 5*time.Millisecond, purge)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestNewApp_BadDSN(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewApp(ctx, newTestConfig("postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"))
	require.Error(t, err)
}

func newTestConfig(dsn string) *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.DatabaseDSN = dsn
	return c
}
