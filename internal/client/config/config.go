// Package config loads runtime configuration for the gophvault client.
//
// Sources, later ones winning:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML file selected with -c or -config.
//  3. Command-line flags (see parseFlags).
//
// Durations in the file accept "15m" style strings or integer nanoseconds:
//
//	store: sqlite
//	sqlite_path: /home/me/.config/gophvault/vault.db
//	idle_window: 10m
//	clipboard_clear: 20s
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/filex"
)

// Storage backends selectable with -b / store.
const (
	StoreSQLite = "sqlite"
	StoreRemote = "remote"
	StoreS3     = "s3"
	StoreMemory = "memory"
)

// S3 holds the object-store settings used by the "s3" backend.
type S3 struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// Config holds runtime settings for the gophvault CLI.
type Config struct {
	Store              string
	SQLitePath         string
	ServerEndpointAddr string
	S3                 S3

	IdleWindow     time.Duration
	ClipboardClear time.Duration
	Iterations     int
	Cipher         string
	StrictKeyCheck bool

	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Store = StoreSQLite
	c.SQLitePath = filepath.Join(filex.DefaultDataDir(), "vault.db")
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.S3 = S3{Prefix: "gophvault", Region: "us-east-1"}
	c.IdleWindow = 15 * time.Minute
	c.ClipboardClear = 30 * time.Second
	c.Iterations = cryptox.DefaultIterations
	c.Cipher = cryptox.SuiteAESGCM
	c.StrictKeyCheck = false
	c.LogLevel = "warn"
}

// Validate reports settings the client cannot start with.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite path must not be empty")
		}
	case StoreRemote:
		if c.ServerEndpointAddr == "" {
			return errors.New("server address must not be empty")
		}
	case StoreS3:
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket must not be empty")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	if c.IdleWindow <= 0 {
		return errors.New("idle window must be positive")
	}
	if c.ClipboardClear <= 0 {
		return errors.New("clipboard clear delay must be positive")
	}
	if c.Iterations < cryptox.MinIterations {
		return fmt.Errorf("iterations must be at least %d", cryptox.MinIterations)
	}
	if _, err := cryptox.CipherByName(c.Cipher); err != nil {
		return err
	}
	return nil
}

// LoadConfig builds a Config from os.Args.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(os.Args[1:])
}

// LoadConfigFrom applies defaults, then the file named by -c/-config, then
// the flags found in args.
func LoadConfigFrom(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
