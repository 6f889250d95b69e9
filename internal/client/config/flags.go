package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/flagx"
)

// parseFlags overlays Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-b string   store backend: sqlite, remote, s3 or memory
//	-f string   sqlite vault file
//	-a string   address and port of the gophvault server
//	-i int      idle lock window, minutes
//	-k int      clipboard clear delay, seconds
//	-n int      PBKDF2 iterations for new vaults
//	-x string   cipher suite for new vaults
//	-strict     verify the master secret on unlock
//	-l string   log level
//
// S3 settings come from the config file only.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-b", "-f", "-a", "-i", "-k", "-n", "-x", "-strict", "-l"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.Store, "b", config.Store, "store backend")
	fs.StringVar(&config.SQLitePath, "f", config.SQLitePath, "sqlite vault file")
	fs.StringVar(&config.ServerEndpointAddr, "a", config.ServerEndpointAddr, "address and port to access server")
	fs.IntVar(&config.Iterations, "n", config.Iterations, "PBKDF2 iterations")
	fs.StringVar(&config.Cipher, "x", config.Cipher, "cipher suite")
	fs.BoolVar(&config.StrictKeyCheck, "strict", config.StrictKeyCheck, "verify master secret on unlock")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	idleWindow := fs.Int("i", int(config.IdleWindow.Minutes()), "idle lock window (in minutes)")
	clipboardClear := fs.Int("k", int(config.ClipboardClear.Seconds()), "clipboard clear delay (in seconds)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			config.IdleWindow = time.Duration(*idleWindow) * time.Minute
		case "k":
			config.ClipboardClear = time.Duration(*clipboardClear) * time.Second
		}
	})
	return nil
}
