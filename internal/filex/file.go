// Package filex has helpers for the client's local data files.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureParentDir creates the directory that will hold path (0o700, since it
// stores the local vault database) and returns path unchanged.
func EnsureParentDir(path string) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return path, nil
}

// DefaultDataDir returns the per-user directory for gophvault data,
// falling back to the working directory when no config dir is known.
func DefaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		cwd, err := os.Getwd()
		if err != nil {
			return "gophvault"
		}
		return filepath.Join(cwd, ".gophvault")
	}
	return filepath.Join(base, "gophvault")
}
