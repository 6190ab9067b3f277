// Package filex contains filesystem helpers for locating and creating the
// client's local data directory.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDataDir returns the directory that holds device-local client state,
// creating it if needed. When dir is empty, a per-user default is used
// (os.UserConfigDir + appName), falling back to the current working
// directory when no user config dir is available.
func EnsureDataDir(dir, appName string) (string, error) {
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base, err = os.Getwd()
			if err != nil {
				return "", fmt.Errorf("getwd: %w", err)
			}
		}
		dir = filepath.Join(base, appName)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}
