package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	// handle cases like ~/run/workermgr.sock
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// PathExists checks if the given path exists.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// ErrSocketInUse is returned by RemoveStaleSocket when the path survives removal.
var ErrSocketInUse = errors.New("socket already in use")

// RemoveStaleSocket deletes a leftover unix socket file at path. A missing
// path is fine; a path that cannot be removed is reported as in use.
func RemoveStaleSocket(path string) error {
	err := os.Remove(path)
	if err == nil || !PathExists(path) {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrSocketInUse, path, err)
}

// CreateTruncated opens path for appending writes, creating it or discarding
// previous content.
func CreateTruncated(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
}
