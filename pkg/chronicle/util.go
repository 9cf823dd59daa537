package chronicle

import (
	"fmt"
	"os"
)

// fileExists reports whether path names an existing file or directory.
func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

// errf wraps sentinel with a formatted message, pairing
// fmt.Errorf("...: %w", ...) with a sentinel error.
func errf(sentinel error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, sentinel)...)
}

// wrapf wraps an underlying cause together with a sentinel so that
// errors.Is matches either one.
func wrapf(sentinel, cause error, format string, args ...any) error {
	return fmt.Errorf(format+": %w: %w", append(args, cause, sentinel)...)
}
