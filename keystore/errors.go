package keystore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	ErrAlreadyInitialized = errors.New("keys already initialized")
	ErrNotInitialized     = errors.New("keys not initialized")
	ErrStorageFailure     = errors.New("key storage failure")
	// ErrKeyCorrupted indicates a key file that cannot be parsed at all.
	ErrKeyCorrupted = errors.New("key file corrupted")
	// ErrKeyMismatch indicates the vault was sealed to neither the live nor the staged key.
	ErrKeyMismatch = errors.New("vault key does not match stored keys")
	// ErrRotationClosed indicates Commit or Abort was called on a finished rotation.
	ErrRotationClosed = errors.New("rotation already finished")
)

// storageError wraps err as ErrStorageFailure without the file path, which
// must never reach user-facing messages.
func storageError(op string, err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	var le *os.LinkError
	if errors.As(err, &le) {
		err = le.Err
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}
