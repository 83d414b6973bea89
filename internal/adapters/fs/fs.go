// Package fs is a thin filesystem capability shim enforcing spec.md
// §5's "never mutate files it reads; patches are returned, not
// applied" contract, and guaranteeing temp-file cleanup on every exit
// path. Grounded on the teacher's defer os.Remove(tmpPath) idiom seen
// throughout internal/tactile and internal/world.
package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// ReadSource reads a source file read-only. The core never opens a
// source path for writing.
func ReadSource(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source %s: %w", path, err)
	}
	return data, nil
}

// Hash returns the lowercase hex SHA-256 digest of a buffer, used for
// the Ledger's file_modification hash_before/hash_after fields.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WithTempFile creates a temp file with the given name pattern, invokes
// fn with its path, and removes it unconditionally afterward -
// including when fn panics - matching the "temp files deleted on every
// exit path, including panics" guarantee of spec.md §5.
func WithTempFile(pattern string, content []byte, fn func(path string) error) (err error) {
	f, createErr := os.CreateTemp("", pattern)
	if createErr != nil {
		return fmt.Errorf("create temp file: %w", createErr)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, writeErr := f.Write(content); writeErr != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", writeErr)
	}
	if closeErr := f.Close(); closeErr != nil {
		return fmt.Errorf("close temp file: %w", closeErr)
	}

	return fn(path)
}
