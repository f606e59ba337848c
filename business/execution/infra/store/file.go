// Package store provides durable nonce state backends.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ndmikkelsen/flashloaner/business/execution/domain"
	"github.com/ndmikkelsen/flashloaner/internal/apperror"
)

// FileStore persists nonce state as JSON at a well-known path. Writes
// go through a temp file and rename so a crash never leaves a torn
// state file.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted state. A missing file returns (nil, nil).
func (s *FileStore) Load(_ context.Context) (*domain.NonceState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, apperror.New(apperror.CodeNonceStoreCorrupt, apperror.WithCause(err))
	}

	var state domain.NonceState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, apperror.New(apperror.CodeNonceStoreCorrupt, apperror.WithCause(err))
	}
	return &state, nil
}

// Save overwrites the full state atomically.
func (s *FileStore) Save(_ context.Context, state *domain.NonceState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return apperror.New(apperror.CodeNoncePersistFailed, apperror.WithCause(err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".nonce-*")
	if err != nil {
		return apperror.New(apperror.CodeNoncePersistFailed, apperror.WithCause(err))
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperror.New(apperror.CodeNoncePersistFailed, apperror.WithCause(err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperror.New(apperror.CodeNoncePersistFailed, apperror.WithCause(err))
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return apperror.New(apperror.CodeNoncePersistFailed, apperror.WithCause(err))
	}
	return nil
}
