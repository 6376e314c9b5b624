// Package store provides durable file primitives: atomic JSON/byte writes
// and a content-addressed blob store for images and compare artifacts.
package store

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/promptsmith/promptsmith/internal/apperr"
)

// ReadJSONFile decodes path into v. Returns false without error when the
// file does not exist.
func ReadJSONFile(path string, v any) (bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, apperr.New(apperr.CodeStorageWriteFailed, http.StatusInternalServerError,
			"failed to read file %s: %v", filepath.Base(path), err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, apperr.New(apperr.CodeStorageWriteFailed, http.StatusInternalServerError,
			"failed to decode file %s: %v", filepath.Base(path), err)
	}
	return true, nil
}

// WriteJSONAtomic persists v as indented JSON using the write-temp-fsync-
// rename protocol. Readers never observe a partially written file.
func WriteJSONAtomic(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperr.New(apperr.CodeStorageWriteFailed, http.StatusInternalServerError,
			"failed to encode %s: %v", filepath.Base(path), err)
	}
	return WriteBytesAtomic(path, append(raw, '\n'))
}

// WriteBytesAtomic persists data with the same temp-then-rename protocol.
func WriteBytesAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return writeFailed(path, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return writeFailed(path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return writeFailed(path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return writeFailed(path, err)
	}
	if err := tmp.Close(); err != nil {
		return writeFailed(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return writeFailed(path, err)
	}
	return nil
}

func writeFailed(path string, err error) error {
	return apperr.New(apperr.CodeStorageWriteFailed, http.StatusInternalServerError,
		"failed to persist file %s: %v", filepath.Base(path), err)
}
