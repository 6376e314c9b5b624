package store

import (
	"encoding/hex"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/zeebo/blake3"

	"github.com/promptsmith/promptsmith/internal/apperr"
)

// BlobStore stores binary payloads grouped under a subdirectory per owner
// (commit id for images, report id for compare artifacts). References
// handed out are slash paths relative to the store root.
type BlobStore struct {
	root string
}

// NewBlobStore creates a store rooted at dir. The directory is created
// lazily on first write.
func NewBlobStore(dir string) *BlobStore {
	return &BlobStore{root: dir}
}

// Root returns the store root directory.
func (s *BlobStore) Root() string { return s.root }

// HashHex returns the BLAKE3 digest of data as a hex string.
func HashHex(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put writes data under group/name and returns its relative reference.
// When an identical blob already exists the write is skipped.
func (s *BlobStore) Put(group, name string, data []byte) (string, error) {
	rel := path.Join(group, name)
	abs := filepath.Join(s.root, filepath.FromSlash(rel))
	if existing, err := os.ReadFile(abs); err == nil && HashHex(existing) == HashHex(data) {
		return rel, nil
	}
	if err := WriteBytesAtomic(abs, data); err != nil {
		return "", err
	}
	return rel, nil
}

// Get reads the blob at the relative reference rel.
func (s *BlobStore) Get(rel string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, apperr.New(apperr.CodeStorageWriteFailed, http.StatusInternalServerError,
			"failed to read blob %s: %v", rel, err)
	}
	return data, nil
}

// Exists reports whether a blob is present at rel.
func (s *BlobStore) Exists(rel string) bool {
	info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(rel)))
	return err == nil && info.Mode().IsRegular()
}

// DeleteTree removes every blob under group and returns how many regular
// files were deleted. Missing groups delete zero files without error.
func (s *BlobStore) DeleteTree(group string) (int, error) {
	dir := filepath.Join(s.root, group)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}
	matches, err := doublestar.FilepathGlob(filepath.Join(dir, "**"))
	if err != nil {
		return 0, apperr.New(apperr.CodeStorageWriteFailed, http.StatusInternalServerError,
			"failed to enumerate blobs under %s: %v", group, err)
	}
	count := 0
	for _, m := range matches {
		if info, err := os.Lstat(m); err == nil && info.Mode().IsRegular() {
			count++
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return 0, apperr.New(apperr.CodeStorageWriteFailed, http.StatusInternalServerError,
			"failed to delete blobs under %s: %v", group, err)
	}
	return count, nil
}
