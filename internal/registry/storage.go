// ABOUTME: Filesystem storage for uploaded agent package files
// ABOUTME: Content is addressed by agent name and version under one root dir

package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists package tarballs under a single root directory, one
// subdirectory per agent.
type FileStore struct {
	root string
}

// NewFileStore creates the storage root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Save writes a package file and returns its storage-relative path and
// SHA-256 checksum. Existing files are overwritten; version uniqueness is
// enforced by the database, not the filesystem.
func (fs *FileStore) Save(name, version string, data []byte) (relPath, checksum string, err error) {
	fileName := fmt.Sprintf("%s-%s.tgz", name, version)
	relPath = filepath.Join(name, fileName)

	dir := filepath.Join(fs.root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("creating agent directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, fileName), data, 0644); err != nil {
		return "", "", fmt.Errorf("writing package file: %w", err)
	}

	sum := sha256.Sum256(data)
	return relPath, hex.EncodeToString(sum[:]), nil
}

// Open returns the package file at a storage-relative path. The path is
// validated to stay inside the root.
func (fs *FileStore) Open(relPath string) (*os.File, error) {
	full := filepath.Join(fs.root, filepath.Clean("/"+relPath))
	return os.Open(full)
}

// Root returns the storage root directory.
func (fs *FileStore) Root() string {
	return fs.root
}
