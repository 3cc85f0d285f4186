package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

// FileStore keeps the document in a single file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path. The file does not need to exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Kind() Kind { return KindFile }

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Read(ctx context.Context) ([]byte, bool) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// Write stages raw in a temp file next to the target and renames it over the
// target, so the old content survives any failure.
func (s *FileStore) Write(ctx context.Context, raw []byte) error {
	if s.path == "" {
		return invalidCache("file", errors.New("empty path"))
	}

	temp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return invalidCache(s.path, err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(raw); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return invalidCache(s.path, err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return invalidCache(s.path, err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return invalidCache(s.path, err)
	}
	return nil
}
