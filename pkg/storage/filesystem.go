package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrLimitExceeded is returned when a stream is larger than the allowed size.
var ErrLimitExceeded = errors.New("file exceeds size limit")

// StoredFile describes a file written by LocalStorage.
type StoredFile struct {
	Path     string
	Size     int64
	Checksum string
}

// LocalStorage persists files on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./documents"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// SaveStream copies at most limit bytes from r into relPath and returns its
// size and sha256 checksum. A limit <= 0 disables the check. A partially
// written file is removed on failure.
func (s *LocalStorage) SaveStream(relPath string, r io.Reader, limit int64) (StoredFile, error) {
	path, err := s.resolve(relPath)
	if err != nil {
		return StoredFile{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("prepare storage directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return StoredFile{}, fmt.Errorf("create file: %w", err)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	hasher := sha256.New()
	written, copyErr := io.Copy(io.MultiWriter(file, hasher), src)
	closeErr := file.Close()

	switch {
	case copyErr != nil:
		_ = os.Remove(path)
		return StoredFile{}, fmt.Errorf("write file: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(path)
		return StoredFile{}, fmt.Errorf("close file: %w", closeErr)
	case limit > 0 && written > limit:
		_ = os.Remove(path)
		return StoredFile{}, ErrLimitExceeded
	}

	return StoredFile{Path: relPath, Size: written, Checksum: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(relPath string) (*os.File, error) {
	path, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(relPath string) error {
	path, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// resolve keeps every path inside the base directory.
func (s *LocalStorage) resolve(relPath string) (string, error) {
	clean := filepath.Clean("/" + relPath)
	if relPath == "" || clean == "/" || strings.Contains(relPath, "..") {
		return "", fmt.Errorf("invalid storage path %q", relPath)
	}
	return filepath.Join(s.baseDir, clean), nil
}
