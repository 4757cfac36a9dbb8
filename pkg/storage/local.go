// Package storage keeps uploaded document files on the local disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ErrNotFound is returned when a stored file does not exist.
var ErrNotFound = errors.New("stored file not found")

// DocumentsDir is the sub-directory that holds uploaded documents.
const DocumentsDir = "documents"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Store reads and writes files addressed by paths relative to a root directory.
type Store interface {
	// Save writes r under DocumentsDir as "<unix>_<name>" and returns the relative path and size.
	Save(name string, r io.Reader) (path string, size int64, err error)
	Open(path string) (io.ReadCloser, error)
	Delete(path string) error
}

// LocalStore is a Store on the local filesystem.
type LocalStore struct {
	root string
	now  func() time.Time
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(root, DocumentsDir), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalStore{root: root, now: time.Now}, nil
}

var _ Store = (*LocalStore)(nil)

// SanitizeName strips directories and replaces characters outside [A-Za-z0-9._-].
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "upload"
	}
	return name
}

func (s *LocalStore) Save(name string, r io.Reader) (string, int64, error) {
	rel := filepath.ToSlash(filepath.Join(DocumentsDir, fmt.Sprintf("%d_%s", s.now().Unix(), SanitizeName(name))))
	full, err := s.resolve(rel)
	if err != nil {
		return "", 0, err
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", rel, err)
	}

	size, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(full)
		return "", 0, fmt.Errorf("failed to write %s: %w", rel, errors.Join(copyErr, closeErr))
	}
	return rel, size, nil
}

func (s *LocalStore) Open(path string) (io.ReadCloser, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// Delete removes the file; a missing file is not an error.
func (s *LocalStore) Delete(path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// resolve maps a relative path to an absolute one and refuses paths escaping the root.
func (s *LocalStore) resolve(rel string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	root := filepath.Clean(s.root) + string(filepath.Separator)
	if !strings.HasPrefix(full, root) {
		return "", fmt.Errorf("path %q escapes storage root", rel)
	}
	return full, nil
}
