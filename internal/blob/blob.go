// Package blob stores uploaded step evidence on local disk and hands
// back a stable reference for the task step that owns it.
package blob

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StoredFile is the stable reference returned for an accepted upload.
type StoredFile struct {
	URL        string
	MimeType   string
	FileName   string
	UploadedAt string
}

// InvalidTypeError rejects an upload whose mime type is not allowed.
type InvalidTypeError struct {
	MimeType string
}

func (e InvalidTypeError) Error() string {
	return fmt.Sprintf("invalid file type %s", e.MimeType)
}

// TooLargeError rejects an upload above the size cap.
type TooLargeError struct {
	Limit int64
}

func (e TooLargeError) Error() string {
	return fmt.Sprintf("file exceeds %d byte limit", e.Limit)
}

type Store struct {
	Dir          string
	MaxSizeBytes int64
	AllowedTypes []string
	Now          func() time.Time
}

func NewStore(dir string, maxSize int64, allowedTypes []string) *Store {
	return &Store{Dir: dir, MaxSizeBytes: maxSize, AllowedTypes: allowedTypes, Now: time.Now}
}

func (s *Store) allowed(mimeType string) bool {
	for _, t := range s.AllowedTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

// Save validates and writes an upload, returning its reference. Stored
// names are unique per upload; the original filename survives only in
// the returned metadata.
func (s *Store) Save(field, originalName, mimeType string, r io.Reader) (StoredFile, error) {
	if !s.allowed(mimeType) {
		return StoredFile{}, InvalidTypeError{MimeType: mimeType}
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return StoredFile{}, err
	}
	now := s.now()
	ext := strings.TrimPrefix(filepath.Ext(originalName), ".")
	stored := fmt.Sprintf("%s-%d-%d.%s", field, now.UnixMilli(), rand.Int63n(1e9), ext)
	path := filepath.Join(s.Dir, stored)
	f, err := os.Create(path)
	if err != nil {
		return StoredFile{}, err
	}
	defer f.Close()
	n, err := io.Copy(f, io.LimitReader(r, s.MaxSizeBytes+1))
	if err != nil {
		os.Remove(path)
		return StoredFile{}, err
	}
	if n > s.MaxSizeBytes {
		os.Remove(path)
		return StoredFile{}, TooLargeError{Limit: s.MaxSizeBytes}
	}
	return StoredFile{
		URL:        "/uploads/" + stored,
		MimeType:   mimeType,
		FileName:   originalName,
		UploadedAt: now.UTC().Format(time.RFC3339),
	}, nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
