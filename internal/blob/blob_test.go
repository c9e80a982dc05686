package blob

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(t.TempDir(), 1024, []string{"application/pdf", "image/png"})
	s.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestSaveAcceptedFile(t *testing.T) {
	s := newTestStore(t)
	stored, err := s.Save("file", "report.pdf", "application/pdf", strings.NewReader("content"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(stored.URL, "/uploads/") || !strings.HasSuffix(stored.URL, ".pdf") {
		t.Fatalf("unexpected url %s", stored.URL)
	}
	if stored.FileName != "report.pdf" || stored.MimeType != "application/pdf" {
		t.Fatalf("metadata lost: %+v", stored)
	}
	if stored.UploadedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("unexpected timestamp %s", stored.UploadedAt)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, strings.TrimPrefix(stored.URL, "/uploads/")))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "content" {
		t.Fatalf("stored content mismatch: %q", data)
	}
}

func TestSaveRejectsDisallowedType(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Save("file", "run.exe", "application/x-msdownload", strings.NewReader("x"))
	var ite InvalidTypeError
	if !errors.As(err, &ite) {
		t.Fatalf("expected invalid type error, got %v", err)
	}
}

func TestSaveRejectsOversizedFile(t *testing.T) {
	s := newTestStore(t)
	big := strings.Repeat("a", 2048)
	_, err := s.Save("file", "big.pdf", "application/pdf", strings.NewReader(big))
	var tle TooLargeError
	if !errors.As(err, &tle) {
		t.Fatalf("expected too large error, got %v", err)
	}
	// The partial write must not survive.
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir after rejected upload, found %d entries", len(entries))
	}
}

func TestStoredNamesAreUnique(t *testing.T) {
	s := newTestStore(t)
	a, err := s.Save("file", "same.png", "image/png", strings.NewReader("1"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Save("file", "same.png", "image/png", strings.NewReader("2"))
	if err != nil {
		t.Fatal(err)
	}
	if a.URL == b.URL {
		t.Fatalf("two uploads mapped to the same stored name %s", a.URL)
	}
}
