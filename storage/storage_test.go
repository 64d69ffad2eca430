package storage

import (
	"bytes"
	"errors"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// pngHeader is enough for content sniffing to classify the file as image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	store, err := New(t.TempDir(), 1<<20, []string{"image", "text"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return store
}

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("proof", name)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	w.Close()

	reader := multipart.NewReader(&buf, w.Boundary())
	form, err := reader.ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("failed to read form: %v", err)
	}
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["proof"][0]
}

func TestSaveProofStoresUnderEntityPath(t *testing.T) {
	store := newTestStorage(t)

	saved, err := store.SaveProof(fileHeader(t, "photo.png", pngHeader), "Spring Hunt", "Reds", "Find the statue")
	if err != nil {
		t.Fatalf("SaveProof failed: %v", err)
	}

	want := "proofs/Spring Hunt/Reds/Find the statue/photo.png"
	if saved.Path != want {
		t.Errorf("expected path %q, got %q", want, saved.Path)
	}
	if saved.ContentType != "image/png" {
		t.Errorf("expected image/png, got %q", saved.ContentType)
	}

	if _, err := os.Stat(filepath.Join(store.Root(), filepath.FromSlash(saved.Path))); err != nil {
		t.Errorf("stored file missing: %v", err)
	}
}

func TestSaveProofRejectsDisallowedType(t *testing.T) {
	store := newTestStorage(t)

	// ZIP content sniffs as application/zip, which is not on the allow-list
	zipHeader := []byte("PK\x03\x04\x14\x00\x00\x00\x08\x00")
	_, err := store.SaveProof(fileHeader(t, "archive.zip", zipHeader), "Spring Hunt", "Reds", "Find the statue")
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestSaveProofDisambiguatesCollisions(t *testing.T) {
	store := newTestStorage(t)

	first, err := store.SaveProof(fileHeader(t, "photo.png", pngHeader), "Spring Hunt", "Reds", "Find the statue")
	if err != nil {
		t.Fatalf("SaveProof failed: %v", err)
	}
	second, err := store.SaveProof(fileHeader(t, "photo.png", pngHeader), "Spring Hunt", "Reds", "Find the statue")
	if err != nil {
		t.Fatalf("SaveProof failed: %v", err)
	}

	if first.Path == second.Path {
		t.Fatalf("colliding upload reused path %q", first.Path)
	}
	if !strings.HasPrefix(second.Name, "photo-") || !strings.HasSuffix(second.Name, ".png") {
		t.Errorf("expected a suffixed name, got %q", second.Name)
	}
}

func TestSaveProofSanitizesEntityNames(t *testing.T) {
	store := newTestStorage(t)

	saved, err := store.SaveProof(fileHeader(t, "photo.png", pngHeader), "..", "Reds/2024", "Find the statue")
	if err != nil {
		t.Fatalf("SaveProof failed: %v", err)
	}
	if !strings.HasPrefix(saved.Path, "proofs/_/Reds_2024/") {
		t.Errorf("path elements not sanitized: %q", saved.Path)
	}

	full := filepath.Join(store.Root(), filepath.FromSlash(saved.Path))
	rel, err := filepath.Rel(store.Root(), full)
	if err != nil || strings.HasPrefix(rel, "..") {
		t.Errorf("stored file escaped the media root: %q", full)
	}
}

func TestSaveProofRejectsOversizedFile(t *testing.T) {
	store, err := New(t.TempDir(), 8, []string{"image"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := store.SaveProof(fileHeader(t, "photo.png", pngHeader), "Spring Hunt", "Reds", "Find the statue"); err == nil {
		t.Error("oversized file should be rejected")
	}
}

func TestRemoveToleratesMissingFile(t *testing.T) {
	store := newTestStorage(t)

	if err := store.Remove("proofs/nope/photo.png"); err != nil {
		t.Errorf("removing a missing file should not fail: %v", err)
	}
}
