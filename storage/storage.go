package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrUnsupportedType is returned when an uploaded file's sniffed MIME
// category is not on the allow-list.
var ErrUnsupportedType = errors.New("unsupported file type")

// Storage keeps proof files on local disk under
// <root>/proofs/<game>/<group>/<task>/<filename>.
type Storage struct {
	root        string
	maxFileSize int64
	allowed     map[string]struct{}
}

type SavedFile struct {
	Name        string
	Path        string
	ContentType string
	Size        int64
}

// New creates the media root if needed. allowedTypes lists top-level MIME
// categories ("image", "application", "text").
func New(root string, maxFileSize int64, allowedTypes []string) (*Storage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media root: %w", err)
	}

	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[strings.TrimSpace(t)] = struct{}{}
	}

	return &Storage{
		root:        root,
		maxFileSize: maxFileSize,
		allowed:     allowed,
	}, nil
}

func (s *Storage) Root() string {
	return s.root
}

// SaveProof validates and stores one uploaded proof file, returning its path
// relative to the media root. The MIME type is sniffed from the content, not
// taken from the client headers.
func (s *Storage) SaveProof(file *multipart.FileHeader, game, group, task string) (*SavedFile, error) {
	if file.Size > s.maxFileSize {
		return nil, fmt.Errorf("file %s exceeds the maximum upload size", file.Filename)
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	mainType, _, _ := strings.Cut(mtype.String(), "/")
	if _, ok := s.allowed[mainType]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind uploaded file: %w", err)
	}

	name := filepath.Base(file.Filename)
	relPath := filepath.Join("proofs", segment(game), segment(group), segment(task), name)
	fullPath := filepath.Join(s.root, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create proof directory: %w", err)
	}

	// Keep the original filename, disambiguate on collision
	if _, err := os.Stat(fullPath); err == nil {
		ext := filepath.Ext(name)
		name = fmt.Sprintf("%s-%s%s", strings.TrimSuffix(name, ext), uuid.New().String()[:8], ext)
		relPath = filepath.Join(filepath.Dir(relPath), name)
		fullPath = filepath.Join(s.root, relPath)
	}

	dst, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create proof file: %w", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(fullPath)
		return nil, fmt.Errorf("failed to write proof file: %w", err)
	}

	return &SavedFile{
		Name:        name,
		Path:        filepath.ToSlash(relPath),
		ContentType: mtype.String(),
		Size:        size,
	}, nil
}

// Remove deletes a stored proof file. A missing file is not an error; the
// database row is the source of truth.
func (s *Storage) Remove(relPath string) error {
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(relPath)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// segment makes an entity name safe to use as a single path element.
func segment(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}
