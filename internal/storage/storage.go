package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

var (
	ErrEmpty           = errors.New("storage: empty file")
	ErrTooLarge        = errors.New("storage: file too large")
	ErrUnsupportedType = errors.New("storage: unsupported file type")
	ErrNotFound        = errors.New("storage: file not found")
)

// Descriptor is what the consultation core keeps about a stored file.
type Descriptor struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// headerSize is how many leading bytes filetype needs to match every type it knows.
const headerSize = 262

// Local stores attachments under a root directory, one subdirectory per owner.
type Local struct {
	root     string
	prefix   string
	maxBytes int64
}

func NewLocal(root, publicPrefix string, maxBytes int64) (*Local, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("storage: max upload size must be > 0")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", root, err)
	}
	return &Local{root: root, prefix: strings.TrimRight(publicPrefix, "/"), maxBytes: maxBytes}, nil
}

// Save sniffs the content type, writes the file atomically and returns its descriptor.
func (s *Local) Save(ctx context.Context, ownerID, originalName string, r io.Reader) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}

	head := make([]byte, headerSize)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Descriptor{}, fmt.Errorf("storage: read: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return Descriptor{}, ErrEmpty
	}
	mime, ext, err := sniff(head)
	if err != nil {
		return Descriptor{}, err
	}

	dir := safeSegment(ownerID)
	if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
		return Descriptor{}, fmt.Errorf("storage: create owner dir: %w", err)
	}
	fileName := uuid.NewString() + "." + ext
	target := filepath.Join(s.root, dir, fileName)
	tmp := target + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return Descriptor{}, fmt.Errorf("storage: create file: %w", err)
	}
	defer f.Close()

	limited := &io.LimitedReader{R: io.MultiReader(bytes.NewReader(head), r), N: s.maxBytes + 1}
	written, err := io.Copy(f, limited)
	if err != nil {
		_ = os.Remove(tmp)
		return Descriptor{}, fmt.Errorf("storage: write: %w", err)
	}
	if written > s.maxBytes {
		_ = os.Remove(tmp)
		return Descriptor{}, ErrTooLarge
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return Descriptor{}, fmt.Errorf("storage: close: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return Descriptor{}, fmt.Errorf("storage: rename: %w", err)
	}

	return Descriptor{
		URL:      s.prefix + "/" + path.Join(dir, fileName),
		Name:     displayName(originalName, ext),
		MimeType: mime,
		Size:     written,
	}, nil
}

// Resolve maps a path relative to the public prefix to a file on disk.
func (s *Local) Resolve(rel string) (string, error) {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" || strings.HasSuffix(rel, ".tmp") {
		return "", ErrNotFound
	}
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return "", ErrNotFound
	}
	return full, nil
}

func sniff(head []byte) (mime, ext string, err error) {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return "", "", ErrUnsupportedType
	}
	if !filetype.IsImage(head) && !filetype.IsDocument(head) && !filetype.IsArchive(head) {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, kind.MIME.Value)
	}
	return kind.MIME.Value, kind.Extension, nil
}

func safeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" {
		return "anonymous"
	}
	return s
}

// displayName keeps the uploader's base name for display only.
func displayName(name, ext string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return "attachment." + ext
	}
	return name
}
