package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const filePerm = 0o640

// AudioStore persists synthesized audio and returns a fetchable URL.
type AudioStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// MediaStore writes media files into a directory served over HTTP.
type MediaStore struct {
	dir     string
	baseURL string
}

var _ AudioStore = (*MediaStore)(nil)

// NewMediaStore creates a store rooted at dir and published at baseURL.
func NewMediaStore(dir, baseURL string) *MediaStore {
	return &MediaStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Dir returns the media root.
func (m *MediaStore) Dir() string { return m.dir }

// Put implements AudioStore.
func (m *MediaStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}
	if len(data) == 0 {
		return "", ErrEmptyPayload
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := os.MkdirAll(m.dir, dirPerm); err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, name), data, filePerm); err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}
	return m.baseURL + "/" + url.PathEscape(name), nil
}
