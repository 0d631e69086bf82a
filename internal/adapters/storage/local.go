// Package storage manages avatar image files and synthesized media on the
// local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/okian/avatarcast/internal/domain/model"
)

const dirPerm = 0o750

// imageExts are the avatar image types picked up by Discover.
var imageExts = map[string]struct{}{ //nolint:gochecknoglobals // static lookup table
	".png": {}, ".jpg": {}, ".jpeg": {}, ".webp": {},
}

// LocalStore keeps available avatars in one directory and used avatars in
// another. Moving a file between them mirrors the pool partition.
type LocalStore struct {
	availableDir string
	usedDir      string
	baseURL      string
}

// NewLocalStore creates a store. baseURL is the public URL of availableDir;
// empty means providers receive the local path.
func NewLocalStore(availableDir, usedDir, baseURL string) *LocalStore {
	return &LocalStore{
		availableDir: availableDir,
		usedDir:      usedDir,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
	}
}

// AvailableDir returns the directory holding available images.
func (s *LocalStore) AvailableDir() string { return s.availableDir }

// Discover lists the images of both directories. IDs are file names, so an
// image keeps its ID when it moves between directories.
func (s *LocalStore) Discover(ctx context.Context) ([]model.AvatarCandidate, error) {
	avail, err := s.scan(ctx, s.availableDir, model.MembershipAvailable)
	if err != nil {
		return nil, err
	}
	used, err := s.scan(ctx, s.usedDir, model.MembershipUsed)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(avail))
	for _, c := range avail {
		seen[c.ID] = struct{}{}
	}
	for _, c := range used {
		if _, dup := seen[c.ID]; !dup {
			c.UseCount = 1
			avail = append(avail, c)
		}
	}
	sort.Slice(avail, func(i, j int) bool { return avail[i].ID < avail[j].ID })
	return avail, nil
}

func (s *LocalStore) scan(ctx context.Context, dir string, m model.Membership) ([]model.AvatarCandidate, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	out := make([]model.AvatarCandidate, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, ok := imageExts[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		out = append(out, model.AvatarCandidate{
			ID:         e.Name(),
			Filename:   e.Name(),
			Location:   filepath.Join(dir, e.Name()),
			Membership: m,
		})
	}
	return out, nil
}

// ImageURL returns the URL a video provider should fetch for c.
func (s *LocalStore) ImageURL(c model.AvatarCandidate) string {
	if strings.Contains(c.Location, "://") || s.baseURL == "" {
		return c.Location
	}
	return s.baseURL + "/" + url.PathEscape(c.Filename)
}

// Archive moves c's file into the used directory.
func (s *LocalStore) Archive(ctx context.Context, c model.AvatarCandidate) error {
	return s.relocate(ctx, c, s.availableDir, s.usedDir)
}

// Restore moves c's file back into the available directory.
func (s *LocalStore) Restore(ctx context.Context, c model.AvatarCandidate) error {
	return s.relocate(ctx, c, s.usedDir, s.availableDir)
}

func (s *LocalStore) relocate(ctx context.Context, c model.AvatarCandidate, from, to string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("relocate %s: %w", c.ID, err)
	}
	if c.Filename == "" || strings.Contains(c.Location, "://") {
		return fmt.Errorf("relocate %s: %w", c.ID, ErrNotLocal)
	}
	name := filepath.Base(c.Filename)
	if err := os.MkdirAll(to, dirPerm); err != nil {
		return fmt.Errorf("relocate %s: %w", c.ID, err)
	}
	if err := os.Rename(filepath.Join(from, name), filepath.Join(to, name)); err != nil {
		return fmt.Errorf("relocate %s: %w", c.ID, err)
	}
	return nil
}
