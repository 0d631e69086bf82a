// Package analysis supplies FaceAnalysis records for avatar candidates.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/pkg/logger"
)

const sidecarExt = ".yaml"

// Analyzer produces one FaceAnalysis per candidate, in candidate order.
type Analyzer interface {
	Analyze(ctx context.Context, candidates []model.AvatarCandidate) ([]model.FaceAnalysis, error)
}

// SidecarAnalyzer reads "<image>.yaml" files next to each avatar image.
// Missing or unreadable sidecars yield an empty analysis.
type SidecarAnalyzer struct {
	log logger.Logger
}

var _ Analyzer = (*SidecarAnalyzer)(nil)

// NewSidecarAnalyzer creates a sidecar analyzer.
func NewSidecarAnalyzer(log logger.Logger) *SidecarAnalyzer {
	if log == nil {
		log = logger.Nop()
	}
	return &SidecarAnalyzer{log: log.Named("analysis")}
}

// Analyze implements Analyzer.
func (s *SidecarAnalyzer) Analyze(ctx context.Context, candidates []model.AvatarCandidate) ([]model.FaceAnalysis, error) {
	out := make([]model.FaceAnalysis, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analyze: %w", err)
		}
		a, err := s.read(c.Location)
		if err != nil {
			s.log.Warn(ctx, "ignoring face analysis sidecar",
				logger.String("candidate", c.ID),
				logger.Error(err))
			a = model.FaceAnalysis{}
		}
		a.CandidateID = c.ID
		out = append(out, a)
	}
	return out, nil
}

func (s *SidecarAnalyzer) read(location string) (model.FaceAnalysis, error) {
	var a model.FaceAnalysis
	if location == "" || strings.Contains(location, "://") {
		return a, nil
	}
	for _, path := range sidecarPaths(location) {
		data, err := os.ReadFile(path) //nolint:gosec // paths come from the avatar directory
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return a, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &a); err != nil {
			return model.FaceAnalysis{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return a, nil
	}
	return a, nil
}

// sidecarPaths lists "photo.yaml" then "photo.png.yaml" for "photo.png".
func sidecarPaths(location string) []string {
	stem := strings.TrimSuffix(location, filepath.Ext(location))
	return []string{stem + sidecarExt, location + sidecarExt}
}

// StaticAnalyzer serves analyses from a map keyed by candidate ID.
type StaticAnalyzer map[string]model.FaceAnalysis

var _ Analyzer = StaticAnalyzer(nil)

// Analyze implements Analyzer.
func (s StaticAnalyzer) Analyze(_ context.Context, candidates []model.AvatarCandidate) ([]model.FaceAnalysis, error) {
	out := make([]model.FaceAnalysis, 0, len(candidates))
	for _, c := range candidates {
		a := s[c.ID]
		a.CandidateID = c.ID
		out = append(out, a)
	}
	return out, nil
}
