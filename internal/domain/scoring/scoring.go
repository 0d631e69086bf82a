// Package scoring ranks avatar candidates against a script.
//
// Each candidate gets four sub-scores in [0,100]: semantic match (40%),
// emotion match (30%), image quality (20%) and usage context (10%). Any
// missing signal falls back to the neutral prior so one absent field never
// zeroes a candidate out.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/okian/avatarcast/internal/domain/model"
)

// Sub-score weights in percent.
const (
	weightSemantic = 40
	weightEmotion  = 30
	weightQuality  = 20
	weightContext  = 10

	defaultNeutralPrior       = 50
	defaultSemanticSaturation = 3
	// semanticMissPenalty is subtracted from the prior when a candidate has
	// descriptive tokens but none of them match the script.
	semanticMissPenalty = 10
	// fatiguePerUse is the context penalty per prior consumption.
	fatiguePerUse = 25

	maxScoreValue = 100
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithNeutralPrior sets the value used for every missing signal.
func WithNeutralPrior(prior float64) Option {
	return func(e *Engine) {
		if prior >= 0 && prior <= maxScoreValue {
			e.prior = prior
		}
	}
}

// WithSemanticSaturation sets how many matching tokens yield a full
// semantic score.
func WithSemanticSaturation(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.saturation = n
		}
	}
}

// Scorer ranks candidates for a script.
type Scorer interface {
	// Score returns one AvatarScore per candidate, best first.
	Score(ctx context.Context, sc model.ScriptContext, candidates []model.AvatarCandidate, analyses []model.FaceAnalysis) ([]model.AvatarScore, error)
}

// Engine implements Scorer with the weighted four-factor model.
type Engine struct {
	prior      float64
	saturation int
}

var _ Scorer = (*Engine)(nil)

// NewEngine creates a scoring engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		prior:      defaultNeutralPrior,
		saturation: defaultSemanticSaturation,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score ranks candidates descending by total; ties go to the smaller ID.
// Analyses are matched by CandidateID; candidates without one are scored
// on priors.
func (e *Engine) Score(ctx context.Context, sc model.ScriptContext, candidates []model.AvatarCandidate, analyses []model.FaceAnalysis) ([]model.AvatarScore, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	byID := make(map[string]model.FaceAnalysis, len(analyses))
	for _, a := range analyses {
		if a.CandidateID != "" {
			byID[a.CandidateID] = a
		}
	}

	scriptTokens := make(map[string]struct{}, len(sc.Tokens))
	for _, t := range sc.Tokens {
		scriptTokens[t] = struct{}{}
	}

	scores := make([]model.AvatarScore, 0, len(candidates))
	for _, c := range candidates {
		a := byID[c.ID]
		s := model.AvatarScore{
			Candidate: c,
			Semantic:  e.semantic(scriptTokens, c, a),
			Emotion:   e.emotion(sc.Tone, a),
			Quality:   e.quality(a),
			Context:   e.context(c),
		}
		s.Total = clamp((weightSemantic*s.Semantic + weightEmotion*s.Emotion +
			weightQuality*s.Quality + weightContext*s.Context) / 100)
		scores = append(scores, s)
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Total != scores[j].Total {
			return scores[i].Total > scores[j].Total
		}
		return scores[i].Candidate.ID < scores[j].Candidate.ID
	})
	return scores, nil
}

// Best returns the top-ranked entry of a Score result.
func Best(scores []model.AvatarScore) (model.AvatarScore, error) {
	if len(scores) == 0 {
		return model.AvatarScore{}, ErrNoCandidates
	}
	return scores[0], nil
}

func (e *Engine) semantic(scriptTokens map[string]struct{}, c model.AvatarCandidate, a model.FaceAnalysis) float64 {
	desc := make(map[string]struct{})
	for _, t := range FilenameTokens(c.Filename) {
		desc[t] = struct{}{}
	}
	for _, tags := range [][]string{c.Tags, a.Tags} {
		for _, tag := range tags {
			for _, t := range Tokenize(tag) {
				desc[t] = struct{}{}
			}
		}
	}
	if len(desc) == 0 {
		return e.prior
	}

	matched := 0
	for t := range desc {
		if _, ok := scriptTokens[t]; ok {
			matched++
		}
	}
	if matched == 0 {
		return clamp(e.prior - semanticMissPenalty)
	}
	ratio := math.Min(1, float64(matched)/float64(e.saturation))
	return clamp(e.prior + (maxScoreValue-e.prior)*ratio)
}

func (e *Engine) emotion(tone model.Tone, a model.FaceAnalysis) float64 {
	v, ok := emotionAffinity(tone, a.Emotion)
	if !ok {
		return e.prior
	}
	if a.EmotionConfidence != nil && finite(*a.EmotionConfidence) {
		conf := math.Max(0, math.Min(1, *a.EmotionConfidence))
		v = e.prior + (v-e.prior)*conf
	}
	return clamp(v)
}

func (e *Engine) quality(a model.FaceAnalysis) float64 {
	if a.Quality == nil || !finite(*a.Quality) {
		return e.prior
	}
	return clamp(*a.Quality * maxScoreValue)
}

func (e *Engine) context(c model.AvatarCandidate) float64 {
	if !c.HasUsageHistory() {
		return e.prior
	}
	return clamp(float64(maxScoreValue - fatiguePerUse*c.UseCount))
}

// clamp bounds v to [0,100]; NaN maps to 0.
func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(maxScoreValue, v))
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
