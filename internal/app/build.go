package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/okian/avatarcast/internal/adapters/analysis"
	"github.com/okian/avatarcast/internal/adapters/mq/queue"
	"github.com/okian/avatarcast/internal/adapters/notify"
	"github.com/okian/avatarcast/internal/adapters/pool"
	"github.com/okian/avatarcast/internal/adapters/repository"
	"github.com/okian/avatarcast/internal/adapters/speech"
	"github.com/okian/avatarcast/internal/adapters/video"
	"github.com/okian/avatarcast/internal/config"
	"github.com/okian/avatarcast/internal/domain/dedupe"
	"github.com/okian/avatarcast/internal/domain/scoring"
	"github.com/okian/avatarcast/internal/domain/script"
	"github.com/okian/avatarcast/internal/orchestrator"
)

const dedupeTTL = 24 * time.Hour

// redisClient returns the injected client or dials cfg.RedisAddr on first
// use. Only redis-backed components call it.
func (s *Service) redisClient() redis.UniversalClient {
	if s.redis == nil {
		s.redis = redis.NewClient(&redis.Options{Addr: s.cfg.RedisAddr})
		s.ownsRedis = true
	}
	return s.redis
}

func (s *Service) buildPool(ctx context.Context) (pool.Pool, error) {
	if s.cfg.Avatars.Backend == "redis" {
		return pool.NewRedisPool(s.redisClient(), s.cfg.Avatars.RedisPrefix), nil
	}
	seed, err := s.local.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover avatars: %w", err)
	}
	return pool.NewInMemoryPool(seed), nil
}

func (s *Service) buildQueue() queue.Queue {
	if s.cfg.QueueBackend == "redis" {
		return queue.NewRedisQueue(s.redisClient(), s.cfg.QueueKey,
			queue.WithCapacity(s.cfg.QueueSize),
			queue.WithLogger(s.logger))
	}
	return queue.NewInMemoryQueue(
		queue.WithCapacity(s.cfg.QueueSize),
		queue.WithBufferSize(s.cfg.QueueSize),
	)
}

// buildDeduper shares request ids through redis whenever the queue is
// shared, so a retry hitting another instance is still recognized.
func (s *Service) buildDeduper() dedupe.Deduper {
	if s.cfg.QueueBackend == "redis" {
		return dedupe.NewRedisDeduper(s.redisClient(), s.cfg.QueueKey+":dedupe", dedupeTTL)
	}
	return dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
}

func (s *Service) buildStore(ctx context.Context) (repository.Store, error) {
	if s.store != nil {
		return s.store, nil
	}
	if strings.TrimSpace(s.cfg.Database.DSN) == "" {
		s.logger.Info(ctx, "no database configured; generation records are kept in memory only")
		return repository.NopStore{}, nil
	}
	store, err := repository.OpenPostgres(ctx, s.cfg.Database.DSN, repository.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Service) buildNotifier() orchestrator.Notifier {
	if s.cfg.Notify.WebhookURL == "" {
		return notify.NewLog(s.logger)
	}
	return notify.NewWebhook(s.cfg.Notify.WebhookURL,
		notify.WithHTTPClient(s.httpClient),
		notify.WithTimeout(time.Duration(s.cfg.Notify.TimeoutMS)*time.Millisecond),
		notify.WithLogger(s.logger))
}

// buildSynthesizer wires the configured primary and secondary providers.
func (s *Service) buildSynthesizer() (speech.Synthesizer, error) {
	if s.synth != nil {
		return s.synth, nil
	}
	primary, err := s.synthesizer(s.cfg.Synthesis.Primary)
	if err != nil {
		return nil, err
	}
	var secondary speech.Synthesizer
	if s.cfg.Synthesis.Secondary != "" {
		if secondary, err = s.synthesizer(s.cfg.Synthesis.Secondary); err != nil {
			return nil, err
		}
	}
	return speech.NewFallback(primary, secondary,
		speech.WithTimeout(s.cfg.SynthesisTimeout()),
		speech.WithLogger(s.logger)), nil
}

func (s *Service) synthesizer(name string) (speech.Synthesizer, error) {
	sc := s.cfg.Synthesis
	switch strings.ToLower(name) {
	case "elevenlabs":
		return speech.NewElevenLabs(speech.ElevenLabsConfig{
			APIKey:  sc.ElevenLabs.APIKey,
			BaseURL: sc.ElevenLabs.BaseURL,
			VoiceID: sc.ElevenLabs.VoiceID,
			ModelID: sc.ElevenLabs.ModelID,
		}, s.media, s.httpClient), nil
	case "openai":
		return speech.NewOpenAI(speech.OpenAIConfig{
			APIKey:  sc.OpenAI.APIKey,
			BaseURL: sc.OpenAI.BaseURL,
			Model:   sc.OpenAI.Model,
			Voice:   sc.OpenAI.Voice,
		}, s.media), nil
	case "native":
		return speech.NewNative(sc.DefaultLanguage), nil
	default:
		return nil, fmt.Errorf("unknown synthesis provider %q", name)
	}
}

// buildRegistry creates every known video adapter; the priority list picks
// and orders them.
func (s *Service) buildRegistry() *video.Registry {
	if len(s.providers) > 0 {
		return video.NewRegistry(s.providers...)
	}
	vc := s.cfg.Video
	conf := func(p config.ProviderConfig) video.Config {
		attempts := vc.MaxPollAttempts
		if p.MaxPollAttempts > 0 {
			attempts = p.MaxPollAttempts
		}
		return video.Config{
			APIKey:       p.APIKey,
			BaseURL:      p.BaseURL,
			Version:      p.Version,
			PollInterval: s.cfg.PollInterval(),
			MaxAttempts:  attempts,
			NativeVoices: p.NativeVoices,
			HTTPClient:   s.httpClient,
			Logger:       s.logger,
		}
	}
	return video.NewRegistry(
		video.NewHeyGen(conf(vc.HeyGen)),
		video.NewDID(conf(vc.DID)),
		video.NewReplicate(conf(vc.Replicate)),
	)
}

func (s *Service) buildOrchestrator(p pool.Pool, synth speech.Synthesizer, registry *video.Registry) (*orchestrator.Orchestrator, error) {
	scorer := scoring.NewEngine(
		scoring.WithNeutralPrior(s.cfg.Scoring.NeutralPrior),
		scoring.WithSemanticSaturation(s.cfg.Scoring.SemanticSaturation),
	)
	scripts := script.NewAnalyzer(
		script.WithDetector(script.NewLinguaDetector()),
		script.WithDefaultLanguage(s.cfg.Synthesis.DefaultLanguage),
	)
	return orchestrator.New(
		orchestrator.Config{
			VideoProviderPriority: s.cfg.Video.Priority,
			UseScoring:            s.cfg.Avatars.UseScoring,
		},
		p, synth, registry,
		orchestrator.WithScriptAnalyzer(scripts),
		orchestrator.WithFaceAnalyzer(analysis.NewSidecarAnalyzer(s.logger)),
		orchestrator.WithScorer(scorer),
		orchestrator.WithImageResolver(s.local),
		orchestrator.WithArchiver(s.local),
		orchestrator.WithRecorder(s.store),
		orchestrator.WithNotifier(s.notifier),
		orchestrator.WithObserver(s.jobs.update),
		orchestrator.WithLogger(s.logger),
	)
}
