// Package service wires the sync engine, its collaborators and the review
// pass from configuration. Each binary builds one Services and closes it on
// shutdown.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"basegraph.app/tally/common/llm"
	"basegraph.app/tally/core/config"
	"basegraph.app/tally/core/db"
	"basegraph.app/tally/internal/cache"
	"basegraph.app/tally/internal/classify"
	"basegraph.app/tally/internal/review"
	"basegraph.app/tally/internal/source"
	"basegraph.app/tally/internal/syncer"
)

// ErrClassifierDisabled is returned by Reviewer when no LLM is configured.
var ErrClassifierDisabled = errors.New("classifier LLM not configured")

type Services struct {
	cfg    config.Config
	db     *db.DB
	gitlab *source.GitLab
	store  cache.Store
	engine *syncer.Engine
}

// New connects the configured cache backend and the GitLab client.
// redisClient is required only for the redis backend.
func New(ctx context.Context, cfg config.Config, redisClient *redis.Client) (*Services, error) {
	gl, err := source.NewGitLab(cfg.GitLab.BaseURL, cfg.GitLab.Token, cfg.GitLab.Project)
	if err != nil {
		return nil, err
	}

	s := &Services{cfg: cfg, gitlab: gl}

	if err := s.openStore(ctx, redisClient); err != nil {
		s.Close()
		return nil, err
	}

	s.engine = syncer.NewEngine(gl, s.store, EngineConfig(cfg.Sync))
	return s, nil
}

func (s *Services) openStore(ctx context.Context, redisClient *redis.Client) error {
	switch s.cfg.Cache.Backend {
	case config.CacheBackendRedis:
		if redisClient == nil {
			return fmt.Errorf("redis cache backend needs a redis client")
		}
		s.store = cache.NewRedisStore(redisClient, s.cfg.Cache.Key)
	case config.CacheBackendPostgres:
		database, err := db.New(ctx, s.cfg.DB)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		s.db = database
		store, err := cache.NewPostgresStore(ctx, database.Pool(), s.cfg.Cache.Key)
		if err != nil {
			return err
		}
		s.store = store
	case config.CacheBackendMemory:
		s.store = cache.NewMemoryStore()
	default:
		return fmt.Errorf("unsupported cache backend %q", s.cfg.Cache.Backend)
	}

	slog.InfoContext(ctx, "cache store ready", "backend", s.cfg.Cache.Backend)
	return nil
}

// EngineConfig maps sync settings onto the engine; zero values take the
// engine defaults.
func EngineConfig(cfg config.SyncConfig) syncer.Config {
	return syncer.Config{
		ReviewerID:  cfg.ReviewerID,
		Epoch:       cfg.Epoch,
		TTL:         cfg.TTL,
		Concurrency: cfg.Concurrency,
	}
}

func (s *Services) Engine() *syncer.Engine {
	return s.engine
}

func (s *Services) Store() cache.Store {
	return s.store
}

// Reviewer builds the classification pass. Write-back to GitLab only
// happens when REVIEW_WRITE_BACK is set.
func (s *Services) Reviewer() (*review.Reviewer, error) {
	if !s.cfg.ClassifierLLM.Enabled() {
		return nil, ErrClassifierDisabled
	}

	client, err := llm.New(llm.Config{
		Provider: s.cfg.ClassifierLLM.Provider,
		APIKey:   s.cfg.ClassifierLLM.APIKey,
		BaseURL:  s.cfg.ClassifierLLM.BaseURL,
		Model:    s.cfg.ClassifierLLM.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating classifier llm client: %w", err)
	}

	var writer source.NoteWriter
	if s.cfg.Sync.WriteBack {
		writer = s.gitlab
	}

	return review.New(s.engine, s.store, classify.NewLLMClassifier(client), writer), nil
}

func (s *Services) Close() {
	if s.db != nil {
		s.db.Close()
	}
}
