package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/autorfp/internal/adapters/driven/ai"
	"github.com/custodia-labs/autorfp/internal/adapters/driven/cache/memory"
	"github.com/custodia-labs/autorfp/internal/adapters/driven/config/file"
	"github.com/custodia-labs/autorfp/internal/adapters/driven/retrieval/httpapi"
	"github.com/custodia-labs/autorfp/internal/adapters/driven/retrieval/local"
	"github.com/custodia-labs/autorfp/internal/adapters/driven/storage/cached"
	memstore "github.com/custodia-labs/autorfp/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/autorfp/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/autorfp/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/autorfp/internal/adapters/driving/cli"
	"github.com/custodia-labs/autorfp/internal/core/agents"
	"github.com/custodia-labs/autorfp/internal/core/domain"
	"github.com/custodia-labs/autorfp/internal/core/ports/driven"
	"github.com/custodia-labs/autorfp/internal/core/services"
	"github.com/custodia-labs/autorfp/internal/logger"
	"github.com/custodia-labs/autorfp/internal/normalisers"
	"github.com/custodia-labs/autorfp/internal/telemetry"
)

// bootstrap loads the config file and builds the services.
func bootstrap(ctx context.Context, opts cli.Options) (*cli.Services, func() error, error) {
	store, err := file.NewConfigStore(opts.ConfigDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open config: %w", err)
	}
	prompts, err := file.NewPromptStore(promptDir(opts.ConfigDir))
	if err != nil {
		return nil, nil, fmt.Errorf("open prompts: %w", err)
	}
	svcs, done, err := wire(ctx, store, prompts, ai.NewFactory(), opts)
	if err != nil || !opts.LongRunning {
		return svcs, done, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := prompts.Watch(watchCtx, nil); err != nil {
			logger.Debug("prompt watch stopped: %v", err)
		}
	}()
	return svcs, func() error {
		cancel()
		return done()
	}, nil
}

func promptDir(configDir string) string {
	if configDir == "" {
		return ""
	}
	return filepath.Join(configDir, "prompts")
}

// closer collects cleanup funcs and runs them in reverse order.
type closer []func() error

func (c *closer) add(fn func() error) { *c = append(*c, fn) }

func (c closer) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// wire assembles the pipeline from settings. On error everything opened so
// far is closed.
func wire(
	ctx context.Context,
	store driven.ConfigStore,
	prompts driven.PromptStore,
	factory *ai.Factory,
	opts cli.Options,
) (svcs *cli.Services, done func() error, err error) {
	settingsSvc := services.NewSettingsService(store)
	svcs = &cli.Services{
		Settings: settingsSvc,
		Checker:  ai.NewValidator(factory),
	}

	settings, err := settingsSvc.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}
	if err := settingsSvc.Validate(); err != nil {
		// Settings commands still work so the configuration can be fixed.
		svcs.Unavailable = err
		return svcs, func() error { return nil }, nil
	}

	var cleanup closer
	defer func() {
		if err != nil {
			if cerr := cleanup.close(); cerr != nil {
				logger.Warn("cleanup after failed start: %v", cerr)
			}
		}
	}()

	metrics := telemetry.Global()

	repo, err := openRepository(ctx, settings.Storage, opts.DataDir)
	if err != nil {
		return nil, nil, err
	}
	cache := memory.New()
	cachedRepo := cached.New(repo, cache, cached.WithMetrics(metrics))
	cleanup.add(cachedRepo.Close)

	var model driven.ModelClient
	model, err = factory.NewModelClient(ctx, settings.Model)
	if err != nil {
		// Inspection commands work without a model; runs fail at the first step.
		logger.Debug("model unavailable: %v", err)
		model, err = unavailableModel{err: err}, nil
	}
	cleanup.add(model.Close)

	embedder, err := factory.NewEmbedder(settings.Embedding)
	if err != nil {
		return nil, nil, fmt.Errorf("create embedder: %w", err)
	}
	if embedder != nil {
		cleanup.add(embedder.Close)
	}

	retrieval, err := newRetrieval(settings, cachedRepo, model, embedder, &cleanup)
	if err != nil {
		return nil, nil, err
	}

	agentOpts := []agents.Option{
		agents.WithRetry(agents.RetryPolicy{
			Attempts:  settings.Agent.RetryAttempts,
			BaseDelay: settings.Agent.BaseDelay,
		}),
		agents.WithTruncationLimit(settings.Agent.TruncationLimit),
		agents.WithWorkers(settings.Retrieval.Workers),
		agents.WithTopK(settings.Retrieval.TopK),
		agents.WithPromptStore(prompts),
		agents.WithMetrics(metrics),
	}
	if settings.Retrieval.RatePerSecond > 0 {
		burst := max(1, int(settings.Retrieval.RatePerSecond))
		agentOpts = append(agentOpts, agents.WithRateLimiter(
			rate.NewLimiter(rate.Limit(settings.Retrieval.RatePerSecond), burst)))
	}
	set := agents.NewSet(model, retrieval, agentOpts...)

	workflows := services.NewWorkflowService(cachedRepo, set, normalisers.Default(),
		services.WithStreaming(settings.Agent.Stream),
		services.WithWorkflowMetrics(metrics),
	)
	cleanup.add(workflows.Close)

	sweeper := services.NewRetentionSweeper(cachedRepo, settings.Retention)
	if opts.LongRunning {
		go func() {
			if err := sweeper.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("retention sweeper: %v", err)
			}
		}()
		cleanup.add(sweeper.Stop)
	}

	svcs.Workflows = workflows
	svcs.Retention = sweeper

	logger.Debug("storage=%s model=%s retrieval=%s embedding=%s",
		settings.Storage.Backend, model.ModelName(), settings.Retrieval.Provider, settings.Embedding.Provider)
	return svcs, cleanup.close, nil
}

// openRepository opens the configured storage backend.
func openRepository(ctx context.Context, s domain.StorageSettings, dataDir string) (driven.Repository, error) {
	switch s.Backend {
	case domain.StorageMemory:
		return memstore.NewRepository(), nil
	case domain.StoragePostgres:
		store, err := postgres.Open(ctx, s.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, nil
	case domain.StorageSQLite, "":
		path := s.Path
		if path == "" && dataDir != "" {
			path = filepath.Join(dataDir, "autorfp.db")
		}
		store, err := sqlite.NewStore(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: storage backend %q", domain.ErrUnsupportedType, s.Backend)
	}
}

// newRetrieval builds the configured retrieval service.
func newRetrieval(
	settings *domain.AppSettings,
	docs driven.DocumentStore,
	model driven.ModelClient,
	embedder driven.Embedder,
	cleanup *closer,
) (driven.RetrievalService, error) {
	switch settings.Retrieval.Provider {
	case domain.RetrievalHTTP:
		client, err := httpapi.New(httpapi.Config{
			URL:           settings.Retrieval.URL,
			RatePerSecond: settings.Retrieval.RatePerSecond,
			Timeout:       settings.Model.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create retrieval client: %w", err)
		}
		cleanup.add(client.Close)
		return client, nil
	default:
		opts := []local.Option{
			local.WithModel(model),
			local.WithTopK(settings.Retrieval.TopK),
		}
		if embedder != nil {
			opts = append(opts, local.WithEmbedder(embedder))
		}
		return local.New(docs, opts...), nil
	}
}

// unavailableModel stands in for a model client that could not be built.
type unavailableModel struct{ err error }

func (m unavailableModel) Invoke(context.Context, string) (string, error) {
	return "", m.err
}

func (m unavailableModel) Stream(context.Context, string, func(string)) (string, error) {
	return "", m.err
}

func (m unavailableModel) ModelName() string {
	return "unavailable"
}

func (m unavailableModel) Ping(context.Context) error {
	return m.err
}

func (m unavailableModel) Close() error {
	return nil
}
