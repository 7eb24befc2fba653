package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/verdantly/proposal-cli/internal/pipeline"
	"github.com/verdantly/proposal-cli/internal/provider"
	"github.com/verdantly/proposal-cli/internal/store"
	anthropicpkg "github.com/verdantly/proposal-cli/pkg/anthropic"
	"github.com/verdantly/proposal-cli/pkg/openai"
)

// pipelineEnv holds the initialized store, provider client, and pipeline
// needed by the generate/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured database backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error

	switch cfg.Store.Driver {
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initProvider builds the configured AI driver and wraps it in the retrying
// client.
func initProvider() (*provider.Client, error) {
	p := cfg.Provider

	var driver provider.Driver
	switch p.Driver {
	case "openai", "":
		if p.OpenAI.Key == "" {
			return nil, eris.New("PROPOSAL_PROVIDER_OPENAI_KEY is not set")
		}
		client := openai.NewClient(p.OpenAI.Key,
			openai.WithBaseURL(p.OpenAI.BaseURL),
			openai.WithModel(p.OpenAI.Model),
		)
		driver = provider.NewOpenAIDriver(client, p.OpenAI.Model, p.MaxTokens, p.Temperature)
	case "anthropic":
		if p.Anthropic.Key == "" {
			return nil, eris.New("PROPOSAL_PROVIDER_ANTHROPIC_KEY is not set")
		}
		client := anthropicpkg.NewClient(p.Anthropic.Key)
		driver = provider.NewAnthropicDriver(client, p.Anthropic.Model, int64(p.MaxTokens), p.Temperature)
	default:
		return nil, eris.Errorf("unknown provider driver %q", p.Driver)
	}

	return provider.New(driver, provider.Config{
		MaxAttempts:       p.MaxAttempts,
		BaseBackoff:       time.Duration(p.BaseBackoffMS) * time.Millisecond,
		MinCooldown:       time.Duration(p.MinCooldownSecs) * time.Second,
		RequestsPerMinute: p.RequestsPerMinute,
	}), nil
}

// initPipeline sets up the store and provider client and builds the
// Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	client, err := initProvider()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	pl := pipeline.New(st, client, pipeline.Config{
		MaxRounds:     cfg.Pipeline.MaxRounds,
		ModuleVersion: moduleVersion,
	})

	return &pipelineEnv{Store: st, Pipeline: pl}, nil
}
