package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealsense/internal/inference"
	"github.com/sells-group/dealsense/internal/invoker"
	"github.com/sells-group/dealsense/internal/metrics"
	"github.com/sells-group/dealsense/internal/pipeline"
	"github.com/sells-group/dealsense/internal/resilience"
	"github.com/sells-group/dealsense/internal/store"
	anthropicpkg "github.com/sells-group/dealsense/pkg/anthropic"
	openaipkg "github.com/sells-group/dealsense/pkg/openai"
)

// pipelineEnv holds the initialized store, inference clients, and pipeline
// needed by the analyze/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Metrics  *metrics.Collector
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "dealsense.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initInference builds the provider router. Providers without API keys are
// left unwired; routing to one fails per agent, not at startup.
func initInference() *invoker.Invoker {
	router := &inference.Router{Default: cfg.Inference.Provider}

	if cfg.Inference.Anthropic.Key != "" {
		router.Anthropic = inference.NewAnthropic(anthropicpkg.NewClient(
			cfg.Inference.Anthropic.Key,
			anthropicpkg.WithRateLimit(cfg.Inference.Anthropic.RPS),
		))
	} else {
		zap.L().Debug("DEALSENSE_INFERENCE_ANTHROPIC_KEY not set, anthropic provider disabled")
	}

	if cfg.Inference.OpenAI.Key != "" {
		opts := []openaipkg.ClientOption{openaipkg.WithRateLimit(cfg.Inference.OpenAI.RPS)}
		if cfg.Inference.OpenAI.BaseURL != "" {
			opts = append(opts, openaipkg.WithBaseURL(cfg.Inference.OpenAI.BaseURL))
		}
		router.OpenAI = inference.NewOpenAI(openaipkg.NewClient(cfg.Inference.OpenAI.Key, opts...))
	} else {
		zap.L().Debug("DEALSENSE_INFERENCE_OPENAI_KEY not set, openai provider disabled")
	}

	return invoker.New(router, invoker.Config{
		CallTimeout: cfg.Pipeline.AgentTimeout(),
		Retry:       resilience.DefaultRetryConfig(),
	})
}

// initPipeline sets up the store and inference clients and builds the
// Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	return &pipelineEnv{
		Store:    st,
		Pipeline: pipeline.New(st, st, st, initInference(), cfg.Pipeline),
		Metrics:  metrics.NewCollector(st),
	}, nil
}
