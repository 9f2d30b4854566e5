package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/genx3d/genx3d/internal/embedding"
	"github.com/genx3d/genx3d/internal/llm"
	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/modelstore"
	"github.com/genx3d/genx3d/internal/monitoring"
	"github.com/genx3d/genx3d/internal/pipeline"
	"github.com/genx3d/genx3d/internal/resilience"
	"github.com/genx3d/genx3d/internal/retrieval"
	"github.com/genx3d/genx3d/internal/router"
	"github.com/genx3d/genx3d/internal/sandbox"
	"github.com/genx3d/genx3d/internal/store"
	"github.com/genx3d/genx3d/internal/synth"
	"github.com/genx3d/genx3d/pkg/pinecone"
)

// remoteIndex is a remote vector index the index command can also write to.
type remoteIndex interface {
	retrieval.RemoteIndex
	Upsert(ctx context.Context, examples []model.Example) (int64, error)
}

// appEnv holds the clients and services shared by the commands. Fields past
// Collector are only set by initGeneration.
type appEnv struct {
	Registry  *prometheus.Registry
	Metrics   *monitoring.Metrics
	Breakers  *resilience.Breakers
	Models    *modelstore.Store
	Collector *monitoring.Collector

	LLM      llm.Completer
	Local    *store.SQLiteIndex
	Remote   remoteIndex // may be nil
	Pipeline *pipeline.Pipeline
	Router   *router.Router

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

func (e *appEnv) onClose(fn func()) {
	e.closers = append(e.closers, fn)
}

// initBase validates cfg for mode and sets up metrics, breakers and the
// model area. Callers should defer env.Close().
func initBase(mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)

	breakerCfg := cfg.Resilience.Breaker()
	breakerCfg.OnStateChange = metrics.BreakerChanged
	breakers := resilience.NewBreakers(breakerCfg)

	models, err := modelstore.New(cfg.Models.Dir, cfg.Models.URLPrefix)
	if err != nil {
		return nil, err
	}

	window := time.Duration(cfg.Monitoring.LookbackWindowMins) * time.Minute
	collector := monitoring.NewCollector(models, breakers, window)
	metrics.WithCollector(collector)

	return &appEnv{
		Registry:  reg,
		Metrics:   metrics,
		Breakers:  breakers,
		Models:    models,
		Collector: collector,
	}, nil
}

// initApp builds the full generation stack: LLM, retrieval, sandbox,
// pipeline and chat router.
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	env, err := initBase(mode)
	if err != nil {
		return nil, err
	}
	if err := env.initGeneration(ctx); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *appEnv) initGeneration(ctx context.Context) error {
	timeout := cfg.Resilience.CallTimeout()

	completer, err := llm.New(cfg.LLM, cfg.Anthropic, cfg.OpenAI)
	if err != nil {
		return eris.Wrap(err, "init llm")
	}
	e.LLM = llm.NewGuarded(completer, cfg.LLM.RequestsPerMinute,
		e.Breakers.Get(resilience.BackendLLM), cfg.Resilience.Retry(), timeout)

	emb, err := e.initEmbedder(ctx)
	if err != nil {
		return err
	}

	if err := e.initLocal(ctx); err != nil {
		return err
	}

	opts := []retrieval.Option{retrieval.WithObserver(e.Metrics)}
	if err := e.initRemote(ctx); err != nil {
		return err
	}
	if e.Remote != nil {
		guarded := retrieval.NewGuardedRemote(e.Remote, e.Breakers.Get(resilience.BackendRemoteIndex), timeout)
		opts = append(opts, retrieval.WithRemote(guarded))
	}

	retriever := retrieval.New(
		retrieval.NewGuardedEmbedder(emb, e.Breakers.Get(resilience.BackendEmbedding), timeout),
		e.Local,
		opts...,
	)

	exec, err := sandbox.New(e.Models, sandbox.Config{
		Format:  cfg.Generation.Format,
		Timeout: time.Duration(cfg.Generation.ExecTimeoutSecs) * time.Second,
	})
	if err != nil {
		return eris.Wrap(err, "init sandbox")
	}

	e.Pipeline = pipeline.New(retriever, synth.New(e.LLM, synth.WithFormat(exec.Format())), exec, e.Models, pipeline.Config{
		MaxAttempts: cfg.Generation.MaxAttempts,
		TopK:        cfg.Generation.TopK,
		UseHybrid:   cfg.Generation.UseHybrid,
	}, pipeline.WithObserver(e.Metrics))

	e.Router = router.New(e.LLM, e.Pipeline, e.Models, exec.Format())
	return nil
}

// initEmbedder builds the configured embedder, cached when a cache size is
// set.
func (e *appEnv) initEmbedder(ctx context.Context) (embedding.Embedder, error) {
	emb, err := embedding.New(ctx, cfg.Embedding, cfg.Ollama, cfg.GenAI)
	if err != nil {
		return nil, eris.Wrap(err, "init embedder")
	}
	if cfg.Embedding.CacheMaxBytes <= 0 {
		return emb, nil
	}
	cached, err := embedding.NewCached(emb, cfg.Embedding.CacheMaxBytes,
		time.Duration(cfg.Embedding.CacheTTLSecs)*time.Second)
	if err != nil {
		return nil, err
	}
	e.onClose(cached.Close)
	return cached, nil
}

// initLocal opens and migrates the SQLite example index.
func (e *appEnv) initLocal(ctx context.Context) error {
	local, err := store.NewSQLite(cfg.Index.Path)
	if err != nil {
		return err
	}
	e.onClose(func() { _ = local.Close() })
	if err := local.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate local index")
	}
	e.Local = local
	return nil
}

// initRemote connects the configured remote index, if any.
func (e *appEnv) initRemote(ctx context.Context) error {
	switch cfg.Remote.Provider {
	case "":
		return nil
	case "pgvector":
		pg, err := store.NewPgVector(ctx, cfg.PgVector.DatabaseURL, cfg.PgVector.Table,
			cfg.Embedding.Dimensions, &cfg.PgVector.Pool)
		if err != nil {
			return err
		}
		e.onClose(func() { _ = pg.Close() })
		e.Remote = pg
	case "pinecone":
		client := pinecone.NewClient(cfg.Pinecone.APIKey, cfg.Pinecone.Host)
		e.Remote = retrieval.NewPinecone(client, cfg.Pinecone.Namespace)
	default:
		return eris.Errorf("unknown remote provider %q", cfg.Remote.Provider)
	}
	zap.L().Info("remote index configured", zap.String("provider", cfg.Remote.Provider))
	return nil
}
