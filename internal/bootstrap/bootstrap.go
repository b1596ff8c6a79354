package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kirillkom/docqa-retrieval/internal/config"
	"github.com/kirillkom/docqa-retrieval/internal/core/ports"
	"github.com/kirillkom/docqa-retrieval/internal/core/rerank"
	"github.com/kirillkom/docqa-retrieval/internal/core/usecase"
	"github.com/kirillkom/docqa-retrieval/internal/infrastructure/embedcache"
	"github.com/kirillkom/docqa-retrieval/internal/infrastructure/httpjson"
	"github.com/kirillkom/docqa-retrieval/internal/infrastructure/lexical/memory"
	"github.com/kirillkom/docqa-retrieval/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/docqa-retrieval/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docqa-retrieval/internal/infrastructure/rerank/crossencoder"
	"github.com/kirillkom/docqa-retrieval/internal/infrastructure/resilience"
	"github.com/kirillkom/docqa-retrieval/internal/infrastructure/telemetry/nats"
	"github.com/kirillkom/docqa-retrieval/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/docqa-retrieval/internal/observability"
	"github.com/kirillkom/docqa-retrieval/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	Retriever ports.Retriever
	Facts     ports.FactFinder

	closeFns []func()
}

// stores bundles the lookups that share one backing store.
type stores struct {
	lexical   ports.LexicalSearcher
	entities  ports.EntityCandidateSource
	chunks    ports.ChunkStore
	documents ports.DocumentMetaStore
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewHTTPServerMetrics("docqa-api"),
	}

	st, err := app.openStores(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	resilienceCfg := resilience.DefaultConfig()
	resilienceCfg.RetryMaxAttempts = cfg.RetryMaxAttempts
	resilienceCfg.BreakerEnabled = cfg.BreakerEnabled
	executor := resilience.NewExecutor(resilienceCfg, resilience.WithLogger(logger))
	httpOpts := []httpjson.Option{
		httpjson.WithExecutor(executor),
		httpjson.WithHTTPClient(&http.Client{Timeout: cfg.UpstreamTimeout}),
	}

	var (
		embedder ports.Embedder
		chat     ports.ChatCompleter
		vectors  ports.VectorSearcher
	)
	if cfg.OllamaURL != "" {
		client := ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, httpOpts...)
		embedder = ollama.NewEmbedder(client)
		chat = ollama.NewChatCompleter(client)
	}
	if cfg.QdrantURL != "" {
		vectors = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, httpOpts...)
	}
	crossEncoder := crossencoder.New(cfg.CrossEncoderURL, cfg.CrossEncoderAPIKey, cfg.CrossEncoderModel, httpOpts...)

	cache, err := embedcache.New(cfg.EmbeddingCacheSize)
	if err != nil {
		app.Close()
		return nil, err
	}

	observers := []ports.RetrievalObserver{app.Metrics.Retrieval()}
	if cfg.NATSURL != "" {
		publisher, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init telemetry publisher: %w", err)
		}
		app.closeFns = append(app.closeFns, publisher.Close)
		observers = append(observers, publisher)
	}
	observer := observability.NewObservers(observers...)

	judgeModel := cfg.JudgeModel
	if judgeModel == "" {
		judgeModel = cfg.OllamaChatModel
	}
	rerankers := rerank.NewSet(rerank.Deps{
		Embedder:       embedder,
		CrossEncoder:   crossEncoder,
		Chat:           chat,
		JudgeModel:     judgeModel,
		JudgeBatchSize: cfg.JudgeBatchSize,
		Logger:         logger,
	})

	app.Retriever = usecase.NewRetrievalUseCase(usecase.RetrievalDeps{
		Embedder:  embedder,
		Vectors:   vectors,
		Lexical:   st.lexical,
		Chunks:    st.chunks,
		Documents: st.documents,
		Rerankers: rerankers,
		Cache:     cache,
		Observer:  observer,
		Logger:    logger,
		Timeouts: usecase.RetrievalTimeouts{
			Channel:   cfg.ChannelTimeout,
			Embedding: cfg.EmbeddingTimeout,
			Rerank:    cfg.RerankTimeout,
			Lookup:    cfg.LookupTimeout,
		},
	})
	app.Facts = usecase.NewFactUseCase(st.entities, observer, logger, cfg.FactTimeout)

	logger.Info("bootstrap_ready",
		"store", cfg.StoreBackend,
		"vector_search", vectors != nil,
		"embedder", embedder != nil,
		"cross_encoder", crossEncoder.Configured(),
		"telemetry_nats", cfg.NATSURL != "",
	)
	return app, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	switch a.Config.StoreBackend {
	case config.StoreBackendMemory:
		index := memory.NewIndex()
		if a.Config.MemorySeedPath != "" {
			n, err := index.LoadSeedFile(a.Config.MemorySeedPath)
			if err != nil {
				return stores{}, fmt.Errorf("load memory seed: %w", err)
			}
			a.Logger.Info("memory_store_seeded", "documents", n)
		}
		return stores{lexical: index, entities: index, chunks: index, documents: index}, nil

	case config.StoreBackendPostgres:
		db, err := postgres.OpenDB(a.Config.PostgresDSN)
		if err != nil {
			return stores{}, fmt.Errorf("open postgres: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = db.Close() })
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return stores{}, fmt.Errorf("ensure schema: %w", err)
		}
		docs := postgres.NewDocumentRepository(db)
		index := postgres.NewLexicalIndex(db)
		return stores{lexical: index, entities: index, chunks: docs, documents: docs}, nil

	default:
		return stores{}, fmt.Errorf("unknown store backend %q", a.Config.StoreBackend)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
