package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/mel-hsw/longevity-research-portal/internal/config"
	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
	"github.com/mel-hsw/longevity-research-portal/internal/core/usecase"
	"github.com/mel-hsw/longevity-research-portal/internal/infrastructure/index/postgres"
	"github.com/mel-hsw/longevity-research-portal/internal/infrastructure/index/qdrant"
	"github.com/mel-hsw/longevity-research-portal/internal/infrastructure/llm/gemini"
	"github.com/mel-hsw/longevity-research-portal/internal/infrastructure/llm/ollama"
	"github.com/mel-hsw/longevity-research-portal/internal/infrastructure/querylog/jsonl"
	"github.com/mel-hsw/longevity-research-portal/internal/infrastructure/querylog/natslog"
	"github.com/mel-hsw/longevity-research-portal/internal/observability/logging"
	"github.com/mel-hsw/longevity-research-portal/internal/observability/metrics"
)

// ChunkIndexer loads embedded chunk batches into an index backend.
type ChunkIndexer interface {
	IndexChunks(ctx context.Context, chunks []*domain.StoredChunk, vectors [][]float32) error
}

// retrievalBackend is what an index adapter must provide: hybrid search,
// chunk hydration and batch loading.
type retrievalBackend interface {
	ports.SemanticIndex
	ports.LexicalIndex
	ports.ChunkStore
	ChunkIndexer
}

// App holds the wired object graph. NewPipeline hands out a fresh
// pipeline over the shared read-only clients; workers that want
// isolation call it once each.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	Query    ports.QueryService
	Judge    ports.FaithfulnessJudge
	Embedder ports.Embedder
	Indexer  ChunkIndexer

	newPipeline func() *usecase.Pipeline
	closeFn     func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := logging.NewJSONLogger("lrp-api", cfg.LogLevel)
	httpMetrics := metrics.NewHTTPServerMetrics("lrp-api")

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, cfg.OllamaJudgeModel, nil)
	embedder := ollama.NewEmbedder(ollamaClient)
	scorer := ollama.NewScorer(ollamaClient)
	judge := ollama.NewJudge(ollamaClient)

	var (
		backend retrievalBackend
		db      *sql.DB
		err     error
	)
	switch cfg.IndexBackend {
	case "qdrant":
		backend = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, embedder)
	case "postgres":
		db, err = postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		backend = postgres.NewIndex(db, embedder)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}

	var (
		generator    ports.AnswerGenerator
		geminiClient *gemini.Generator
	)
	switch cfg.GeneratorBackend {
	case "gemini":
		geminiClient, err = gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			closeDB(db)
			return nil, fmt.Errorf("init gemini generator: %w", err)
		}
		generator = geminiClient
	case "ollama":
		generator = ollama.NewGenerator(ollamaClient)
	default:
		closeDB(db)
		return nil, fmt.Errorf("unknown generator backend %q", cfg.GeneratorBackend)
	}

	var (
		queryLog ports.QueryLog
		jsonSink *jsonl.Sink
		natsSink *natslog.Sink
	)
	switch cfg.QueryLogBackend {
	case "nats":
		natsSink, err = natslog.New(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			closeDB(db)
			return nil, fmt.Errorf("init nats query log: %w", err)
		}
		queryLog = natsSink
	case "jsonl":
		jsonSink, err = jsonl.New(cfg.QueryLogPath)
		if err != nil {
			closeDB(db)
			return nil, fmt.Errorf("init jsonl query log: %w", err)
		}
		queryLog = jsonSink
	default:
		closeDB(db)
		return nil, fmt.Errorf("unknown query log backend %q", cfg.QueryLogBackend)
	}

	newPipeline := func() *usecase.Pipeline {
		retriever := usecase.NewRetriever(backend, backend, backend, usecase.RetrieverConfig{
			VectorWeight:        cfg.VectorWeight,
			LexicalWeight:       cfg.LexicalWeight,
			VectorK:             cfg.VectorK,
			LexicalK:            cfg.LexicalK,
			RerankCandidates:    cfg.RerankCandidates,
			SimilarityThreshold: cfg.SimilarityThreshold,
		})
		reranker := usecase.NewReranker(scorer)
		expander := usecase.NewExpander(backend, usecase.ExpanderConfig{
			Window:    cfg.ExpandWindow,
			MaxChunks: cfg.ExpandMaxChunks,
		})
		gate := usecase.NewEvidenceGate(cfg.GateMinKeywordHits)
		entityFilter := usecase.NewEntityFilter()

		return usecase.NewPipeline(
			retriever,
			reranker,
			expander,
			gate,
			entityFilter,
			generator,
			queryLog,
			httpMetrics,
			usecase.PipelineConfig{
				VectorWeight:  cfg.VectorWeight,
				LexicalWeight: cfg.LexicalWeight,
				FinalK:        cfg.FinalK,
			},
		)
	}

	return &App{
		Config:      cfg,
		Logger:      logger,
		Metrics:     httpMetrics,
		Query:       newPipeline(),
		Judge:       judge,
		Embedder:    embedder,
		Indexer:     backend,
		newPipeline: newPipeline,
		closeFn: func() {
			if natsSink != nil {
				natsSink.Close()
			}
			if jsonSink != nil {
				_ = jsonSink.Close()
			}
			if geminiClient != nil {
				_ = geminiClient.Close()
			}
			closeDB(db)
		},
	}, nil
}

// NewPipeline returns a fresh pipeline over the shared clients, for
// callers that want one instance per worker.
func (a *App) NewPipeline() *usecase.Pipeline {
	return a.newPipeline()
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func closeDB(db *sql.DB) {
	if db != nil {
		_ = db.Close()
	}
}
