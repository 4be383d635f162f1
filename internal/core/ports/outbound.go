package ports

import (
	"context"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
)

// SemanticHit is one nearest-neighbor result from the semantic index.
// Distance is the raw index distance, not a similarity.
type SemanticHit struct {
	ChunkID  string
	Distance float64
}

// SemanticIndex performs nearest-neighbor search over chunk embeddings.
// Read-only for the lifetime of a pipeline instance.
type SemanticIndex interface {
	SemanticSearch(ctx context.Context, query string, k int) ([]SemanticHit, error)
}

// LexicalIndex performs keyword ranking over chunk text and returns
// rank-ordered chunk identifiers.
type LexicalIndex interface {
	LexicalSearch(ctx context.Context, query string, k int) ([]string, error)
}

// ChunkStore is the read-only map from chunk identifier to stored
// fields. A miss is domain.ErrChunkNotFound; any other error indicates
// store corruption.
type ChunkStore interface {
	ChunkLookup(ctx context.Context, chunkID string) (*domain.StoredChunk, error)
}

// Embedder builds the query vector for semantic search. Consumed by
// index adapters, not by the core pipeline.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// RelevanceCandidate is one passage handed to the relevance scorer,
// with its text trimmed to a preview.
type RelevanceCandidate struct {
	ChunkID     string
	TextPreview string
}

// RelevanceScore is the scorer's 0-10 verdict for one candidate.
type RelevanceScore struct {
	ChunkID   string
	Relevance int
}

// RelevanceScorer re-scores fused candidates in a single batched call.
// Failure is non-fatal: the caller falls back to fused order.
type RelevanceScorer interface {
	ScoreRelevance(ctx context.Context, query string, candidates []RelevanceCandidate) ([]RelevanceScore, error)
}

// AnswerGenerator produces the structured answer from the query and the
// serialized context block. Malformed or unreachable output is fatal for
// the query.
type AnswerGenerator interface {
	Generate(ctx context.Context, query, contextBlock string) (*domain.Answer, error)
}

// FaithfulnessJudge assesses whether an answer is supported by its
// context. Used by the evaluation harness only.
type FaithfulnessJudge interface {
	JudgeFaithfulness(ctx context.Context, contextText, answerText string) (bool, string, error)
}

// QueryLog appends one record per finished query to an external sink.
// Records are never partially written.
type QueryLog interface {
	Record(ctx context.Context, record domain.QueryRecord) error
}
