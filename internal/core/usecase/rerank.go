package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
)

const rerankPreviewChars = 400

// Reranker re-orders fused candidates by a generative relevance score.
// It degrades, never blocks: on scorer failure the fused order stands.
type Reranker struct {
	scorer ports.RelevanceScorer
}

func NewReranker(scorer ports.RelevanceScorer) *Reranker {
	return &Reranker{scorer: scorer}
}

// Rerank sorts chunks by (relevance, combined_score) descending.
// Candidates the scorer did not mention rank as relevance 0 but are
// kept; truncation to the final evidence width is the orchestrator's
// job.
func (r *Reranker) Rerank(ctx context.Context, query string, chunks []domain.RetrievedChunk) []domain.RetrievedChunk {
	if len(chunks) <= 1 || r.scorer == nil {
		return chunks
	}

	candidates := make([]ports.RelevanceCandidate, 0, len(chunks))
	for _, c := range chunks {
		preview := strings.ReplaceAll(c.Text, "\n", " ")
		if len(preview) > rerankPreviewChars {
			preview = preview[:rerankPreviewChars]
		}
		candidates = append(candidates, ports.RelevanceCandidate{
			ChunkID:     c.ChunkID,
			TextPreview: preview,
		})
	}

	scores, err := r.scorer.ScoreRelevance(ctx, query, candidates)
	if err != nil {
		slog.Warn("rerank_degraded", "error", err, "candidates", len(chunks))
		return chunks
	}

	relevance := make(map[string]int, len(scores))
	for _, s := range scores {
		if s.Relevance < 0 || s.Relevance > 10 {
			continue
		}
		relevance[s.ChunkID] = s.Relevance
	}
	if len(relevance) == 0 {
		slog.Warn("rerank_degraded", "error", "empty or malformed score set", "candidates", len(chunks))
		return chunks
	}

	out := make([]domain.RetrievedChunk, len(chunks))
	copy(out, chunks)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := relevance[out[i].ChunkID], relevance[out[j].ChunkID]
		if ri != rj {
			return ri > rj
		}
		return out[i].CombinedScore > out[j].CombinedScore
	})
	return out
}
