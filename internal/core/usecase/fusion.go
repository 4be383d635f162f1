package usecase

import (
	"context"
	"sort"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
)

// RetrieverConfig holds the fusion-stage knobs. Weights here are
// defaults; callers may override per query.
type RetrieverConfig struct {
	VectorWeight        float64
	LexicalWeight       float64
	VectorK             int
	LexicalK            int
	RerankCandidates    int
	SimilarityThreshold float64
}

func (c RetrieverConfig) normalize() RetrieverConfig {
	out := c
	if out.VectorWeight <= 0 && out.LexicalWeight <= 0 {
		out.VectorWeight = 0.6
		out.LexicalWeight = 0.4
	}
	if out.VectorK <= 0 {
		out.VectorK = 10
	}
	if out.LexicalK <= 0 {
		out.LexicalK = 10
	}
	if out.RerankCandidates <= 0 {
		out.RerankCandidates = 10
	}
	if out.SimilarityThreshold <= 0 {
		out.SimilarityThreshold = 0.25
	}
	return out
}

// Retriever fuses lexical and semantic rankings into one scored
// candidate list. Indexes and the chunk store are read-only.
type Retriever struct {
	semantic ports.SemanticIndex
	lexical  ports.LexicalIndex
	store    ports.ChunkStore
	cfg      RetrieverConfig
}

func NewRetriever(semantic ports.SemanticIndex, lexical ports.LexicalIndex, store ports.ChunkStore, cfg RetrieverConfig) *Retriever {
	return &Retriever{
		semantic: semantic,
		lexical:  lexical,
		store:    store,
		cfg:      cfg.normalize(),
	}
}

type fusedScores struct {
	vector  float64
	lexical float64
}

// Retrieve queries both indexes, fuses scores and applies the
// similarity floor. An unreachable index is fatal for the query; there
// is no silent empty-result fallback.
func (r *Retriever) Retrieve(ctx context.Context, query string, wVec, wLex float64) (*domain.RetrievalResult, error) {
	if wVec <= 0 && wLex <= 0 {
		wVec = r.cfg.VectorWeight
		wLex = r.cfg.LexicalWeight
	}

	semanticHits, err := r.semantic.SemanticSearch(ctx, query, r.cfg.VectorK)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "semantic search", err)
	}
	lexicalIDs, err := r.lexical.LexicalSearch(ctx, query, r.cfg.LexicalK)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "lexical search", err)
	}

	// Union of both result sets. The index distance becomes a
	// similarity via 1/(1+dist); lexical rank i becomes 1/(i+1).
	scores := make(map[string]fusedScores, len(semanticHits)+len(lexicalIDs))
	order := make([]string, 0, len(semanticHits)+len(lexicalIDs))
	for _, hit := range semanticHits {
		if _, seen := scores[hit.ChunkID]; !seen {
			order = append(order, hit.ChunkID)
		}
		s := scores[hit.ChunkID]
		s.vector = 1.0 / (1.0 + hit.Distance)
		scores[hit.ChunkID] = s
	}
	for rank, chunkID := range lexicalIDs {
		if _, seen := scores[chunkID]; !seen {
			order = append(order, chunkID)
		}
		s := scores[chunkID]
		s.lexical = 1.0 / float64(rank+1)
		scores[chunkID] = s
	}

	fused := make([]domain.RetrievedChunk, 0, len(order))
	for _, chunkID := range order {
		s := scores[chunkID]
		fused = append(fused, domain.RetrievedChunk{
			ChunkID:       chunkID,
			VectorScore:   s.vector,
			LexicalScore:  s.lexical,
			CombinedScore: wVec*s.vector + wLex*s.lexical,
		})
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].CombinedScore > fused[j].CombinedScore
	})

	// The floor is applied to the semantic score only: a candidate
	// surfaced purely by keywords with no semantic support is dropped.
	above := make([]domain.RetrievedChunk, 0, len(fused))
	for _, c := range fused {
		if c.VectorScore >= r.cfg.SimilarityThreshold {
			above = append(above, c)
		}
	}

	final := above
	if len(final) > r.cfg.RerankCandidates {
		final = final[:r.cfg.RerankCandidates]
	}
	if err := r.hydrate(ctx, final); err != nil {
		return nil, err
	}

	return &domain.RetrievalResult{
		Query:                 query,
		Chunks:                final,
		TotalCandidates:       len(fused),
		AboveThresholdCount:   len(above),
		HasSufficientEvidence: len(final) > 0,
	}, nil
}

// hydrate fills stored fields for the surviving candidates. The indexes
// and the store describe the same corpus; a miss here means they are
// out of sync, which is corruption, not absence of evidence.
func (r *Retriever) hydrate(ctx context.Context, chunks []domain.RetrievedChunk) error {
	for i := range chunks {
		stored, err := r.store.ChunkLookup(ctx, chunks[i].ChunkID)
		if err != nil {
			return domain.WrapError(domain.ErrIndexUnavailable, "hydrate candidate "+chunks[i].ChunkID, err)
		}
		chunks[i].SourceID = stored.SourceID
		chunks[i].Section = stored.Section
		chunks[i].PageStart = stored.PageStart
		chunks[i].PageEnd = stored.PageEnd
		chunks[i].Text = stored.Text
	}
	return nil
}
