package usecase

import (
	"context"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
)

// Expansion discount: neighbors are context, not independently
// retrieved evidence.
const neighborDiscount = 0.8

// ExpanderConfig controls adjacency-aware context expansion.
type ExpanderConfig struct {
	Window    int
	MaxChunks int
}

func (c ExpanderConfig) normalize() ExpanderConfig {
	out := c
	if out.Window == 0 {
		out.Window = 1
	} else if out.Window < 0 {
		out.Window = 0
	}
	if out.MaxChunks <= 0 {
		out.MaxChunks = 10
	}
	return out
}

// Expander appends structural neighbors of the retained chunks from the
// chunk store.
type Expander struct {
	store ports.ChunkStore
	cfg   ExpanderConfig
}

func NewExpander(store ports.ChunkStore, cfg ExpanderConfig) *Expander {
	return &Expander{store: store, cfg: cfg.normalize()}
}

// Expand mutates the result in place. Retained chunks keep their rank
// positions; discovered neighbors are appended after all originals.
// Partial expansion on hitting the cap is acceptable; a store failure
// other than a miss is corruption and fatal.
func (e *Expander) Expand(ctx context.Context, retrieval *domain.RetrievalResult) error {
	if e.cfg.Window <= 0 || len(retrieval.Chunks) == 0 {
		return nil
	}

	existing := make(map[string]struct{}, len(retrieval.Chunks))
	for _, c := range retrieval.Chunks {
		existing[c.ChunkID] = struct{}{}
	}
	expanded := make([]domain.RetrievedChunk, len(retrieval.Chunks), e.cfg.MaxChunks)
	copy(expanded, retrieval.Chunks)

	for _, chunk := range retrieval.Chunks {
		ref, ok := domain.ParseChunkID(chunk.ChunkID)
		if !ok {
			continue
		}

		for offset := -e.cfg.Window; offset <= e.cfg.Window; offset++ {
			if offset == 0 {
				continue
			}
			neighborID := ref.Neighbor(offset).ChunkID()
			if _, dup := existing[neighborID]; dup {
				continue
			}

			stored, err := e.store.ChunkLookup(ctx, neighborID)
			if domain.IsKind(err, domain.ErrChunkNotFound) {
				continue
			}
			if err != nil {
				return domain.WrapError(domain.ErrIndexUnavailable, "expand neighbor "+neighborID, err)
			}

			expanded = append(expanded, domain.RetrievedChunk{
				ChunkID:       neighborID,
				SourceID:      stored.SourceID,
				Section:       stored.Section,
				PageStart:     stored.PageStart,
				PageEnd:       stored.PageEnd,
				Text:          stored.Text,
				VectorScore:   chunk.VectorScore * neighborDiscount,
				LexicalScore:  0,
				CombinedScore: chunk.CombinedScore * neighborDiscount,
			})
			existing[neighborID] = struct{}{}
		}

		if len(expanded) >= e.cfg.MaxChunks {
			break
		}
	}

	if len(expanded) > e.cfg.MaxChunks {
		expanded = expanded[:e.cfg.MaxChunks]
	}
	retrieval.Chunks = expanded
	return nil
}
