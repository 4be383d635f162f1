package usecase

import (
	"fmt"
	"strings"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
)

// FormatContextBlock serializes the retained chunks for the generator.
// The header format is part of the generation contract: the generator
// is told to cite the full identifiers shown here.
func FormatContextBlock(chunks []domain.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf(
			"--- CHUNK %s (source: %s, section: %s, score: %.3f) ---\n%s\n",
			c.ChunkID, c.SourceID, c.Section, c.CombinedScore, c.Text,
		))
	}
	return strings.Join(parts, "\n")
}

// ConcatChunkText joins the raw chunk texts for grounding checks.
func ConcatChunkText(chunks []domain.RetrievedChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}
