package usecase

import (
	"fmt"
	"strings"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
)

// VerifyCitations resolves each citation against the identifiers
// actually supplied to the generator and drops the rest. Resolved
// citations are rewritten to the full identifier, which makes the pass
// idempotent: a second run finds every citation already resolvable and
// changes nothing.
func VerifyCitations(answer *domain.Answer, suppliedIDs []string) {
	retrieved := make(map[string]struct{}, len(suppliedIDs))
	for _, id := range suppliedIDs {
		retrieved[id] = struct{}{}
	}

	valid := answer.Citations[:0]
	var removed []string
	for _, cite := range answer.Citations {
		resolved, ok := resolveChunkID(cite.ChunkID, suppliedIDs, retrieved)
		if !ok {
			removed = append(removed, cite.ChunkID)
			continue
		}
		cite.ChunkID = resolved
		valid = append(valid, cite)
	}
	answer.Citations = valid

	if len(removed) > 0 {
		answer.AddCaveat(fmt.Sprintf("Removed %d unverified citation(s): %v", len(removed), removed))
		answer.DowngradeFromHigh()
	}
}

// resolveChunkID matches exactly first, then by suffix to tolerate
// identifiers the generator truncated.
func resolveChunkID(rawID string, suppliedIDs []string, retrieved map[string]struct{}) (string, bool) {
	if _, ok := retrieved[rawID]; ok {
		return rawID, true
	}
	for _, id := range suppliedIDs {
		if strings.HasSuffix(id, "__"+rawID) || strings.HasSuffix(id, rawID) {
			return id, true
		}
	}
	return "", false
}
