package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// RetrievedChunk is one candidate passage surfaced by hybrid retrieval.
// Scores are set once by fusion; only the expander appends derived chunks
// with discounted scores.
type RetrievedChunk struct {
	ChunkID       string  `json:"chunk_id"`
	SourceID      string  `json:"source_id"`
	Section       string  `json:"section"`
	PageStart     int     `json:"page_start"`
	PageEnd       int     `json:"page_end"`
	Text          string  `json:"text"`
	VectorScore   float64 `json:"vector_score"`
	LexicalScore  float64 `json:"lexical_score"`
	CombinedScore float64 `json:"combined_score"`
}

// RetrievalResult is the outcome of one query's retrieval stages. It is
// owned by a single in-flight query and never shared across workers.
type RetrievalResult struct {
	Query                 string           `json:"query"`
	Chunks                []RetrievedChunk `json:"chunks"`
	TotalCandidates       int              `json:"total_candidates"`
	AboveThresholdCount   int              `json:"above_threshold_count"`
	HasSufficientEvidence bool             `json:"has_sufficient_evidence"`
}

// ChunkIDs returns the identifiers currently held by the result, in order.
func (r *RetrievalResult) ChunkIDs() []string {
	ids := make([]string, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		ids = append(ids, c.ChunkID)
	}
	return ids
}

// StoredChunk is the read-only record held by the chunk store.
type StoredChunk struct {
	ChunkID   string `json:"chunk_id"`
	SourceID  string `json:"source_id"`
	Section   string `json:"section"`
	PageStart int    `json:"page_start"`
	PageEnd   int    `json:"page_end"`
	Text      string `json:"text"`
}

// ChunkRef is the parsed form of a structural chunk identifier
// "{source_id}__{section}__{sequence}".
type ChunkRef struct {
	SourceID string
	Section  string
	Sequence int
}

// ParseChunkID splits a structural identifier into its components. The
// sequence segment must be numeric; anything else reports false.
func ParseChunkID(chunkID string) (ChunkRef, bool) {
	idx := strings.LastIndex(chunkID, "__")
	if idx <= 0 {
		return ChunkRef{}, false
	}
	head, seqPart := chunkID[:idx], chunkID[idx+2:]
	seq, err := strconv.Atoi(seqPart)
	if err != nil {
		return ChunkRef{}, false
	}
	idx = strings.LastIndex(head, "__")
	if idx <= 0 {
		return ChunkRef{}, false
	}
	return ChunkRef{
		SourceID: head[:idx],
		Section:  head[idx+2:],
		Sequence: seq,
	}, true
}

// ChunkID rebuilds the structural identifier. Sequence numbers are
// zero-padded to three digits to match ingested identifiers.
func (r ChunkRef) ChunkID() string {
	return fmt.Sprintf("%s__%s__%03d", r.SourceID, r.Section, r.Sequence)
}

// Neighbor returns the reference shifted by offset within the same
// source and section.
func (r ChunkRef) Neighbor(offset int) ChunkRef {
	return ChunkRef{SourceID: r.SourceID, Section: r.Section, Sequence: r.Sequence + offset}
}
