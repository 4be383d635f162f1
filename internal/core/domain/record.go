package domain

import "time"

// LoggedChunk is the per-chunk slice of a query record; Text is trimmed
// to a preview so log lines stay bounded.
type LoggedChunk struct {
	ChunkID       string  `json:"chunk_id"`
	SourceID      string  `json:"source_id"`
	Section       string  `json:"section"`
	VectorScore   float64 `json:"vector_score"`
	LexicalScore  float64 `json:"lexical_score"`
	CombinedScore float64 `json:"combined_score"`
	TextPreview   string  `json:"text_preview"`
}

// QueryRecord is the one-per-query audit record emitted to the log sink.
type QueryRecord struct {
	RecordID              string        `json:"record_id"`
	Timestamp             time.Time     `json:"timestamp"`
	Query                 string        `json:"query"`
	VectorWeight          float64       `json:"vector_weight"`
	LexicalWeight         float64       `json:"lexical_weight"`
	TotalCandidates       int           `json:"total_candidates"`
	AboveThresholdCount   int           `json:"above_threshold_count"`
	HasSufficientEvidence bool          `json:"has_sufficient_evidence"`
	Chunks                []LoggedChunk `json:"chunks"`
	Answer                Answer        `json:"answer"`
}

const previewChars = 200

// NewQueryRecord assembles the audit record for one finished query.
func NewQueryRecord(recordID string, retrieval *RetrievalResult, answer *Answer, wVec, wLex float64) QueryRecord {
	chunks := make([]LoggedChunk, 0, len(retrieval.Chunks))
	for _, c := range retrieval.Chunks {
		preview := c.Text
		if len(preview) > previewChars {
			preview = preview[:previewChars]
		}
		chunks = append(chunks, LoggedChunk{
			ChunkID:       c.ChunkID,
			SourceID:      c.SourceID,
			Section:       c.Section,
			VectorScore:   c.VectorScore,
			LexicalScore:  c.LexicalScore,
			CombinedScore: c.CombinedScore,
			TextPreview:   preview,
		})
	}
	return QueryRecord{
		RecordID:              recordID,
		Timestamp:             time.Now().UTC(),
		Query:                 retrieval.Query,
		VectorWeight:          wVec,
		LexicalWeight:         wLex,
		TotalCandidates:       retrieval.TotalCandidates,
		AboveThresholdCount:   retrieval.AboveThresholdCount,
		HasSufficientEvidence: retrieval.HasSufficientEvidence,
		Chunks:                chunks,
		Answer:                *answer,
	}
}
