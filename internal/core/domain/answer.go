package domain

// Confidence levels a generated answer may carry. Guardrails only ever
// downgrade, never upgrade.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Citation ties a claim in the answer to a supplied chunk. RelevantQuote
// is a short verbatim snippet and may be empty.
type Citation struct {
	SourceID      string `json:"source_id"`
	ChunkID       string `json:"chunk_id"`
	RelevantQuote string `json:"relevant_quote"`
}

// Answer is the structured generator output, mutated only by the
// citation verifier and the entity grounding filter before it is
// returned. Caveats are the append-only audit trail.
type Answer struct {
	AnswerText      string     `json:"answer"`
	Citations       []Citation `json:"citations"`
	Confidence      string     `json:"confidence"`
	EvidenceQuality string     `json:"evidence_quality"`
	NoEvidence      bool       `json:"no_evidence"`
	Caveats         []string   `json:"caveats"`
}

// AddCaveat appends an audit note. Existing caveats are never removed.
func (a *Answer) AddCaveat(note string) {
	a.Caveats = append(a.Caveats, note)
}

// DowngradeFromHigh lowers confidence one step when a guardrail fired.
// Answers already at medium or low keep their level.
func (a *Answer) DowngradeFromHigh() {
	if a.Confidence == ConfidenceHigh {
		a.Confidence = ConfidenceMedium
	}
}
