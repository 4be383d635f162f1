package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Summary aggregates a finished run. Rates are means over the results
// they apply to, so a judged-answer rate over zero answers stays zero
// rather than NaN.
type Summary struct {
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`

	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	CitationPrecision  float64 `json:"citation_precision"`
	NoEvidenceAccuracy float64 `json:"no_evidence_accuracy"`
	NoEvidenceProbes   int     `json:"no_evidence_probes"`
	Faithfulness       float64 `json:"faithfulness"`
	Judged             int     `json:"judged"`
}

func Summarize(label string, results []Result) Summary {
	s := Summary{
		Label:     label,
		Timestamp: time.Now().UTC(),
		Total:     len(results),
	}

	var (
		precisionSum  float64
		probeMatches  int
		faithfulCount int
	)
	for _, res := range results {
		if res.Err != "" {
			s.Failed++
			continue
		}
		s.Succeeded++
		precisionSum += res.CitationPrecision

		if res.Query.ExpectNoEvidence {
			s.NoEvidenceProbes++
			if res.NoEvidenceMatch {
				probeMatches++
			}
		}
		if res.Faithful != nil {
			s.Judged++
			if *res.Faithful {
				faithfulCount++
			}
		}
	}

	if s.Succeeded > 0 {
		s.CitationPrecision = precisionSum / float64(s.Succeeded)
	}
	if s.NoEvidenceProbes > 0 {
		s.NoEvidenceAccuracy = float64(probeMatches) / float64(s.NoEvidenceProbes)
	}
	if s.Judged > 0 {
		s.Faithfulness = float64(faithfulCount) / float64(s.Judged)
	}
	return s
}

func WriteMarkdownReport(w io.Writer, summary Summary, results []Result) error {
	fmt.Fprintf(w, "# Evaluation Report: %s\n\n", summary.Label)
	fmt.Fprintf(w, "Generated: %s\n\n", summary.Timestamp.Format(time.RFC3339))

	fmt.Fprintf(w, "## Summary\n\n")
	fmt.Fprintf(w, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(w, "| Queries | %d |\n", summary.Total)
	fmt.Fprintf(w, "| Succeeded | %d |\n", summary.Succeeded)
	fmt.Fprintf(w, "| Failed | %d |\n", summary.Failed)
	fmt.Fprintf(w, "| Citation precision | %.3f |\n", summary.CitationPrecision)
	fmt.Fprintf(w, "| No-evidence accuracy | %.3f (%d probes) |\n", summary.NoEvidenceAccuracy, summary.NoEvidenceProbes)
	fmt.Fprintf(w, "| Faithfulness | %.3f (%d judged) |\n\n", summary.Faithfulness, summary.Judged)

	fmt.Fprintf(w, "## Per-query results\n\n")
	fmt.Fprintf(w, "| ID | Type | Rounds | Citation precision | No-evidence | Faithful | Error |\n")
	fmt.Fprintf(w, "|---|---|---|---|---|---|---|\n")
	for _, res := range results {
		faithful := "n/a"
		if res.Faithful != nil {
			faithful = fmt.Sprintf("%t", *res.Faithful)
		}
		noEvidence := "-"
		if res.Answer != nil {
			noEvidence = fmt.Sprintf("%t", res.Answer.NoEvidence)
		}
		fmt.Fprintf(w, "| %s | %s | %d | %.3f | %s | %s | %s |\n",
			res.Query.ID, res.Query.Type, res.Rounds, res.CitationPrecision, noEvidence, faithful, res.Err)
	}
	return nil
}

func WriteJSONResults(w io.Writer, summary Summary, results []Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Summary Summary  `json:"summary"`
		Results []Result `json:"results"`
	}{Summary: summary, Results: results})
}
