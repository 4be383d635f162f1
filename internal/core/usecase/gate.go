package usecase

import (
	"regexp"
	"strings"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
)

// Stop-words excluded from gate keywords. The tail entries cover query
// scaffolding common in research questions.
var gateStopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"a", "an", "the", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "will", "would", "shall",
		"should", "may", "might", "can", "could", "must", "about", "above",
		"after", "again", "all", "also", "and", "any", "as", "at", "because",
		"before", "between", "both", "but", "by", "doing", "down", "during",
		"each", "few", "for", "from", "further", "get", "got", "he", "her",
		"here", "hers", "herself", "him", "himself", "his", "how", "i", "if",
		"in", "into", "it", "its", "itself", "just", "know", "let", "like",
		"make", "me", "more", "most", "much", "my", "myself", "no", "nor",
		"not", "now", "of", "off", "on", "once", "only", "or", "other",
		"our", "ours", "ourselves", "out", "over", "own", "same", "she",
		"so", "some", "such", "take", "than", "that", "their", "theirs",
		"them", "themselves", "then", "there", "these", "they", "this",
		"those", "through", "to", "too", "under", "until", "up", "us",
		"very", "we", "what", "when", "where", "which", "while", "who",
		"whom", "why", "with", "you", "your", "yours", "yourself",
		"yourselves", "according", "across", "describe", "described",
		"effect", "find", "findings", "key", "main", "role", "say",
		"suggest", "associated", "evidence", "corpus",
	} {
		gateStopWords[w] = struct{}{}
	}
}

// Keeps alphanumeric tokens plus hyphens/slashes; Greek letters matter
// in this corpus (gene and pathway names).
var gateTokenPattern = regexp.MustCompile(`[A-Za-z0-9α-ωΑ-Ω][\w\-/]*`)

const minGateTokenLen = 3

// EvidenceGate is the deterministic pre-generation check that the
// assembled context plausibly discusses the query's subject.
type EvidenceGate struct {
	minKeywordHits int
}

func NewEvidenceGate(minKeywordHits int) *EvidenceGate {
	if minKeywordHits <= 0 {
		minKeywordHits = 2
	}
	return &EvidenceGate{minKeywordHits: minKeywordHits}
}

// Check reports whether enough distinct query keywords occur in the
// concatenated chunk text. With no keywords there is nothing to judge
// against and the gate passes.
func (g *EvidenceGate) Check(query string, chunks []domain.RetrievedChunk) bool {
	keywords := extractQueryKeywords(query)
	if len(keywords) == 0 {
		return true
	}

	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.ToLower(c.Text))
	}
	contextLower := b.String()

	hits := 0
	for kw := range keywords {
		if strings.Contains(contextLower, kw) {
			hits++
		}
	}

	// Heuristic threshold kept for compatibility; tune via
	// minKeywordHits, not by reshaping the formula.
	threshold := len(keywords) / 3
	if threshold < 1 {
		threshold = 1
	}
	if threshold > g.minKeywordHits {
		threshold = g.minKeywordHits
	}
	return hits >= threshold
}

func extractQueryKeywords(query string) map[string]struct{} {
	keywords := make(map[string]struct{})
	for _, tok := range gateTokenPattern.FindAllString(query, -1) {
		low := strings.ToLower(tok)
		if len(low) < minGateTokenLen {
			continue
		}
		if _, stop := gateStopWords[low]; stop {
			continue
		}
		keywords[low] = struct{}{}
	}
	return keywords
}
