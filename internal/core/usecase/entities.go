package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
)

// Minimum fraction of the answer that must survive stripping. Below
// this the filter flags instead of cutting, so one borderline detection
// cannot gut an otherwise-good answer.
const minSurvivingFraction = 0.3

const maxCaveatTerms = 5

// EntityDetector returns the notable entities found in text. Detection
// rules are pluggable so they can be swapped without touching the
// filter's control flow.
type EntityDetector func(text string) []string

var (
	// Numbers with units or ranges, e.g. 31%, 37°C, 150 min, 7.2-8.0.
	numberPattern = regexp.MustCompile(`(?i)\b\d+[.,]?\d*\s*[%℃°]|\b\d+[.,]?\d*\s*(?:mg|kg|ml|min|hour|week|year|day|month)\b|\b\d+[.,]?\d*[-–]\d+[.,]?\d*\b`)

	// Gene or acronym-like tokens, e.g. AMPK, PGC-1α, HbA1c, SIRT1.
	genePattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,}[-/]?[A-Z0-9α-ω]*\b`)

	// Multi-word proper nouns, e.g. Comprehensive Meta Analysis.
	properNounPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)

	// Uppercase stop tokens the gene pattern would otherwise flag.
	commonUppercase = map[string]struct{}{
		"NOT": {}, "AND": {}, "BUT": {}, "THE": {}, "FOR": {},
		"ARE": {}, "WAS": {}, "HAS": {}, "HAD": {}, "ALL": {},
		"CAN": {}, "MAY": {}, "USE": {}, "SET": {},
	}
)

// DetectNumbersWithUnits extracts numeric claims carrying units.
func DetectNumbersWithUnits(text string) []string {
	return trimmedMatches(numberPattern, text)
}

// DetectGeneTokens extracts acronym-like tokens at least 3 runes long.
func DetectGeneTokens(text string) []string {
	out := make([]string, 0, 8)
	for _, m := range genePattern.FindAllString(text, -1) {
		val := strings.TrimSpace(m)
		if len(val) < 3 {
			continue
		}
		if _, common := commonUppercase[val]; common {
			continue
		}
		out = append(out, val)
	}
	return out
}

// DetectProperNouns extracts multi-word capitalized phrases.
func DetectProperNouns(text string) []string {
	return trimmedMatches(properNounPattern, text)
}

func trimmedMatches(re *regexp.Regexp, text string) []string {
	matches := re.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m))
	}
	return out
}

// EntityFilter strips answer sentences whose specific claims are absent
// from the supplied context.
type EntityFilter struct {
	detectors []EntityDetector
}

func NewEntityFilter(detectors ...EntityDetector) *EntityFilter {
	if len(detectors) == 0 {
		detectors = []EntityDetector{DetectNumbersWithUnits, DetectGeneTokens, DetectProperNouns}
	}
	return &EntityFilter{detectors: detectors}
}

// Apply checks every detected entity for literal presence in the
// context (case-sensitive first, then case-insensitive) and removes
// sentences containing ungrounded ones. No-op for no-evidence answers.
func (f *EntityFilter) Apply(answer *domain.Answer, contextText string) {
	if answer.NoEvidence {
		return
	}

	entities := make(map[string]struct{})
	for _, detect := range f.detectors {
		for _, ent := range detect(answer.AnswerText) {
			entities[ent] = struct{}{}
		}
	}
	if len(entities) == 0 {
		return
	}

	contextLower := strings.ToLower(contextText)
	ungrounded := make([]string, 0, len(entities))
	for ent := range entities {
		if strings.Contains(contextText, ent) {
			continue
		}
		if strings.Contains(contextLower, strings.ToLower(ent)) {
			continue
		}
		ungrounded = append(ungrounded, ent)
	}
	if len(ungrounded) == 0 {
		return
	}
	sort.Strings(ungrounded)

	cleaned, strippedCount := stripUngroundedSentences(answer.AnswerText, ungrounded)
	if strippedCount == 0 {
		return
	}

	if float64(len(cleaned)) >= float64(len(answer.AnswerText))*minSurvivingFraction {
		answer.AnswerText = cleaned
		answer.AddCaveat(fmt.Sprintf(
			"Entity guard: removed %d sentence(s) containing terms not found in context: %v",
			strippedCount, capTerms(ungrounded),
		))
	} else {
		// Stripping would gut the answer; flag instead.
		answer.AddCaveat(fmt.Sprintf(
			"Entity check: %d term(s) in the answer may not appear in the retrieved context: %v",
			len(ungrounded), capTerms(ungrounded),
		))
	}
	answer.DowngradeFromHigh()
}

func stripUngroundedSentences(answerText string, ungrounded []string) (string, int) {
	stripped := 0
	keptLines := make([]string, 0, 8)

	for _, line := range strings.Split(answerText, "\n") {
		keptInLine := make([]string, 0, 4)
		for _, sentence := range splitSentences(line) {
			if sentenceContainsAny(sentence, ungrounded) {
				stripped++
			} else {
				keptInLine = append(keptInLine, sentence)
			}
		}
		if len(keptInLine) > 0 {
			keptLines = append(keptLines, strings.Join(keptInLine, " "))
		} else if strings.TrimSpace(line) == "" {
			keptLines = append(keptLines, "")
		}
	}

	return strings.TrimSpace(strings.Join(keptLines, "\n")), stripped
}

func sentenceContainsAny(sentence string, terms []string) bool {
	sentenceLower := strings.ToLower(sentence)
	for _, term := range terms {
		if strings.Contains(sentence, term) || strings.Contains(sentenceLower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// splitSentences breaks after terminal punctuation followed by
// whitespace, keeping the punctuation with its sentence.
func splitSentences(line string) []string {
	if line == "" {
		return nil
	}
	out := make([]string, 0, 4)
	start := 0
	runes := []rune(line)
	for i := 0; i < len(runes)-1; i++ {
		if isSentenceEnd(runes[i]) && isSpace(runes[i+1]) {
			out = append(out, strings.TrimSpace(string(runes[start:i+1])))
			j := i + 1
			for j < len(runes) && isSpace(runes[j]) {
				j++
			}
			start = j
			i = j - 1
		}
	}
	if start < len(runes) {
		tail := strings.TrimSpace(string(runes[start:]))
		if tail != "" {
			out = append(out, tail)
		}
	}
	return out
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}

func capTerms(terms []string) []string {
	if len(terms) > maxCaveatTerms {
		return terms[:maxCaveatTerms]
	}
	return terms
}
