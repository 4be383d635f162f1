package usecase

import (
	"strings"
	"testing"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
)

func answerWithCitations(confidence string, chunkIDs ...string) *domain.Answer {
	citations := make([]domain.Citation, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		citations = append(citations, domain.Citation{SourceID: "src", ChunkID: id})
	}
	return &domain.Answer{
		AnswerText: "answer",
		Citations:  citations,
		Confidence: confidence,
	}
}

func TestVerifyCitationsAllValidIsNoOp(t *testing.T) {
	answer := answerWithCitations(domain.ConfidenceHigh, "src__body__001", "src__body__002")
	VerifyCitations(answer, []string{"src__body__001", "src__body__002"})

	if len(answer.Citations) != 2 {
		t.Fatalf("valid citations dropped: %d left", len(answer.Citations))
	}
	if len(answer.Caveats) != 0 {
		t.Fatalf("unexpected caveat: %v", answer.Caveats)
	}
	if answer.Confidence != domain.ConfidenceHigh {
		t.Fatalf("confidence changed to %s", answer.Confidence)
	}
}

func TestVerifyCitationsDropsUnresolvable(t *testing.T) {
	answer := answerWithCitations(domain.ConfidenceHigh, "src__body__001", "ghost__body__007")
	VerifyCitations(answer, []string{"src__body__001"})

	if len(answer.Citations) != 1 || answer.Citations[0].ChunkID != "src__body__001" {
		t.Fatalf("unexpected citations: %+v", answer.Citations)
	}
	if len(answer.Caveats) != 1 {
		t.Fatalf("expected exactly one caveat, got %d", len(answer.Caveats))
	}
	if !strings.Contains(answer.Caveats[0], "ghost__body__007") {
		t.Fatalf("caveat should name the dropped identifier: %s", answer.Caveats[0])
	}
	if !strings.Contains(answer.Caveats[0], "Removed 1") {
		t.Fatalf("caveat should carry the drop count: %s", answer.Caveats[0])
	}
	if answer.Confidence != domain.ConfidenceMedium {
		t.Fatalf("confidence = %s, want medium", answer.Confidence)
	}
}

func TestVerifyCitationsSuffixResolution(t *testing.T) {
	answer := answerWithCitations(domain.ConfidenceMedium, "001", "body__002")
	VerifyCitations(answer, []string{"cells_2022__body__001", "cells_2022__body__002"})

	if len(answer.Citations) != 2 {
		t.Fatalf("truncated identifiers should resolve, got %d citations", len(answer.Citations))
	}
	if answer.Citations[0].ChunkID != "cells_2022__body__001" {
		t.Fatalf("citation not rewritten to full id: %s", answer.Citations[0].ChunkID)
	}
	if answer.Citations[1].ChunkID != "cells_2022__body__002" {
		t.Fatalf("citation not rewritten to full id: %s", answer.Citations[1].ChunkID)
	}
	if answer.Confidence != domain.ConfidenceMedium {
		t.Fatalf("confidence must never downgrade below medium here, got %s", answer.Confidence)
	}
}

func TestVerifyCitationsIdempotent(t *testing.T) {
	answer := answerWithCitations(domain.ConfidenceHigh, "src__body__001", "ghost__body__007")
	supplied := []string{"src__body__001"}

	VerifyCitations(answer, supplied)
	citations := len(answer.Citations)
	caveats := len(answer.Caveats)
	confidence := answer.Confidence

	VerifyCitations(answer, supplied)
	if len(answer.Citations) != citations {
		t.Fatalf("second run dropped more citations")
	}
	if len(answer.Caveats) != caveats {
		t.Fatalf("second run appended caveats: %v", answer.Caveats)
	}
	if answer.Confidence != confidence {
		t.Fatalf("second run changed confidence")
	}
}
