package usecase

import (
	"strings"
	"testing"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
)

func entityAnswer(text string) *domain.Answer {
	return &domain.Answer{
		AnswerText: text,
		Confidence: domain.ConfidenceHigh,
	}
}

func TestEntityFilterAllGroundedIsNoOp(t *testing.T) {
	filter := NewEntityFilter()
	answer := entityAnswer("AMPK activation rose by 31% after exercise.")
	filter.Apply(answer, "The study found AMPK activation rose by 31% in the exercise arm.")

	if len(answer.Caveats) != 0 {
		t.Fatalf("unexpected caveats: %v", answer.Caveats)
	}
	if answer.Confidence != domain.ConfidenceHigh {
		t.Fatalf("confidence changed: %s", answer.Confidence)
	}
}

func TestEntityFilterCaseInsensitiveFallback(t *testing.T) {
	filter := NewEntityFilter()
	answer := entityAnswer("SIRT1 expression increased.")
	filter.Apply(answer, "The sirt1 pathway was upregulated in treated cells.")

	if len(answer.Caveats) != 0 {
		t.Fatalf("case-insensitive grounding failed: %v", answer.Caveats)
	}
}

func TestEntityFilterStripsUngroundedSentences(t *testing.T) {
	filter := NewEntityFilter()
	answer := entityAnswer("Fasting lowered glucose in the cohort. Levels dropped by 42% overall.")
	filter.Apply(answer, "Fasting lowered glucose in the cohort over twelve weeks.")

	if strings.Contains(answer.AnswerText, "42%") {
		t.Fatalf("ungrounded sentence survived: %s", answer.AnswerText)
	}
	if !strings.Contains(answer.AnswerText, "Fasting lowered glucose") {
		t.Fatalf("grounded sentence removed: %s", answer.AnswerText)
	}
	if len(answer.Caveats) != 1 || !strings.Contains(answer.Caveats[0], "42%") {
		t.Fatalf("expected caveat naming the removed term, got %v", answer.Caveats)
	}
	if answer.Confidence != domain.ConfidenceMedium {
		t.Fatalf("confidence = %s, want medium", answer.Confidence)
	}
}

func TestEntityFilterSafetyFloorAt29Percent(t *testing.T) {
	// Surviving text would be 29% of the original: flag, do not strip.
	grounded := strings.Repeat("a", 28) + "."
	ungrounded := "XYZQ " + strings.Repeat("b", 64) + "."
	original := grounded + " " + ungrounded

	filter := NewEntityFilter()
	answer := entityAnswer(original)
	filter.Apply(answer, "context without the suspicious token")

	if answer.AnswerText != original {
		t.Fatalf("answer was stripped below the safety floor")
	}
	if len(answer.Caveats) != 1 || !strings.Contains(answer.Caveats[0], "XYZQ") {
		t.Fatalf("expected flagging caveat, got %v", answer.Caveats)
	}
	if answer.Confidence != domain.ConfidenceMedium {
		t.Fatalf("confidence = %s, want medium", answer.Confidence)
	}
}

func TestEntityFilterStripsAt31Percent(t *testing.T) {
	// Surviving text is 31% of the original: stripping is allowed.
	grounded := strings.Repeat("a", 30) + "."
	ungrounded := "XYZQ " + strings.Repeat("b", 62) + "."
	original := grounded + " " + ungrounded

	filter := NewEntityFilter()
	answer := entityAnswer(original)
	filter.Apply(answer, "context without the suspicious token")

	if answer.AnswerText != grounded {
		t.Fatalf("expected stripped answer %q, got %q", grounded, answer.AnswerText)
	}
	if len(answer.Caveats) != 1 || !strings.Contains(answer.Caveats[0], "removed 1 sentence") {
		t.Fatalf("expected stripping caveat, got %v", answer.Caveats)
	}
}

func TestEntityFilterNoEvidenceIsNoOp(t *testing.T) {
	filter := NewEntityFilter()
	answer := entityAnswer("XYZQ would normally be flagged.")
	answer.NoEvidence = true
	filter.Apply(answer, "unrelated")

	if len(answer.Caveats) != 0 {
		t.Fatalf("no-evidence answers must pass untouched: %v", answer.Caveats)
	}
}

func TestEntityFilterCaveatNamesAtMostFiveTerms(t *testing.T) {
	filter := NewEntityFilter()
	answer := entityAnswer("AAAX BBBX CCCX DDDX EEEX FFFX GGGX all appeared. So it goes on at length with plenty of grounded words to keep most of the answer intact after stripping happens here.")
	filter.Apply(answer, "none of those tokens appear in this context text, which goes on at length with plenty of grounded words to keep most of the answer intact after stripping happens here")

	if len(answer.Caveats) != 1 {
		t.Fatalf("expected one caveat, got %v", answer.Caveats)
	}
	named := strings.Count(answer.Caveats[0], "X ") + strings.Count(answer.Caveats[0], "X]")
	if named > 5 {
		t.Fatalf("caveat names more than 5 terms: %s", answer.Caveats[0])
	}
}
