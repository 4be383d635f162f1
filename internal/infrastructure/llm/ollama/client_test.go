package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
	"github.com/mel-hsw/longevity-research-portal/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: 1,
		BreakerEnabled:   false,
	})
}

func generateServer(t *testing.T, response string, capturedPrompt *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if capturedPrompt != nil {
			*capturedPrompt, _ = payload["prompt"].(string)
		}
		body, _ := json.Marshal(map[string]string{"response": response})
		_, _ = w.Write(body)
	}))
}

func TestGeneratorParsesStructuredAnswer(t *testing.T) {
	structured := `{"answer":"Fasting improves autophagy (cells_2022, cells_2022__body__001).",` +
		`"citations":[{"source_id":"cells_2022","chunk_id":"cells_2022__body__001","relevant_quote":"fasting improves autophagy"}],` +
		`"confidence":"high","evidence_quality":"strong","no_evidence":false,"caveats":[]}`
	var capturedPrompt string
	server := generateServer(t, structured, &capturedPrompt)
	defer server.Close()

	gen := NewGenerator(New(server.URL, "gen", "embed", "judge", testExecutor()))
	answer, err := gen.Generate(context.Background(), "does fasting improve autophagy?", "--- CHUNK cells_2022__body__001 ---\ntext")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer.Confidence != domain.ConfidenceHigh {
		t.Fatalf("confidence = %s", answer.Confidence)
	}
	if len(answer.Citations) != 1 || answer.Citations[0].ChunkID != "cells_2022__body__001" {
		t.Fatalf("citations = %+v", answer.Citations)
	}
	if !strings.Contains(capturedPrompt, "does fasting improve autophagy?") ||
		!strings.Contains(capturedPrompt, "--- CHUNK cells_2022__body__001 ---") {
		t.Fatalf("unexpected prompt: %s", capturedPrompt)
	}
}

func TestGeneratorMalformedOutputIsFatal(t *testing.T) {
	server := generateServer(t, "I cannot answer in JSON, sorry.", nil)
	defer server.Close()

	gen := NewGenerator(New(server.URL, "gen", "embed", "judge", testExecutor()))
	_, err := gen.Generate(context.Background(), "q", "ctx")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrMalformedAnswer) {
		t.Fatalf("expected ErrMalformedAnswer, got %v", err)
	}
}

func TestGeneratorNormalizesUnknownConfidence(t *testing.T) {
	server := generateServer(t, `{"answer":"ok","confidence":"very sure"}`, nil)
	defer server.Close()

	gen := NewGenerator(New(server.URL, "gen", "embed", "judge", testExecutor()))
	answer, err := gen.Generate(context.Background(), "q", "ctx")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer.Confidence != domain.ConfidenceLow {
		t.Fatalf("confidence = %s, want low", answer.Confidence)
	}
	if answer.Citations == nil || answer.Caveats == nil {
		t.Fatalf("nil slices should be normalized: %+v", answer)
	}
}

func TestScorerParsesBatchedScores(t *testing.T) {
	var capturedPrompt string
	server := generateServer(t, `{"scores":[{"chunk_id":"a__body__001","relevance":8},{"chunk_id":"a__body__002","relevance":3}]}`, &capturedPrompt)
	defer server.Close()

	scorer := NewScorer(New(server.URL, "gen", "embed", "judge", testExecutor()))
	scores, err := scorer.ScoreRelevance(context.Background(), "q", []ports.RelevanceCandidate{
		{ChunkID: "a__body__001", TextPreview: "first passage"},
		{ChunkID: "a__body__002", TextPreview: "second passage"},
	})
	if err != nil {
		t.Fatalf("ScoreRelevance() error = %v", err)
	}
	if len(scores) != 2 || scores[0].Relevance != 8 {
		t.Fatalf("scores = %+v", scores)
	}
	if !strings.Contains(capturedPrompt, "[a__body__001]: first passage") {
		t.Fatalf("unexpected prompt: %s", capturedPrompt)
	}
}

func TestJudgeParsesVerdict(t *testing.T) {
	server := generateServer(t, "UNFAITHFUL\nThe answer invents a percentage.", nil)
	defer server.Close()

	judge := NewJudge(New(server.URL, "gen", "embed", "judge", testExecutor()))
	faithful, note, err := judge.JudgeFaithfulness(context.Background(), "ctx", "answer")
	if err != nil {
		t.Fatalf("JudgeFaithfulness() error = %v", err)
	}
	if faithful {
		t.Fatalf("expected unfaithful verdict")
	}
	if !strings.Contains(note, "invents a percentage") {
		t.Fatalf("note = %q", note)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusNotFound)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed", "judge", testExecutor()))
	_, err := embedder.EmbedQuery(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}
