package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
)

// Generator is the Gemini-backed alternative to the local ollama
// generator. JSON response mode replaces ollama's format=json.
type Generator struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKey, model string) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Generator{client: client, model: model}, nil
}

func (g *Generator) Close() error {
	return g.client.Close()
}

func (g *Generator) Generate(ctx context.Context, query, contextBlock string) (*domain.Answer, error) {
	model := g.client.GenerativeModel(g.model)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx, genai.Text(buildAnswerPrompt(query, contextBlock)))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	raw, err := firstTextPart(resp)
	if err != nil {
		return nil, err
	}

	var answer domain.Answer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		return nil, domain.WrapError(domain.ErrMalformedAnswer, "parse answer json", err)
	}
	if strings.TrimSpace(answer.AnswerText) == "" {
		return nil, domain.WrapError(domain.ErrMalformedAnswer, "parse answer json", fmt.Errorf("empty answer text"))
	}
	if answer.Citations == nil {
		answer.Citations = []domain.Citation{}
	}
	if answer.Caveats == nil {
		answer.Caveats = []string{}
	}
	switch answer.Confidence {
	case domain.ConfidenceHigh, domain.ConfidenceMedium, domain.ConfidenceLow:
	default:
		answer.Confidence = domain.ConfidenceLow
	}
	return &answer, nil
}

func firstTextPart(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: no candidates returned")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: candidate has no parts (finish reason: %v)", candidate.FinishReason)
	}
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			return string(text), nil
		}
	}
	return "", fmt.Errorf("gemini: no text part in candidate")
}

func buildAnswerPrompt(query, contextBlock string) string {
	return fmt.Sprintf(`You are a senior research analyst. Every claim must be
traceable to the provided context. Answer the question using ONLY the
research context below.

Return a strict JSON object with keys:
answer (string), citations (array of {source_id, chunk_id, relevant_quote}),
confidence ("high"|"medium"|"low"), evidence_quality (string),
no_evidence (boolean), caveats (array of strings).
No markdown, no extra keys.

GROUNDING RULES:
- For relevant_quote, copy a short verbatim snippet (at most 40 words)
  from the chunk that supports the claim. Do not paraphrase.
- Do NOT add facts, numbers, percentages, or details from your own
  knowledge, even if you believe they are correct.
- If the context does not contain sufficient information, set
  no_evidence to true and explain what is missing.

CITATION RULES:
- In citations, use EXACTLY the full chunk_id from the chunk headers
  (e.g. "cells_2022__body__001") and the source_id (e.g. "cells_2022").
- ONLY cite chunk_ids that appear in the context below.

Question:
%s

Context:
%s
`, query, contextBlock)
}
