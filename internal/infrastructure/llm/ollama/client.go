package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
	"github.com/mel-hsw/longevity-research-portal/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	judgeModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel, judgeModel string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		judgeModel: judgeModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Embeddings[0], nil
}

// Scorer rates candidate passages 0-10 in a single batched call.
type Scorer struct {
	client *Client
}

func NewScorer(client *Client) *Scorer {
	return &Scorer{client: client}
}

func (s *Scorer) ScoreRelevance(ctx context.Context, query string, candidates []ports.RelevanceCandidate) ([]ports.RelevanceScore, error) {
	respText, err := s.client.generateJSON(ctx, s.client.genModel, buildRerankPrompt(query, candidates))
	if err != nil {
		return nil, err
	}

	var result struct {
		Scores []ports.RelevanceScore `json:"scores"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return nil, fmt.Errorf("parse rerank json: %w", err)
	}
	return result.Scores, nil
}

// Generator produces the structured answer from the serialized context
// block. A response that does not parse into the answer schema is a
// malformed-answer failure, not something to silently repair.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, query, contextBlock string) (*domain.Answer, error) {
	respText, err := g.client.generateJSON(ctx, g.client.genModel, buildAnswerPrompt(query, contextBlock))
	if err != nil {
		return nil, err
	}

	var answer domain.Answer
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &answer); err != nil {
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

// Judge is the LLM-as-judge used by the evaluation harness.
type Judge struct {
	client *Client
}

func NewJudge(client *Client) *Judge {
	return &Judge{client: client}
}

func (j *Judge) JudgeFaithfulness(ctx context.Context, contextText, answerText string) (bool, string, error) {
	respText, err := j.client.generateText(ctx, j.client.judgeModel, buildJudgePrompt(contextText, answerText))
	if err != nil {
		return false, "", err
	}
	verdict := strings.TrimSpace(respText)
	faithful := strings.HasPrefix(strings.ToUpper(verdict), "FAITHFUL")
	return faithful, verdict, nil
}

func (c *Client) generateJSON(ctx context.Context, model, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generateText(ctx context.Context, model, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
