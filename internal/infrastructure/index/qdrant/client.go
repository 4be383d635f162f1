package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
)

// Client is the qdrant-backed retrieval backend. One collection holds a
// dense vector for semantic search and a sparse vector for keyword
// ranking; chunk fields travel in the point payload, so the same
// collection also serves as the chunk store.
type Client struct {
	baseURL    string
	collection string
	embedder   ports.Embedder
	httpClient *http.Client

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, embedder ports.Embedder) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		embedder:   embedder,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) IndexChunks(ctx context.Context, chunks []*domain.StoredChunk, vectors [][]float32) error {
	if len(chunks) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch")
	}

	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  map[string]any `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, chunk := range chunks {
		points = append(points, point{
			ID: uuid.NewString(),
			Vector: map[string]any{
				"dense":  vectors[i],
				"sparse": encodeSparseDocument(chunk.Text),
			},
			Payload: map[string]any{
				"chunk_id":   chunk.ChunkID,
				"source_id":  chunk.SourceID,
				"section":    chunk.Section,
				"page_start": chunk.PageStart,
				"page_end":   chunk.PageEnd,
				"text":       chunk.Text,
			},
		})
	}

	var out struct{}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	return c.doJSON(ctx, http.MethodPut, url, map[string]any{"points": points}, &out, "upsert")
}

func (c *Client) SemanticSearch(ctx context.Context, query string, k int) ([]ports.SemanticHit, error) {
	vector, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := c.search(ctx, map[string]any{
		"vector": map[string]any{
			"name":   "dense",
			"vector": vector,
		},
		"limit":        k,
		"with_payload": []string{"chunk_id"},
	})
	if err != nil {
		return nil, err
	}

	hits := make([]ports.SemanticHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, ports.SemanticHit{
			ChunkID: getStringPayload(r.Payload, "chunk_id"),
			// Cosine similarity to cosine distance, so downstream
			// similarity conversion stays uniform across backends.
			Distance: 1.0 - r.Score,
		})
	}
	return hits, nil
}

func (c *Client) LexicalSearch(ctx context.Context, query string, k int) ([]string, error) {
	sparse := encodeSparseQuery(query)
	if len(sparse.Indices) == 0 {
		return nil, nil
	}

	results, err := c.search(ctx, map[string]any{
		"vector": map[string]any{
			"name":   "sparse",
			"vector": sparse,
		},
		"limit":        k,
		"with_payload": []string{"chunk_id"},
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, getStringPayload(r.Payload, "chunk_id"))
	}
	return ids, nil
}

func (c *Client) ChunkLookup(ctx context.Context, chunkID string) (*domain.StoredChunk, error) {
	reqBody := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key": "chunk_id",
					"match": map[string]any{
						"value": chunkID,
					},
				},
			},
		},
		"limit":        1,
		"with_payload": true,
	}

	var scrollResp struct {
		Result struct {
			Points []struct {
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/scroll", c.baseURL, c.collection)
	if err := c.doJSON(ctx, http.MethodPost, url, reqBody, &scrollResp, "scroll"); err != nil {
		return nil, err
	}
	if len(scrollResp.Result.Points) == 0 {
		return nil, domain.WrapError(domain.ErrChunkNotFound, "lookup "+chunkID, fmt.Errorf("no point with chunk_id"))
	}

	payload := scrollResp.Result.Points[0].Payload
	return &domain.StoredChunk{
		ChunkID:   getStringPayload(payload, "chunk_id"),
		SourceID:  getStringPayload(payload, "source_id"),
		Section:   getStringPayload(payload, "section"),
		PageStart: getIntPayload(payload, "page_start"),
		PageEnd:   getIntPayload(payload, "page_end"),
		Text:      getStringPayload(payload, "text"),
	}, nil
}

type searchResult struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) search(ctx context.Context, reqBody map[string]any) ([]searchResult, error) {
	var searchResp struct {
		Result []searchResult `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.doJSON(ctx, http.MethodPost, url, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}
	return searchResp.Result, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"dense": map[string]any{
				"size":     vectorSize,
				"distance": "Cosine",
			},
		},
		"sparse_vectors": map[string]any{
			"sparse": map[string]any{},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 if already exists (depends on version/config).
	if resp.StatusCode == http.StatusConflict {
		c.markCollectionEnsured(vectorSize)
		return nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return fmt.Errorf("qdrant ensure collection status: %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("qdrant ensure collection status: %s", resp.Status)
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
		}
		return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int(f)
}
