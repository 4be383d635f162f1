package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
)

type semanticIndexFake struct {
	hits []ports.SemanticHit
	err  error
}

func (f *semanticIndexFake) SemanticSearch(context.Context, string, int) ([]ports.SemanticHit, error) {
	return f.hits, f.err
}

type lexicalIndexFake struct {
	ids []string
	err error
}

func (f *lexicalIndexFake) LexicalSearch(context.Context, string, int) ([]string, error) {
	return f.ids, f.err
}

type chunkStoreFake struct {
	chunks map[string]*domain.StoredChunk
	err    error
}

func (f *chunkStoreFake) ChunkLookup(_ context.Context, chunkID string) (*domain.StoredChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	chunk, ok := f.chunks[chunkID]
	if !ok {
		return nil, domain.WrapError(domain.ErrChunkNotFound, "lookup "+chunkID, errors.New("miss"))
	}
	return chunk, nil
}

func storeWith(ids ...string) *chunkStoreFake {
	chunks := make(map[string]*domain.StoredChunk, len(ids))
	for _, id := range ids {
		ref, _ := domain.ParseChunkID(id)
		chunks[id] = &domain.StoredChunk{
			ChunkID:  id,
			SourceID: ref.SourceID,
			Section:  ref.Section,
			Text:     "text of " + id,
		}
	}
	return &chunkStoreFake{chunks: chunks}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRetrieveFusesBothLists(t *testing.T) {
	semantic := &semanticIndexFake{hits: []ports.SemanticHit{{ChunkID: "cells_2022__body__001", Distance: 0.5}}}
	lexical := &lexicalIndexFake{ids: []string{"cells_2022__body__001"}}
	r := NewRetriever(semantic, lexical, storeWith("cells_2022__body__001"), RetrieverConfig{})

	result, err := r.Retrieve(context.Background(), "autophagy", 0.6, 0.4)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(result.Chunks))
	}

	c := result.Chunks[0]
	sim := 1.0 / 1.5
	if !almostEqual(c.VectorScore, sim) {
		t.Fatalf("vector score = %v, want %v", c.VectorScore, sim)
	}
	if !almostEqual(c.LexicalScore, 1.0) {
		t.Fatalf("lexical score = %v, want 1.0", c.LexicalScore)
	}
	if !almostEqual(c.CombinedScore, 0.6*sim+0.4*1.0) {
		t.Fatalf("combined score = %v, want %v", c.CombinedScore, 0.6*sim+0.4*1.0)
	}
	if c.Text != "text of cells_2022__body__001" {
		t.Fatalf("chunk not hydrated: %+v", c)
	}
	if !result.HasSufficientEvidence {
		t.Fatalf("expected sufficient evidence")
	}
}

func TestRetrieveMissingListTermIsZero(t *testing.T) {
	semantic := &semanticIndexFake{hits: []ports.SemanticHit{{ChunkID: "a__body__001", Distance: 0.0}}}
	lexical := &lexicalIndexFake{ids: []string{"b__body__001"}}
	store := storeWith("a__body__001", "b__body__001")
	r := NewRetriever(semantic, lexical, store, RetrieverConfig{SimilarityThreshold: 0.0001})

	result, err := r.Retrieve(context.Background(), "q", 0.6, 0.4)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if result.TotalCandidates != 2 {
		t.Fatalf("expected union of 2 candidates, got %d", result.TotalCandidates)
	}

	byID := map[string]domain.RetrievedChunk{}
	for _, c := range result.Chunks {
		byID[c.ChunkID] = c
	}
	semOnly := byID["a__body__001"]
	if !almostEqual(semOnly.LexicalScore, 0) || !almostEqual(semOnly.CombinedScore, 0.6*1.0) {
		t.Fatalf("semantic-only candidate scored wrong: %+v", semOnly)
	}
}

func TestRetrieveThresholdFiltersOnVectorScoreOnly(t *testing.T) {
	// A candidate present only via lexical search has vector score 0 and
	// must be filtered even when its combined score beats the floor.
	semantic := &semanticIndexFake{}
	lexical := &lexicalIndexFake{ids: []string{"lex__only__001"}}
	r := NewRetriever(semantic, lexical, storeWith("lex__only__001"), RetrieverConfig{})

	result, err := r.Retrieve(context.Background(), "q", 0.6, 0.4)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Chunks) != 0 {
		t.Fatalf("lexical-only candidate should be dropped, got %d chunks", len(result.Chunks))
	}
	if result.TotalCandidates != 1 || result.AboveThresholdCount != 0 {
		t.Fatalf("counts wrong: total=%d above=%d", result.TotalCandidates, result.AboveThresholdCount)
	}
	if result.HasSufficientEvidence {
		t.Fatalf("expected has_sufficient_evidence=false")
	}
}

func TestRetrieveNoChunkBelowThresholdSurvives(t *testing.T) {
	hits := []ports.SemanticHit{
		{ChunkID: "a__body__001", Distance: 0.1}, // sim ~0.909
		{ChunkID: "a__body__002", Distance: 9.0}, // sim 0.1, below floor
	}
	r := NewRetriever(&semanticIndexFake{hits: hits}, &lexicalIndexFake{}, storeWith("a__body__001", "a__body__002"), RetrieverConfig{})

	result, err := r.Retrieve(context.Background(), "q", 0, 0)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for _, c := range result.Chunks {
		if c.VectorScore < 0.25 {
			t.Fatalf("chunk below similarity floor survived: %+v", c)
		}
	}
	if result.AboveThresholdCount != 1 {
		t.Fatalf("above_threshold_count = %d, want 1", result.AboveThresholdCount)
	}
}

func TestRetrieveCapsAtRerankCandidates(t *testing.T) {
	var hits []ports.SemanticHit
	var ids []string
	for i := 0; i < 15; i++ {
		id := fmt.Sprintf("src__body__%03d", i)
		hits = append(hits, ports.SemanticHit{ChunkID: id, Distance: float64(i) * 0.01})
		ids = append(ids, id)
	}
	r := NewRetriever(&semanticIndexFake{hits: hits}, &lexicalIndexFake{}, storeWith(ids...), RetrieverConfig{RerankCandidates: 10})

	result, err := r.Retrieve(context.Background(), "q", 0, 0)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(result.Chunks) != 10 {
		t.Fatalf("expected 10 capped candidates, got %d", len(result.Chunks))
	}
	if result.TotalCandidates != 15 {
		t.Fatalf("total_candidates = %d, want 15", result.TotalCandidates)
	}
}

func TestRetrieveIndexFailureIsFatal(t *testing.T) {
	r := NewRetriever(&semanticIndexFake{err: errors.New("connection refused")}, &lexicalIndexFake{}, storeWith(), RetrieverConfig{})
	_, err := r.Retrieve(context.Background(), "q", 0, 0)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}

	r = NewRetriever(&semanticIndexFake{}, &lexicalIndexFake{err: errors.New("connection refused")}, storeWith(), RetrieverConfig{})
	_, err = r.Retrieve(context.Background(), "q", 0, 0)
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestRetrieveSortsByCombinedScoreDescending(t *testing.T) {
	hits := []ports.SemanticHit{
		{ChunkID: "a__body__001", Distance: 1.0}, // sim 0.5
		{ChunkID: "a__body__002", Distance: 0.0}, // sim 1.0
	}
	r := NewRetriever(&semanticIndexFake{hits: hits}, &lexicalIndexFake{}, storeWith("a__body__001", "a__body__002"), RetrieverConfig{})

	result, err := r.Retrieve(context.Background(), "q", 0, 0)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if result.Chunks[0].ChunkID != "a__body__002" {
		t.Fatalf("expected highest combined score first, got %s", result.Chunks[0].ChunkID)
	}
}
