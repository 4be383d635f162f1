package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
)

// Terminal states of one query transaction.
const (
	OutcomeAnswered        = "answered"
	OutcomeNoEvidence      = "no_evidence"
	OutcomeNoEvidenceGate  = "no_evidence_gate"
	OutcomeRetrievalError  = "retrieval_error"
	OutcomeGenerationError = "generation_error"
)

const (
	noEvidenceAnswerText = "I could not find sufficient evidence in the research " +
		"corpus to answer this question. You may want to expand the corpus or " +
		"try rephrasing the query."
	gateFailureAnswerText = "The retrieved passages do not appear to cover the " +
		"key concepts in your query. The corpus may not contain relevant " +
		"information on this topic."
)

// Observer receives stage timings and terminal outcomes. The metrics
// package provides a prometheus-backed implementation.
type Observer interface {
	ObserveStage(stage string, duration time.Duration)
	ObserveOutcome(outcome string, duration time.Duration)
	ObserveGuardrailCaveats(count int)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration)   {}
func (nopObserver) ObserveOutcome(string, time.Duration) {}
func (nopObserver) ObserveGuardrailCaveats(int)          {}

// PipelineConfig holds the orchestrator-level knobs; component knobs
// live with their components.
type PipelineConfig struct {
	VectorWeight  float64
	LexicalWeight float64
	FinalK        int
}

func (c PipelineConfig) normalize() PipelineConfig {
	out := c
	if out.VectorWeight <= 0 && out.LexicalWeight <= 0 {
		out.VectorWeight = 0.6
		out.LexicalWeight = 0.4
	}
	if out.FinalK <= 0 {
		out.FinalK = 6
	}
	return out
}

// Pipeline sequences fusion, reranking, expansion, the evidence gate,
// generation and both verification passes into one query transaction.
// A pipeline value is cheap once the shared read-only clients exist;
// concurrent callers use one instance per worker.
type Pipeline struct {
	retriever *Retriever
	reranker  *Reranker
	expander  *Expander
	gate      *EvidenceGate
	entities  *EntityFilter
	generator ports.AnswerGenerator
	queryLog  ports.QueryLog
	observer  Observer
	cfg       PipelineConfig
}

func NewPipeline(
	retriever *Retriever,
	reranker *Reranker,
	expander *Expander,
	gate *EvidenceGate,
	entities *EntityFilter,
	generator ports.AnswerGenerator,
	queryLog ports.QueryLog,
	observer Observer,
	cfg PipelineConfig,
) *Pipeline {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Pipeline{
		retriever: retriever,
		reranker:  reranker,
		expander:  expander,
		gate:      gate,
		entities:  entities,
		generator: generator,
		queryLog:  queryLog,
		observer:  observer,
		cfg:       cfg.normalize(),
	}
}

// Query runs the full state machine for one question. Every terminal
// state yields exactly one answer; infrastructure failures surface as
// errors, never as fabricated no-evidence answers. The returned
// retrieval result is the audit side artifact for this call.
func (p *Pipeline) Query(ctx context.Context, question string, opts ...domain.QueryOption) (*domain.Answer, *domain.RetrievalResult, error) {
	start := time.Now()
	options := domain.ApplyQueryOptions(opts)
	wVec, wLex := p.cfg.VectorWeight, p.cfg.LexicalWeight
	if options.VectorWeight != nil && options.LexicalWeight != nil {
		wVec, wLex = *options.VectorWeight, *options.LexicalWeight
	}

	stageStart := time.Now()
	retrieval, err := p.retriever.Retrieve(ctx, question, wVec, wLex)
	p.observer.ObserveStage("fusion", time.Since(stageStart))
	if err != nil {
		p.observer.ObserveOutcome(OutcomeRetrievalError, time.Since(start))
		return nil, nil, err
	}

	if !retrieval.HasSufficientEvidence {
		answer := noEvidenceAnswer(noEvidenceAnswerText, "No chunks met the similarity threshold.")
		p.finish(ctx, retrieval, answer, wVec, wLex, OutcomeNoEvidence, start)
		return answer, retrieval, nil
	}

	stageStart = time.Now()
	retrieval.Chunks = p.reranker.Rerank(ctx, question, retrieval.Chunks)
	if len(retrieval.Chunks) > p.cfg.FinalK {
		retrieval.Chunks = retrieval.Chunks[:p.cfg.FinalK]
	}
	p.observer.ObserveStage("rerank", time.Since(stageStart))

	stageStart = time.Now()
	if err := p.expander.Expand(ctx, retrieval); err != nil {
		p.observer.ObserveOutcome(OutcomeRetrievalError, time.Since(start))
		return nil, nil, err
	}
	p.observer.ObserveStage("expand", time.Since(stageStart))

	if !p.gate.Check(question, retrieval.Chunks) {
		retrieval.HasSufficientEvidence = false
		answer := noEvidenceAnswer(gateFailureAnswerText, "Query concepts absent from retrieved context.")
		p.finish(ctx, retrieval, answer, wVec, wLex, OutcomeNoEvidenceGate, start)
		return answer, retrieval, nil
	}

	stageStart = time.Now()
	answer, err := p.generator.Generate(ctx, question, FormatContextBlock(retrieval.Chunks))
	p.observer.ObserveStage("generate", time.Since(stageStart))
	if err != nil {
		p.observer.ObserveOutcome(OutcomeGenerationError, time.Since(start))
		return nil, nil, fmt.Errorf("generate answer: %w", err)
	}

	VerifyCitations(answer, retrieval.ChunkIDs())
	p.entities.Apply(answer, ConcatChunkText(retrieval.Chunks))
	p.observer.ObserveGuardrailCaveats(len(answer.Caveats))

	p.finish(ctx, retrieval, answer, wVec, wLex, OutcomeAnswered, start)
	return answer, retrieval, nil
}

func (p *Pipeline) finish(ctx context.Context, retrieval *domain.RetrievalResult, answer *domain.Answer, wVec, wLex float64, outcome string, start time.Time) {
	p.observer.ObserveOutcome(outcome, time.Since(start))

	if p.queryLog == nil {
		return
	}
	record := domain.NewQueryRecord(uuid.NewString(), retrieval, answer, wVec, wLex)
	if err := p.queryLog.Record(ctx, record); err != nil {
		// The answer is already final; a sink failure must not fail
		// the query.
		slog.Error("query_log_failed", "record_id", record.RecordID, "error", err)
	}
}

// The two insufficient-evidence exits share this canonical shape and
// differ only in the explanatory text.
func noEvidenceAnswer(text, evidenceQuality string) *domain.Answer {
	return &domain.Answer{
		AnswerText:      text,
		Citations:       []domain.Citation{},
		Confidence:      domain.ConfidenceLow,
		EvidenceQuality: evidenceQuality,
		NoEvidence:      true,
		Caveats:         []string{},
	}
}
