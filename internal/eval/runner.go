package eval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
	"github.com/mel-hsw/longevity-research-portal/internal/core/usecase"
	"github.com/mel-hsw/longevity-research-portal/internal/observability/metrics"
)

const (
	defaultWorkers     = 4
	defaultRetryRounds = 2
)

// Result is the per-query evaluation outcome. Err is kept as text so
// raw results serialize cleanly.
type Result struct {
	Index      int                     `json:"index"`
	Query      Query                   `json:"query"`
	Answer     *domain.Answer          `json:"answer,omitempty"`
	Retrieval  *domain.RetrievalResult `json:"retrieval,omitempty"`
	Err        string                  `json:"error,omitempty"`
	Rounds     int                     `json:"rounds"`
	DurationMS float64                 `json:"duration_ms"`

	CitationPrecision float64 `json:"citation_precision"`
	NoEvidenceMatch   bool    `json:"no_evidence_match"`
	Faithful          *bool   `json:"faithful,omitempty"`
	JudgeRationale    string  `json:"judge_rationale,omitempty"`
}

// Runner drives a query set through independent pipeline instances.
// Workers never share a pipeline; retry rounds get a fresh one too.
type Runner struct {
	factory     func() ports.QueryService
	judge       ports.FaithfulnessJudge
	logger      *slog.Logger
	metrics     *metrics.EvalMetrics
	workers     int
	retryRounds int
}

type RunnerOptions struct {
	Workers     int
	RetryRounds int
	Metrics     *metrics.EvalMetrics
}

func NewRunner(factory func() ports.QueryService, judge ports.FaithfulnessJudge, logger *slog.Logger, options RunnerOptions) *Runner {
	workers := options.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	retryRounds := options.RetryRounds
	if retryRounds <= 0 {
		retryRounds = defaultRetryRounds
	}
	return &Runner{
		factory:     factory,
		judge:       judge,
		logger:      logger,
		metrics:     options.Metrics,
		workers:     workers,
		retryRounds: retryRounds,
	}
}

// Run evaluates every query and returns results in submission order.
// Individual query failures are recorded, not fatal; only context
// cancellation aborts the run.
func (r *Runner) Run(ctx context.Context, set *QuerySet) ([]Result, error) {
	results := make([]Result, len(set.Queries))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pipeline := r.factory()
			for idx := range jobs {
				results[idx] = r.evaluateOne(ctx, pipeline, set.Queries[idx], idx, 1)
			}
		}()
	}

	for idx := range set.Queries {
		select {
		case jobs <- idx:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	// Failed queries get sequential retry rounds on a fresh pipeline;
	// transient backend hiccups usually clear between rounds.
	for round := 2; round <= r.retryRounds+1; round++ {
		var failed []int
		for idx := range results {
			if results[idx].Err != "" {
				failed = append(failed, idx)
			}
		}
		if len(failed) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r.logger.Info("retry_round", "round", round, "failed", len(failed))
		pipeline := r.factory()
		for _, idx := range failed {
			if r.metrics != nil {
				r.metrics.ObserveRetry()
			}
			results[idx] = r.evaluateOne(ctx, pipeline, set.Queries[idx], idx, round)
		}
	}

	for _, res := range results {
		if res.Err != "" {
			r.logger.Warn("query_failed_all_rounds", "id", res.Query.ID, "error", res.Err)
		}
	}
	return results, nil
}

func (r *Runner) evaluateOne(ctx context.Context, pipeline ports.QueryService, q Query, idx, round int) Result {
	if r.metrics != nil {
		r.metrics.StartQuery()
	}
	start := time.Now()
	answer, retrieval, err := pipeline.Query(ctx, q.Query)
	duration := time.Since(start)
	if r.metrics != nil {
		r.metrics.FinishQuery("lrp-eval", duration, err)
	}

	res := Result{
		Index:      idx,
		Query:      q,
		Rounds:     round,
		DurationMS: float64(duration.Microseconds()) / 1000.0,
	}
	if err != nil {
		res.Err = err.Error()
		return res
	}

	res.Answer = answer
	res.Retrieval = retrieval
	res.CitationPrecision = citationPrecision(answer, retrieval)
	res.NoEvidenceMatch = answer.NoEvidence == q.ExpectNoEvidence

	// Faithfulness is undefined for abstentions; the judge only sees
	// answers that made claims.
	if r.judge != nil && !answer.NoEvidence {
		contextText := usecase.ConcatChunkText(retrieval.Chunks)
		faithful, rationale, jerr := r.judge.JudgeFaithfulness(ctx, contextText, answer.AnswerText)
		if jerr != nil {
			r.logger.Warn("judge_unavailable", "id", q.ID, "error", jerr)
		} else {
			res.Faithful = &faithful
			res.JudgeRationale = rationale
		}
	}
	return res
}

// citationPrecision is the fraction of citations that resolve to a
// retrieved chunk. An answer with no citations is perfectly precise
// only when it abstained.
func citationPrecision(answer *domain.Answer, retrieval *domain.RetrievalResult) float64 {
	if len(answer.Citations) == 0 {
		if answer.NoEvidence {
			return 1.0
		}
		return 0.0
	}

	retrieved := make(map[string]bool, len(retrieval.Chunks))
	for _, c := range retrieval.Chunks {
		retrieved[c.ChunkID] = true
	}

	valid := 0
	for _, cit := range answer.Citations {
		if retrieved[cit.ChunkID] {
			valid++
		}
	}
	return float64(valid) / float64(len(answer.Citations))
}
