package eval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
	"github.com/mel-hsw/longevity-research-portal/internal/core/ports"
)

type scriptedService struct {
	mu sync.Mutex
	// failuresLeft counts remaining forced failures per query text.
	failuresLeft map[string]int
	answers      map[string]*domain.Answer
	retrievals   map[string]*domain.RetrievalResult
}

func (s *scriptedService) Query(_ context.Context, question string, _ ...domain.QueryOption) (*domain.Answer, *domain.RetrievalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failuresLeft[question] > 0 {
		s.failuresLeft[question]--
		return nil, nil, errors.New("backend flaked")
	}
	answer, ok := s.answers[question]
	if !ok {
		return nil, nil, errors.New("no scripted answer")
	}
	return answer, s.retrievals[question], nil
}

type judgeFake struct {
	verdict bool
	calls   atomic.Int32
}

func (j *judgeFake) JudgeFaithfulness(_ context.Context, _, _ string) (bool, string, error) {
	j.calls.Add(1)
	return j.verdict, "scripted rationale", nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func groundedAnswer(chunkID string) *domain.Answer {
	return &domain.Answer{
		AnswerText: "Supported claim.",
		Citations:  []domain.Citation{{ChunkID: chunkID, SourceID: "src"}},
		Confidence: domain.ConfidenceHigh,
	}
}

func retrievalWith(chunkIDs ...string) *domain.RetrievalResult {
	chunks := make([]domain.RetrievedChunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		chunks = append(chunks, domain.RetrievedChunk{ChunkID: id, Text: "chunk text"})
	}
	return &domain.RetrievalResult{Chunks: chunks, HasSufficientEvidence: true}
}

func TestRunPreservesSubmissionOrder(t *testing.T) {
	set := &QuerySet{Queries: []Query{
		{ID: "q1", Query: "first"},
		{ID: "q2", Query: "second"},
		{ID: "q3", Query: "third"},
	}}
	svc := &scriptedService{
		answers: map[string]*domain.Answer{
			"first":  groundedAnswer("a__body__001"),
			"second": groundedAnswer("b__body__001"),
			"third":  groundedAnswer("c__body__001"),
		},
		retrievals: map[string]*domain.RetrievalResult{
			"first":  retrievalWith("a__body__001"),
			"second": retrievalWith("b__body__001"),
			"third":  retrievalWith("c__body__001"),
		},
	}
	runner := NewRunner(func() ports.QueryService { return svc }, nil, testLogger(), RunnerOptions{Workers: 3})

	results, err := runner.Run(context.Background(), set)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, id := range []string{"q1", "q2", "q3"} {
		assert.Equal(t, id, results[i].Query.ID)
		assert.Equal(t, i, results[i].Index)
		assert.Empty(t, results[i].Err)
		assert.Equal(t, 1.0, results[i].CitationPrecision)
	}
}

func TestRunRetriesFailedQueriesSequentially(t *testing.T) {
	set := &QuerySet{Queries: []Query{
		{ID: "ok", Query: "stable"},
		{ID: "flaky", Query: "flaky"},
	}}
	svc := &scriptedService{
		failuresLeft: map[string]int{"flaky": 1},
		answers: map[string]*domain.Answer{
			"stable": groundedAnswer("a__body__001"),
			"flaky":  groundedAnswer("b__body__001"),
		},
		retrievals: map[string]*domain.RetrievalResult{
			"stable": retrievalWith("a__body__001"),
			"flaky":  retrievalWith("b__body__001"),
		},
	}
	var factoryCalls atomic.Int32
	runner := NewRunner(func() ports.QueryService {
		factoryCalls.Add(1)
		return svc
	}, nil, testLogger(), RunnerOptions{Workers: 2, RetryRounds: 2})

	results, err := runner.Run(context.Background(), set)
	require.NoError(t, err)

	assert.Empty(t, results[1].Err, "flaky query should succeed on retry")
	assert.Equal(t, 2, results[1].Rounds)
	assert.Equal(t, 1, results[0].Rounds)
	// Two pool workers plus one fresh pipeline for the retry round.
	assert.Equal(t, int32(3), factoryCalls.Load())
}

func TestRunReportsQueriesThatNeverSucceed(t *testing.T) {
	set := &QuerySet{Queries: []Query{{ID: "doomed", Query: "doomed"}}}
	svc := &scriptedService{
		failuresLeft: map[string]int{"doomed": 10},
	}
	runner := NewRunner(func() ports.QueryService { return svc }, nil, testLogger(), RunnerOptions{Workers: 1, RetryRounds: 2})

	results, err := runner.Run(context.Background(), set)
	require.NoError(t, err)
	assert.NotEmpty(t, results[0].Err)
	assert.Equal(t, 3, results[0].Rounds, "one pool attempt plus two retry rounds")
}

func TestRunJudgesOnlyAnsweredQueries(t *testing.T) {
	set := &QuerySet{Queries: []Query{
		{ID: "answered", Query: "answered"},
		{ID: "abstained", Query: "abstained", ExpectNoEvidence: true},
	}}
	svc := &scriptedService{
		answers: map[string]*domain.Answer{
			"answered": groundedAnswer("a__body__001"),
			"abstained": {
				AnswerText: "No supporting evidence found.",
				NoEvidence: true,
				Confidence: domain.ConfidenceLow,
			},
		},
		retrievals: map[string]*domain.RetrievalResult{
			"answered":  retrievalWith("a__body__001"),
			"abstained": {},
		},
	}
	judge := &judgeFake{verdict: true}
	runner := NewRunner(func() ports.QueryService { return svc }, judge, testLogger(), RunnerOptions{Workers: 1})

	results, err := runner.Run(context.Background(), set)
	require.NoError(t, err)

	require.NotNil(t, results[0].Faithful)
	assert.True(t, *results[0].Faithful)
	assert.Nil(t, results[1].Faithful, "abstentions are not judged")
	assert.Equal(t, int32(1), judge.calls.Load())
	assert.True(t, results[1].NoEvidenceMatch)
	assert.Equal(t, 1.0, results[1].CitationPrecision, "abstention with no citations is fully precise")
}

func TestCitationPrecisionCounts(t *testing.T) {
	answer := &domain.Answer{
		AnswerText: "claim",
		Citations: []domain.Citation{
			{ChunkID: "a__body__001"},
			{ChunkID: "ghost__body__009"},
		},
	}
	assert.Equal(t, 0.5, citationPrecision(answer, retrievalWith("a__body__001", "a__body__002")))

	uncited := &domain.Answer{AnswerText: "claim without citations"}
	assert.Equal(t, 0.0, citationPrecision(uncited, retrievalWith("a__body__001")))
}

func TestRunCanceledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	set := &QuerySet{Queries: []Query{{ID: "q", Query: "q"}}}
	svc := &scriptedService{failuresLeft: map[string]int{"q": 10}}
	runner := NewRunner(func() ports.QueryService { return svc }, nil, testLogger(), RunnerOptions{Workers: 1})

	_, err := runner.Run(ctx, set)
	assert.ErrorIs(t, err, context.Canceled)
}
