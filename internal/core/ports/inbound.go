package ports

import (
	"context"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
)

// QueryService is the inbound contract for one grounded-answer
// transaction. The returned RetrievalResult is a read-only side artifact
// of the call for audit and display.
type QueryService interface {
	Query(ctx context.Context, question string, opts ...domain.QueryOption) (*domain.Answer, *domain.RetrievalResult, error)
}
