package httpadapter

import (
	"net/http"

	"github.com/mel-hsw/longevity-research-portal/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrMalformedAnswer):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
