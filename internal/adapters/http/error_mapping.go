package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrTrackNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrConfiguration):
		return http.StatusFailedDependency
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrRetriesExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorKind(err error) string {
	for _, kind := range []error{
		domain.ErrInvalidInput,
		domain.ErrTrackNotFound,
		domain.ErrConflict,
		domain.ErrConfiguration,
		domain.ErrTemporary,
		domain.ErrRetriesExhausted,
		domain.ErrFatal,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal"
}
