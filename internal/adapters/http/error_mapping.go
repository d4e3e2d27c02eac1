package httpadapter

import (
	"net/http"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrInvalidFormatTarget):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDeadlineExceeded):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrRetrieverUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
