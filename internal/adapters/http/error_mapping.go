package httpadapter

import (
	"net/http"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrNotAnalyzed),
		domain.IsKind(err, domain.ErrUnsupported):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDocumentNotFound),
		domain.IsKind(err, domain.ErrJobNotFound),
		domain.IsKind(err, domain.ErrObjectNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage never leaks internal error text for 5xx responses.
func errorMessage(err error, status int) string {
	if msg, ok := domain.PublicMessage(err); ok {
		return msg
	}
	switch {
	case status == http.StatusServiceUnavailable:
		return "Service temporarily unavailable"
	case status >= http.StatusInternalServerError:
		return "Something went wrong"
	default:
		return err.Error()
	}
}
