package api

import (
	"errors"
	"net/http"

	"github.com/hugo-lorenzo-mato/gitmcp/internal/core"
)

// errorBody is the JSON error envelope for the HTTP surface.
type errorBody struct {
	Error      string `json:"error"`
	Code       int    `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// httpStatusForDomainError maps a DomainError to an HTTP status code.
// Specific codes take precedence over the kind bands.
func httpStatusForDomainError(err error) (int, bool) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) {
		return 0, false
	}

	switch domErr.Code {
	case core.CodeTaskNotFound, core.CodeWorkspaceNotFound, core.CodeRepoNotFound:
		return http.StatusNotFound, true
	case core.CodeRateLimited:
		return http.StatusTooManyRequests, true
	case core.CodeQueueFull:
		return http.StatusServiceUnavailable, true
	case core.CodeTimeout, core.CodeTaskTimeout:
		return http.StatusGatewayTimeout, true
	}

	switch domErr.Kind {
	case core.ErrKindValidation:
		return http.StatusUnprocessableEntity, true
	case core.ErrKindAuth:
		return http.StatusUnauthorized, true
	default:
		return http.StatusInternalServerError, true
	}
}

// respondDomainError renders a domain error with its mapped status. The
// message passes through the sanitizer: git errors can quote remote URLs
// carrying userinfo.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	status, ok := httpStatusForDomainError(err)
	if !ok {
		status = http.StatusInternalServerError
	}
	domErr := core.AsDomain(err)
	respondJSON(w, status, errorBody{
		Error:      s.log.Sanitize(domErr.Message),
		Code:       domErr.Code,
		Suggestion: domErr.Suggestion,
	})
}
