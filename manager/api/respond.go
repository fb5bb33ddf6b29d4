package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nrwiersma/manager/manager/state"
	"github.com/nrwiersma/manager/manager/status"
)

// InvalidInputError is returned for malformed, missing or contradictory
// request parameters.
type InvalidInputError struct {
	Msg string
}

func (e *InvalidInputError) Error() string {
	return "api: invalid parameters: " + e.Msg
}

type errorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func respondMethodNotAllowed(w http.ResponseWriter) {
	respondJSON(w, http.StatusMethodNotAllowed, errorResponse{
		Type:    "method-not-allowed",
		Message: "Method not allowed",
	})
}

// respondError translates an error into its HTTP form. Infrastructure
// errors are logged with full context and surfaced as internal errors.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		frozenErr      *status.FrozenError
		unavailableErr *status.UnavailableError
		inputErr       *InvalidInputError
		notFoundErr    *state.AgentNotFoundError
	)

	switch {
	case errors.As(err, &frozenErr):
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{
			Type:    "server-frozen",
			Message: frozenErr.Error(),
		})

	case errors.As(err, &unavailableErr):
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{
			Type:    "service-unavailable",
			Message: unavailableErr.Error(),
		})

	case errors.As(err, &inputErr):
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Type:    "invalid-parameters",
			Message: inputErr.Msg,
		})

	case errors.As(err, &notFoundErr):
		respondJSON(w, http.StatusNotFound, errorResponse{
			Type:    "agent-not-found",
			Message: notFoundErr.Error(),
		})

	default:
		s.log.Error("api: unexpected error handling request",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		respondJSON(w, http.StatusInternalServerError, errorResponse{
			Type:    "internal-error",
			Message: "Internal server error",
		})
	}
}
