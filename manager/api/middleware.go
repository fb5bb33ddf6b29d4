package api

import (
	"net/http"

	"github.com/nrwiersma/manager/manager/status"
)

// withGate rejects the request unless the current manager status is in
// the allowed set.
func (s *Server) withGate(allowed status.AllowedSet, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.gate.Check(r.Context(), allowed); err != nil {
			s.respondError(w, r, err)
			return
		}
		h(w, r)
	}
}

// withUnfrozen rejects all mutating requests while the manager is
// frozen, regardless of the operation's own allowed set.
func (s *Server) withUnfrozen(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.gate.CheckMutation(r.Context()); err != nil {
			s.respondError(w, r, err)
			return
		}
		h(w, r)
	}
}

// withAdmin rejects requests without an administrative credential.
func (s *Server) withAdmin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil || !s.auth.Authorized(r) {
			respondJSON(w, http.StatusUnauthorized, errorResponse{
				Type:    "not-authorized",
				Message: "Administrative credential required",
			})
			return
		}
		h(w, r)
	}
}
