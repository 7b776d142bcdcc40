package api

import (
	"net/http"

	"github.com/okian/facetally/pkg/logger"
)

type registryResponse struct {
	Users []string `json:"users"`
	Dim   int      `json:"dim"`
}

type reloadResponse struct {
	Status string   `json:"status"`
	Users  []string `json:"users"`
}

// HandleListRegistry handles GET /registry.
func (s *Server) HandleListRegistry(w http.ResponseWriter, r *http.Request) {
	ids := s.deps.Identities(r.Context())
	resp := registryResponse{Users: make([]string, 0, len(ids))}
	for _, id := range ids {
		resp.Users = append(resp.Users, id.Name)
		resp.Dim = id.Dim
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleReloadRegistry handles POST /registry/reload. On failure the previous
// registry keeps serving.
func (s *Server) HandleReloadRegistry(w http.ResponseWriter, r *http.Request) {
	const op = "api.registry_reload"
	ctx := r.Context()

	snap, err := s.deps.ReloadRegistry(ctx)
	if err != nil {
		s.logger.Error(ctx, "registry reload failed", logger.Error(err))
		writeError(w, Wrap(op, err))
		return
	}
	users := snap.Names()
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, reloadResponse{Status: "success", Users: users})
}
