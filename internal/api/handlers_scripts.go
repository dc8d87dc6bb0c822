package api

import "net/http"

func (s *Server) handleRunSetupScript(w http.ResponseWriter, r *http.Request) {
	process, err := s.orch.RunSetupScript(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, toProcessJSON(process))
}

func (s *Server) handleRunCleanupScript(w http.ResponseWriter, r *http.Request) {
	process, err := s.orch.RunCleanupScript(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, toProcessJSON(process))
}

func (s *Server) handleStartDevServer(w http.ResponseWriter, r *http.Request) {
	process, err := s.orch.StartDevServer(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, toProcessJSON(process))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Stop(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, nil)
}
