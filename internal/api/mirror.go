package api

import (
	"net/http"

	"github.com/sells-group/floodcover/internal/model"
)

func (s *Server) mirrorPolicies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Mirror.Policies())
}

func (s *Server) upsertMirrorPolicy(w http.ResponseWriter, r *http.Request) {
	var p model.MirrorPolicy
	if !decodeBody(w, r, &p) {
		return
	}
	if err := s.eng.Mirror.Upsert(Caller(r.Context()), p); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) batchUpsertMirrorPolicies(w http.ResponseWriter, r *http.Request) {
	var ps []model.MirrorPolicy
	if !decodeBody(w, r, &ps) {
		return
	}
	if err := s.eng.Mirror.BatchUpsert(Caller(r.Context()), ps); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"upserted": len(ps)})
}

func (s *Server) clearMirrorPolicies(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Mirror.Clear(Caller(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) mirrorStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Mirror.Stats())
}
