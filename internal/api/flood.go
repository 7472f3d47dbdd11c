package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/floodcover/internal/model"
)

type levelRequest struct {
	Level *float64 `json:"level"`
}

type thresholdRequest struct {
	Threshold *float64 `json:"threshold"`
}

type principalRequest struct {
	Principal model.Principal `json:"principal"`
}

func (s *Server) floodLevel(w http.ResponseWriter, _ *http.Request) {
	level, threshold := s.eng.Telemetry.Reading()
	writeJSON(w, http.StatusOK, map[string]any{
		"level":         level,
		"threshold":     threshold,
		"threshold_met": s.eng.Telemetry.ThresholdMet(),
	})
}

func (s *Server) setFloodLevel(w http.ResponseWriter, r *http.Request) {
	var req levelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Level == nil {
		writeError(w, r, model.Validation("level is required"))
		return
	}
	if err := s.eng.Telemetry.SetFloodLevel(r.Context(), Caller(r.Context()), *req.Level); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"level": *req.Level})
}

func (s *Server) floodThreshold(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"threshold": s.eng.Telemetry.FloodThreshold()})
}

func (s *Server) setFloodThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Threshold == nil {
		writeError(w, r, model.Validation("threshold is required"))
		return
	}
	if err := s.eng.Telemetry.SetFloodThreshold(r.Context(), Caller(r.Context()), *req.Threshold); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"threshold": *req.Threshold})
}

func (s *Server) oracleUpdaters(w http.ResponseWriter, r *http.Request) {
	ps, err := s.eng.Telemetry.OracleUpdaters(Caller(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) addOracleUpdater(w http.ResponseWriter, r *http.Request) {
	var req principalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Principal == "" {
		writeError(w, r, model.Validation("principal is required"))
		return
	}
	if err := s.eng.Telemetry.AddOracleUpdater(Caller(r.Context()), req.Principal); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeOracleUpdater(w http.ResponseWriter, r *http.Request) {
	p := model.Principal(chi.URLParam(r, "principal"))
	if err := s.eng.Telemetry.RemoveOracleUpdater(Caller(r.Context()), p); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getAdmin(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"admin": s.eng.Guard.Admin()})
}

func (s *Server) transferAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Admin model.Principal `json:"admin"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.eng.Guard.TransferAdmin(Caller(r.Context()), req.Admin); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"admin": req.Admin})
}
