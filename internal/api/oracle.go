package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/floodcover/internal/model"
)

type batchRequest struct {
	Locations []string `json:"locations"`
}

type batchItem struct {
	Location string           `json:"location"`
	Data     *model.FloodData `json:"data,omitempty"`
	Error    string           `json:"error,omitempty"`
	Kind     string           `json:"kind,omitempty"`
}

func (s *Server) manualUpdate(w http.ResponseWriter, r *http.Request) {
	loc := chi.URLParam(r, "location")
	data, err := s.eng.Oracle.ManualUpdate(r.Context(), Caller(r.Context()), loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// batchUpdate always answers 200; failures are reported per location.
func (s *Server) batchUpdate(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	results := s.eng.Oracle.BatchUpdate(r.Context(), Caller(r.Context()), req.Locations)
	out := make([]batchItem, 0, len(results))
	for _, res := range results {
		item := batchItem{Location: res.Location, Data: res.Data}
		if res.Err != nil {
			item.Error = res.Err.Error()
			item.Kind = string(model.KindOf(res.Err))
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) latestData(w http.ResponseWriter, r *http.Request) {
	data, err := s.eng.Oracle.LatestData(chi.URLParam(r, "location"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) cachedData(w http.ResponseWriter, r *http.Request) {
	loc := chi.URLParam(r, "location")
	cd, ok := s.eng.Oracle.CachedData(loc)
	if !ok {
		writeError(w, r, model.NotFound("no data available for location: %s", loc))
		return
	}
	writeJSON(w, http.StatusOK, cd)
}

func (s *Server) cachedLocations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Oracle.CachedLocations())
}

func (s *Server) oracleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Oracle.Status())
}

func (s *Server) oracleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Oracle.Configuration())
}

func (s *Server) updateOracleConfig(w http.ResponseWriter, r *http.Request) {
	var cfg model.OracleConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	if err := s.eng.Oracle.UpdateConfiguration(Caller(r.Context()), cfg); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.eng.Oracle.Configuration())
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused *bool `json:"paused"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Paused == nil {
		writeError(w, r, model.Validation("paused is required"))
		return
	}
	if err := s.eng.Oracle.SetPaused(Caller(r.Context()), *req.Paused); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"paused":        *req.Paused,
		"timer_running": s.eng.Oracle.TimerRunning(),
	})
}

func (s *Server) addAuthorizedPrincipal(w http.ResponseWriter, r *http.Request) {
	var req principalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Principal == "" {
		writeError(w, r, model.Validation("principal is required"))
		return
	}
	if err := s.eng.Oracle.AddAuthorizedPrincipal(Caller(r.Context()), req.Principal); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeAuthorizedPrincipal(w http.ResponseWriter, r *http.Request) {
	p := model.Principal(chi.URLParam(r, "principal"))
	if err := s.eng.Oracle.RemoveAuthorizedPrincipal(Caller(r.Context()), p); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	n, err := s.eng.Oracle.ClearCache(Caller(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": n})
}
