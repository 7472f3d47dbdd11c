package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/floodcover/internal/model"
)

type createPolicyRequest struct {
	Premium  amount `json:"premium"`
	Coverage amount `json:"coverage"`
}

type policyStatusRequest struct {
	Active  *bool `json:"active"`
	PaidOut *bool `json:"paid_out"`
}

func (s *Server) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req createPolicyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.eng.Policies.CreatePolicy(r.Context(), Caller(r.Context()), req.Premium.v, req.Coverage.v)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"policy_id": id})
}

func (s *Server) getPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := policyID(w, r)
	if !ok {
		return
	}
	p, found := s.eng.Policies.Policy(id)
	if !found {
		writeError(w, r, model.NotFound("policy not found"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) policyByHolder(w http.ResponseWriter, r *http.Request) {
	holder := model.Principal(chi.URLParam(r, "principal"))
	p, found := s.eng.Policies.PolicyByHolder(holder)
	if !found {
		writeError(w, r, model.NotFound("no policy found"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listPolicies(w http.ResponseWriter, r *http.Request) {
	ps, err := s.eng.Policies.AllPolicies(Caller(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) updatePolicyStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := policyID(w, r)
	if !ok {
		return
	}
	var req policyStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Active == nil || req.PaidOut == nil {
		writeError(w, r, model.Validation("active and paid_out are required"))
		return
	}
	if err := s.eng.Policies.UpdatePolicyStatus(r.Context(), Caller(r.Context()), id, *req.Active, *req.PaidOut); err != nil {
		writeError(w, r, err)
		return
	}
	p, _ := s.eng.Policies.Policy(id)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) triggerPayout(w http.ResponseWriter, r *http.Request) {
	amt, err := s.eng.Policies.TriggerPayout(r.Context(), Caller(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"amount": amt})
}

func (s *Server) policyStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Policies.Stats())
}

func (s *Server) payoutEligible(w http.ResponseWriter, r *http.Request) {
	holder := model.Principal(chi.URLParam(r, "principal"))
	writeJSON(w, http.StatusOK, map[string]any{
		"principal": holder,
		"eligible":  s.eng.Policies.IsPayoutEligible(holder),
	})
}

func policyID(w http.ResponseWriter, r *http.Request) (model.PolicyID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, r, model.Validation("invalid policy id %q", raw))
		return 0, false
	}
	return model.PolicyID(id), true
}
