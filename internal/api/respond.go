package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/floodcover/internal/model"
)

// maxBodyBytes bounds request bodies. Batch payloads are the largest.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// statusFor maps an error kind to an HTTP status. Unclassified errors are 500.
func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindUnauthorized:
		return http.StatusForbidden
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindConflict, model.KindInvalidState:
		return http.StatusConflict
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindThresholdNotMet:
		return http.StatusUnprocessableEntity
	case model.KindExternalFetch:
		return http.StatusBadGateway
	case model.KindPaused:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: string(kind)})
}

// decodeBody reads a JSON body into v. Malformed bodies are Validation errors.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if kind := model.KindOf(err); kind != "" {
			writeError(w, r, err)
			return false
		}
		writeError(w, r, model.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

// amount accepts a JSON number or a decimal string of any size.
type amount struct{ v *big.Int }

func (a *amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		a.v = nil
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return model.Validation("invalid amount %q", s)
	}
	a.v = v
	return nil
}
