package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Wyydra/huddle/internal/adapter/wire"
	"github.com/rs/zerolog/log"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, err error) {
	status, code := wire.Status(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	respondJSON(w, status, wire.Error{Code: code, Message: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, wire.Error{Code: "invalid_input", Message: msg})
}

// decodeJSON writes a 400 and returns false when the body does not decode.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, "invalid JSON payload")
		return false
	}
	return true
}

func normalizeID(id string) string {
	return strings.TrimSpace(id)
}
