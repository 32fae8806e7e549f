package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/apkaapna007-a11y/nelson-gpt/internal/chat"
)

type errorEnvelope struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
	Code   string `json:"code,omitempty"`
}

type missingInformationResponse struct {
	Error string `json:"error"`
}

// decodeJSON tolerates unknown fields: the chat UI posts more than the
// pipeline reads.
func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeErrorEnvelope is the only exit for failures before a stream starts.
func writeErrorEnvelope(w http.ResponseWriter, err error) {
	normalized := chat.Normalize(err)
	if normalized == nil {
		normalized = chat.Normalize(errors.New("Internal server error"))
	}
	writeJSON(w, normalized.Status, errorEnvelope{
		Error:  normalized.Message,
		Status: normalized.Status,
		Code:   normalized.Code,
	})
}
