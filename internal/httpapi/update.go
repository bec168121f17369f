package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/clipper-ml/clipper/internal/types"
)

type updateRequest struct {
	UID   string          `json:"uid"`
	Input json.RawMessage `json:"input"`
	Label float64         `json:"label"`
}

// handleUpdate returns the handler installed at POST /<app>/update.
// Feedback always targets model version "0", the only version a
// registered application currently seeds state for. The request body
// carries the same input tensor the original predict call used, given
// the same JSON-schema treatment as /predict.
func (s *Server) handleUpdate(appName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		app := s.apps[appName]
		s.mu.Unlock()

		var req updateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Json error", err)
			return
		}

		if _, err := decodeInput(req.Input, app.InputType); err != nil {
			writeError(w, http.StatusBadRequest, "Json error", err)
			return
		}

		ack, err := s.processor.Update(types.FeedbackQuery{
			Application: appName,
			UserID:      req.UID,
			Version:     "0",
			Label:       req.Label,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, "Query processing error", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fmt.Sprintf("Feedback received? %t", ack.Applied))
	}
}
