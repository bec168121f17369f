package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clipper-ml/clipper/internal/types"
)

type predictRequest struct {
	UID   string          `json:"uid"`
	Input json.RawMessage `json:"input"`
}

type predictResponse struct {
	QueryID uint64  `json:"query_id"`
	Output  float64 `json:"output"`
	Default bool    `json:"default"`
}

// handlePredict returns the handler installed at POST /<app>/predict.
// The application name is closed over at registration time so lookups
// never race route installation.
func (s *Server) handlePredict(appName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		app := s.apps[appName]
		s.mu.Unlock()

		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Json error", err)
			return
		}

		input, err := decodeInput(req.Input, app.InputType)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Json error", err)
			return
		}

		uid := req.UID
		if uid == "" {
			// A caller that omits uid still needs a per-request
			// identity for the selection-policy state key; synthesize
			// an opaque one rather than collapsing onto the shared
			// default-user bucket.
			uid = uuid.NewString()
		}

		q := types.Query{
			Application:      appName,
			UserID:           uid,
			Input:            input,
			DeadlineUnixNano: time.Now().Add(time.Duration(app.LatencySLOMicros) * time.Microsecond).UnixNano(),
			Policy:           app.Policy,
			Candidates:       app.CandidateModels,
			Lineage:          types.NewLineage(),
		}

		future, err := s.processor.Predict(r.Context(), q, app.DefaultOutput)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Query processing error", err)
			return
		}

		done := make(chan types.Response, 1)
		future.OnComplete(func(resp types.Response) { done <- resp })

		select {
		case resp := <-done:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(predictResponse{
				QueryID: resp.QueryID,
				Output:  resp.Output,
				Default: resp.UsedDefault,
			})
		case <-r.Context().Done():
			// Client went away before the future resolved; nothing to
			// write, the processor's deadline timer still fires and
			// cleans up the dispatch context.
		}
	}
}
