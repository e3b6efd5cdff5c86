package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/docket0/docket/internal/pipeline"
	"github.com/docket0/docket/internal/session"
)

// maxRequestBody caps the query request body at 1MB.
const maxRequestBody = 1 << 20

// QueryRunner executes one conversational query, streaming encoded events
// to the sink. *pipeline.Pipeline is the production implementation.
type QueryRunner interface {
	Run(ctx context.Context, userQuery, requestedSession string, sink pipeline.Sink)
}

// queryRequest is the body of POST /query.
type queryRequest struct {
	UserQuery string `json:"user_query"`
	SessionID string `json:"session_id"`
}

// queryHandler streams query processing events as NDJSON.
type queryHandler struct {
	pipeline QueryRunner
	logger   *slog.Logger
}

// query handles POST /query.
//
// The response is always HTTP 200 with Content-Type application/x-ndjson;
// invalid input surfaces as a single error event on the stream rather
// than an HTTP error, so clients parse one wire format for every outcome.
func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("rejecting malformed query request", "error", err)
		h.writeValidationError(w, flusher, "request body must be valid JSON")
		return
	}

	req.UserQuery = strings.TrimSpace(req.UserQuery)
	if req.UserQuery == "" {
		h.writeValidationError(w, flusher, "user_query cannot be empty")
		return
	}
	if req.SessionID == "" {
		req.SessionID = session.FirstTime
	}

	h.logger.Info("received query", "session_id", req.SessionID, "query_len", len(req.UserQuery))

	sink := func(line []byte) error {
		if _, err := w.Write(append(line, '\n')); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	h.pipeline.Run(r.Context(), req.UserQuery, req.SessionID, sink)
}

// writeValidationError emits the single NDJSON error line promised by the
// streaming contract for bad input. The HTTP status stays 200.
func (h *queryHandler) writeValidationError(w io.Writer, flusher http.Flusher, detail string) {
	ev := pipeline.ErrorEvent{
		Type:    pipeline.EventError,
		Message: "Invalid request parameters",
		Detail:  detail,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encoding validation error", "error", err)
		return
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		h.logger.Debug("writing validation error", "error", err)
		return
	}
	flusher.Flush()
}
