// Package pipeline orchestrates one query end to end: session
// resolution, conversation context, query planning, retrieval, answer
// synthesis, and the deferred history write.
//
// Progress and results stream to the caller as NDJSON events. The stream
// carries exactly one terminal event, complete or error, unless the sink
// itself fails first (a disconnected client); processing stops at the
// first sink error and the history write is skipped, since the client
// never saw an answer.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/docket0/docket/internal/rag"
	"github.com/docket0/docket/internal/session"
	"github.com/docket0/docket/internal/task"
)

// Sink receives one encoded event per call, without a trailing newline.
// Implementations append the newline and flush so clients see events as
// they happen.
type Sink func(line []byte) error

// Deps carries the pipeline's collaborators.
type Deps struct {
	Sessions    *session.Store
	Planner     *rag.Planner
	Retriever   *rag.Retriever
	Synthesizer *rag.Synthesizer
	Summarizer  *session.Summarizer
	Tasks       *task.Registry
	Logger      *slog.Logger
}

// Pipeline answers conversational queries over the case study corpus.
//
// Pipeline is safe for concurrent use by multiple goroutines.
type Pipeline struct {
	sessions    *session.Store
	planner     *rag.Planner
	retriever   *rag.Retriever
	synthesizer *rag.Synthesizer
	summarizer  *session.Summarizer
	tasks       *task.Registry
	logger      *slog.Logger
}

// New creates a Pipeline from its dependencies.
func New(d Deps) (*Pipeline, error) {
	if d.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if d.Planner == nil {
		return nil, fmt.Errorf("planner is required")
	}
	if d.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if d.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if d.Summarizer == nil {
		return nil, fmt.Errorf("summarizer is required")
	}
	if d.Tasks == nil {
		return nil, fmt.Errorf("task registry is required")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		sessions:    d.Sessions,
		planner:     d.Planner,
		retriever:   d.Retriever,
		synthesizer: d.Synthesizer,
		summarizer:  d.Summarizer,
		tasks:       d.Tasks,
		logger:      logger,
	}, nil
}

// Run processes one query and streams events to sink.
//
// Stages that can degrade do so inside their own packages; Run only
// aborts when the sink reports a dead client. A panic anywhere surfaces
// as a terminal error event rather than tearing down the server.
func (p *Pipeline) Run(ctx context.Context, userQuery, requestedSession string, sink Sink) {
	defer func() {
		if v := recover(); v != nil {
			p.logger.Error("query pipeline panicked", "panic", v)
			_ = p.emit(sink, ErrorEvent{
				Type:    EventError,
				Message: fmt.Sprintf("Error processing query: %v", v),
			})
		}
	}()

	p.logger.Info("processing query", "query", preview(userQuery))

	sessionID := p.sessions.Resolve(ctx, requestedSession)

	if requestedSession == session.FirstTime {
		if p.step(sink, stepNoHistory) != nil {
			return
		}
	}
	if p.step(sink, stepContext) != nil {
		return
	}
	summary := p.sessions.LatestSummary(ctx, sessionID)

	if p.step(sink, stepPlanning) != nil {
		return
	}
	plan := p.planner.Plan(ctx, userQuery, summary)

	if p.step(sink, stepEmbedding) != nil {
		return
	}
	if p.step(sink, stepRetrieving) != nil {
		return
	}
	docs := p.retriever.Retrieve(ctx, plan.RAGQuery, plan.CloudProvider)

	if p.step(sink, stepAnswering) != nil {
		return
	}
	answer := p.synthesizer.Answer(ctx, plan.RewrittenQuery, docs)

	complete := CompleteEvent{
		Type:          EventComplete,
		SessionID:     sessionID.String(),
		Response:      answer,
		CitationArray: buildCitations(docs),
	}
	if err := sink(p.marshalComplete(complete)); err != nil {
		p.logger.Warn("client disconnected before completion", "error", err)
		return
	}

	p.scheduleHistoryUpdate(ctx, sessionID, userQuery, answer)
}

// scheduleHistoryUpdate hands the summary fold and history write to the
// background pool. The work outlives the request, so it runs on a
// context detached from the request's cancellation.
func (p *Pipeline) scheduleHistoryUpdate(ctx context.Context, sessionID uuid.UUID, userQuery, answer string) {
	bg := context.WithoutCancel(ctx)
	p.tasks.Submit("history-update", func() {
		// Re-read instead of trusting the summary from request time:
		// another turn may have landed while the answer streamed.
		current := p.sessions.LatestSummary(bg, sessionID)
		updated := p.summarizer.Update(bg, userQuery, answer, current)
		if err := p.sessions.AppendTurn(bg, sessionID, userQuery, answer, updated); err != nil {
			p.logger.Error("storing conversation turn", "error", err, "session_id", sessionID)
		}
	})
}

// step emits one progress event.
func (p *Pipeline) step(sink Sink, message string) error {
	return p.emit(sink, ProcessingStepEvent{Type: EventProcessingStep, Message: message})
}

// emit marshals an event onto the sink.
func (p *Pipeline) emit(sink Sink, ev any) error {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("encoding stream event", "error", err)
		data = []byte(encodeFailure)
	}
	return sink(data)
}

// preview shortens a query for logging.
func preview(s string) string {
	const max = 100
	if len(s) <= max {
		return s
	}
	return cutAtRune(s, max) + "..."
}
