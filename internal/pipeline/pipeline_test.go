package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/docket0/docket/internal/casestudy"
	"github.com/docket0/docket/internal/llm"
	"github.com/docket0/docket/internal/rag"
	"github.com/docket0/docket/internal/session"
	"github.com/docket0/docket/internal/task"
	"github.com/docket0/docket/internal/testutil"
)

type testPipeline struct {
	pipeline *Pipeline
	mock     *testutil.MockLLM
	emb      *testutil.MockEmbedder
	db       *testutil.TestDBContainer
	tasks    *task.Registry
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	g := genkit.Init(context.Background())
	if g == nil {
		t.Fatal("genkit.Init returned nil")
	}
	mock := testutil.NewMockLLM(`{"rag_query":"","rewritten_query":"","cloud_provider":""}`)
	mock.RegisterModel(g)
	emb := testutil.NewMockEmbedder(casestudy.VectorDimension)
	embedder := emb.RegisterEmbedder(g)

	logger := testutil.DiscardLogger()
	client, err := llm.New(g, "mock/test-model", embedder, nil, logger)
	if err != nil {
		t.Fatalf("llm.New() failed: %v", err)
	}

	sessions, err := session.NewStore(db.Pool, logger)
	if err != nil {
		t.Fatalf("session.NewStore() failed: %v", err)
	}
	caseStore, err := casestudy.NewStore(db.Pool, logger)
	if err != nil {
		t.Fatalf("casestudy.NewStore() failed: %v", err)
	}
	planner, err := rag.NewPlanner(client, logger)
	if err != nil {
		t.Fatalf("rag.NewPlanner() failed: %v", err)
	}
	retriever, err := rag.NewRetriever(client, caseStore, 0.0, 3, logger)
	if err != nil {
		t.Fatalf("rag.NewRetriever() failed: %v", err)
	}
	synthesizer, err := rag.NewSynthesizer(client, logger)
	if err != nil {
		t.Fatalf("rag.NewSynthesizer() failed: %v", err)
	}
	summarizer, err := session.NewSummarizer(client, logger)
	if err != nil {
		t.Fatalf("session.NewSummarizer() failed: %v", err)
	}
	tasks, err := task.NewRegistry(4, logger)
	if err != nil {
		t.Fatalf("task.NewRegistry() failed: %v", err)
	}

	p, err := New(Deps{
		Sessions:    sessions,
		Planner:     planner,
		Retriever:   retriever,
		Synthesizer: synthesizer,
		Summarizer:  summarizer,
		Tasks:       tasks,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	return &testPipeline{pipeline: p, mock: mock, emb: emb, db: db, tasks: tasks}
}

// run executes one query and parses the emitted stream.
func (tp *testPipeline) run(t *testing.T, query, sessionID string) []testutil.StreamEvent {
	t.Helper()

	var buf strings.Builder
	sink := func(line []byte) error {
		buf.Write(line)
		buf.WriteByte('\n')
		return nil
	}
	tp.pipeline.Run(context.Background(), query, sessionID, sink)
	return testutil.ParseNDJSONEvents(t, buf.String())
}

func (tp *testPipeline) drainTasks(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tp.tasks.Close(ctx); err != nil {
		t.Fatalf("draining background tasks: %v", err)
	}
}

func stepMessages(events []testutil.StreamEvent) []string {
	steps := testutil.FindAllEvents(events, "processing_step")
	msgs := make([]string, 0, len(steps))
	for _, s := range steps {
		msg, _ := s.Data["message"].(string)
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestRun(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	tp.mock.AddResponse("determine the best search parameters",
		`{"rag_query":"kubernetes adoption","rewritten_query":"Which companies adopted Kubernetes?","cloud_provider":"aws"}`)
	tp.mock.AddResponse("based on the retrieved case studies",
		"Acme Corp adopted Kubernetes on EKS.")
	tp.mock.AddResponse("conversation summarizer",
		`{"updated_summary":"User asked about Kubernetes; assistant cited Acme Corp."}`)

	tp.emb.SetVector("kubernetes adoption", makeVector(casestudy.VectorDimension, 0))

	if _, err := tp.db.Pool.Exec(ctx,
		`INSERT INTO case_studies (content, company_name, link, embedding) VALUES ($1, $2, $3, $4)`,
		"Acme moved its clusters to EKS.", "Acme Corp", "https://example.com/acme",
		pgvector.NewVector(makeVector(casestudy.VectorDimension, 0)),
	); err != nil {
		t.Fatalf("seeding case study: %v", err)
	}

	var firstSessionID string

	t.Run("first time streams the full progression", func(t *testing.T) {
		events := tp.run(t, "Tell me about kubernetes", session.FirstTime)

		wantSteps := []string{
			"No previous conversation history found",
			"Understanding the context of the conversation",
			"Processing the user query, rewriting the query and determining the cloud provider",
			"Generating embedding for the RAG query",
			"Retrieving relevant case studies",
			"Generating the final answer",
		}
		if diff := cmp.Diff(wantSteps, stepMessages(events)); diff != "" {
			t.Errorf("progress steps mismatch (-want +got):\n%s", diff)
		}

		last := events[len(events)-1]
		if last.Type != "complete" {
			t.Fatalf("terminal event type = %q, want complete", last.Type)
		}
		if n := len(testutil.FindAllEvents(events, "complete")); n != 1 {
			t.Errorf("stream carried %d complete events, want 1", n)
		}
		if testutil.FindEvent(events, "error") != nil {
			t.Error("stream carried an error event")
		}

		firstSessionID, _ = last.Data["session_id"].(string)
		if _, err := uuid.Parse(firstSessionID); err != nil {
			t.Errorf("session_id %q is not a UUID: %v", firstSessionID, err)
		}
		if got := last.Data["response"]; got != "Acme Corp adopted Kubernetes on EKS." {
			t.Errorf("response = %q", got)
		}

		citations, _ := last.Data["citation_array"].([]any)
		if len(citations) != 1 {
			t.Fatalf("citation_array has %d entries, want 1", len(citations))
		}
		citation, _ := citations[0].(map[string]any)
		if got := citation["company_name"]; got != "Acme Corp" {
			t.Errorf("citation company_name = %q", got)
		}
		if got := citation["content"]; got != "Acme moved its clusters to EKS." {
			t.Errorf("citation content = %q", got)
		}
		if got := citation["link"]; got != "https://example.com/acme" {
			t.Errorf("citation link = %q", got)
		}
	})

	t.Run("existing session skips the no-history notice", func(t *testing.T) {
		id := uuid.New()
		if _, err := tp.db.Pool.Exec(ctx,
			`INSERT INTO conversation_history (role, content, conv_summary, session_id)
			 VALUES ('assistant', 'earlier answer', 'User explored GCP data warehouses.', $1)`, id); err != nil {
			t.Fatalf("seeding history: %v", err)
		}

		events := tp.run(t, "What about pricing?", id.String())

		msgs := stepMessages(events)
		if len(msgs) == 0 || msgs[0] != "Understanding the context of the conversation" {
			t.Errorf("first step = %v, want context step without the no-history notice", msgs)
		}

		last := events[len(events)-1]
		if last.Type != "complete" {
			t.Fatalf("terminal event type = %q, want complete", last.Type)
		}
		if got := last.Data["session_id"]; got != id.String() {
			t.Errorf("session_id = %v, want %s", got, id)
		}

		// The stored summary must reach the planner prompt.
		var found bool
		for _, call := range tp.mock.Calls() {
			if strings.Contains(call.UserMessage, "determine the best search parameters") &&
				strings.Contains(call.UserMessage, "User explored GCP data warehouses.") {
				found = true
				break
			}
		}
		if !found {
			t.Error("planner prompt never carried the stored conversation summary")
		}
	})

	t.Run("embedding failure degrades to an uncited answer", func(t *testing.T) {
		tp.emb.SetFailing(true)
		defer tp.emb.SetFailing(false)

		events := tp.run(t, "Tell me about kubernetes", session.FirstTime)

		last := events[len(events)-1]
		if last.Type != "complete" {
			t.Fatalf("terminal event type = %q, want complete", last.Type)
		}
		if testutil.FindEvent(events, "error") != nil {
			t.Error("stream carried an error event")
		}
		citations, _ := last.Data["citation_array"].([]any)
		if len(citations) != 0 {
			t.Errorf("citation_array has %d entries, want none", len(citations))
		}
		msgs := stepMessages(events)
		if msgs[len(msgs)-1] != "Generating the final answer" {
			t.Errorf("last step = %q, want the full progression despite the embedding failure", msgs[len(msgs)-1])
		}
	})

	// Keep this case last; it drains and closes the shared task pool.
	t.Run("background task persists the turn", func(t *testing.T) {
		tp.drainTasks(t)

		sessionID, err := uuid.Parse(firstSessionID)
		if err != nil {
			t.Fatalf("parsing session id %q: %v", firstSessionID, err)
		}

		type row struct {
			Role    string
			Content string
			Summary string
		}
		rows, err := tp.db.Pool.Query(ctx,
			`SELECT role, content, COALESCE(conv_summary, '')
			   FROM conversation_history
			  WHERE session_id = $1
			  ORDER BY id`, sessionID)
		if err != nil {
			t.Fatalf("querying history: %v", err)
		}
		defer rows.Close()

		var got []row
		for rows.Next() {
			var r row
			if err := rows.Scan(&r.Role, &r.Content, &r.Summary); err != nil {
				t.Fatalf("scanning history row: %v", err)
			}
			got = append(got, r)
		}
		if err := rows.Err(); err != nil {
			t.Fatalf("iterating history rows: %v", err)
		}

		wantSummary := "User asked about Kubernetes; assistant cited Acme Corp."
		want := []row{
			{Role: "user", Content: "Tell me about kubernetes", Summary: wantSummary},
			{Role: "assistant", Content: "Acme Corp adopted Kubernetes on EKS.", Summary: wantSummary},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("persisted turn mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestRunSinkFailureStopsPipeline(t *testing.T) {
	tp := newTestPipeline(t)

	calls := 0
	sink := func(line []byte) error {
		calls++
		return context.Canceled
	}
	tp.pipeline.Run(context.Background(), "hello", session.FirstTime, sink)

	if calls != 1 {
		t.Errorf("sink called %d times after failing, want 1", calls)
	}
}

// makeVector creates a unit vector of the given dimension with a single
// non-zero component.
func makeVector(dim, idx int) []float32 {
	vec := make([]float32, dim)
	vec[idx%dim] = 1.0
	return vec
}
