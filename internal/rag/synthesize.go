package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docket0/docket/internal/casestudy"
	"github.com/docket0/docket/internal/llm"
)

// answerTemperature allows some variation in answer wording.
const answerTemperature = 0.3

// Apology is returned when no answer could be generated.
const Apology = "I'm sorry, I couldn't generate an answer at this time. Please try again later."

const answerPromptTemplate = `### Task
You are an AI assistant for cloud computing. Answer the user's query based on the retrieved case studies.

### User Query
%s

### Retrieved Case Studies
%s

### Instructions
1. Answer the user's question based on the provided case studies.
2. If the case studies don't contain relevant information, provide a general answer based on your knowledge.
3. Always cite specific companies or services mentioned in your answer.
4. Keep your answer concise but informative.`

// Synthesizer writes the final answer from the retrieved documents.
type Synthesizer struct {
	client *llm.Client
	logger *slog.Logger
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(client *llm.Client, logger *slog.Logger) (*Synthesizer, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{client: client, logger: logger}, nil
}

// Answer generates the response to the rewritten query grounded in docs.
// It never fails: a model error or an empty completion degrades to
// [Apology]. Model output is passed through [Sanitize] before it reaches
// the stream.
func (s *Synthesizer) Answer(ctx context.Context, rewrittenQuery string, docs []casestudy.ScoredDocument) string {
	prompt := fmt.Sprintf(answerPromptTemplate, rewrittenQuery, buildContext(docs))

	answer, err := s.client.Generate(ctx, prompt, answerTemperature)
	if err != nil {
		s.logger.Error("generating answer", "error", err)
		return Apology
	}
	if answer == "" {
		s.logger.Warn("model returned empty answer")
		return Apology
	}
	return Sanitize(answer)
}

// buildContext renders the retrieved documents as the prompt's case study
// block. Blank company and industry values render as "Unknown" so the
// model does not invent them.
func buildContext(docs []casestudy.ScoredDocument) string {
	if len(docs) == 0 {
		return "No relevant case studies found."
	}

	var b strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&b, "\n--- Document %d ---\n", i+1)
		fmt.Fprintf(&b, "Case Study: %s\n", orUnknown(d.CompanyName))
		fmt.Fprintf(&b, "Industry: %s\n", orUnknown(d.Industry))
		fmt.Fprintf(&b, "Summary: %s\n", d.Summary)
		fmt.Fprintf(&b, "Content: %s...\n", d.Content)
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
