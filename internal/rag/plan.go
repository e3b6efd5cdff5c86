// Package rag implements the retrieval stages of the query pipeline:
// planning the search, retrieving case studies by vector similarity, and
// synthesizing the final answer.
//
// Every stage degrades instead of failing. Model outages, malformed
// structured output, and database failures produce a default plan, zero
// documents, or a fixed apology rather than an error; the caller decides
// what a degraded answer looks like to the user.
package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docket0/docket/internal/casestudy"
	"github.com/docket0/docket/internal/llm"
)

// planTemperature keeps search planning deterministic.
const planTemperature = 0.0

const planPromptTemplate = `### Task
You are an AI assistant for cloud computing. Process the user's query and determine the best search parameters.

### Conversation Context
%s

### Current User Query
%s

### Instructions
1. Create an optimized RAG query for searching a vector database of cloud case studies.
2. Rewrite the user query with any contextual information from previous conversation.
3. Determine which cloud provider is most relevant (AWS, GCP, or others).

Return a structured JSON response containing the rag_query, rewritten_query, and cloud_provider fields.`

// Plan is the planner's decision for one query: what to embed, what to
// answer, and which provider corpus to search. Fallback distinguishes a
// plan the model produced from the identity default substituted when
// planning failed.
type Plan struct {
	RAGQuery       string `json:"rag_query"`
	RewrittenQuery string `json:"rewritten_query"`
	CloudProvider  string `json:"cloud_provider" jsonschema:"enum=aws,enum=gcp,enum=others"`
	Fallback       bool   `json:"-"`
}

// Planner turns a raw user query plus conversation context into a Plan.
type Planner struct {
	client *llm.Client
	logger *slog.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(client *llm.Client, logger *slog.Logger) (*Planner, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{client: client, logger: logger}, nil
}

// Plan rewrites the query for retrieval and picks the provider corpus.
// It never fails: a model error, a schema violation, or a structurally
// complete plan with blank fields all yield the identity fallback that
// searches the raw query against the AWS partition.
func (p *Planner) Plan(ctx context.Context, userQuery, summary string) Plan {
	shown := summary
	if shown == "" {
		shown = "No prior conversation."
	}
	prompt := fmt.Sprintf(planPromptTemplate, shown, userQuery)

	out, err := llm.GenerateData[Plan](ctx, p.client, prompt, planTemperature)
	if err != nil {
		p.logger.Error("planning query, falling back to defaults", "error", err)
		return fallbackPlan(userQuery)
	}

	// The schema constrains shape and the provider enum, not emptiness. A
	// blank field means the model did not follow the task, so the whole
	// plan is suspect.
	if out.RAGQuery == "" || out.RewrittenQuery == "" || out.CloudProvider == "" {
		p.logger.Warn("model returned an incomplete plan, falling back to defaults",
			"rag_query", out.RAGQuery,
			"cloud_provider", out.CloudProvider)
		return fallbackPlan(userQuery)
	}

	p.logger.Info("planned query",
		"rag_query", out.RAGQuery,
		"cloud_provider", out.CloudProvider)
	return out
}

// fallbackPlan searches the user's own words against the default corpus.
func fallbackPlan(userQuery string) Plan {
	return Plan{
		RAGQuery:       userQuery,
		RewrittenQuery: userQuery,
		CloudProvider:  casestudy.ProviderAWS,
		Fallback:       true,
	}
}
