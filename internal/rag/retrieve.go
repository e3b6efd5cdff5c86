package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pgvector/pgvector-go"

	"github.com/docket0/docket/internal/casestudy"
	"github.com/docket0/docket/internal/llm"
)

// Retriever embeds planned queries and searches the case study corpus.
type Retriever struct {
	client    *llm.Client
	store     *casestudy.Store
	threshold float64
	limit     int
	logger    *slog.Logger
}

// NewRetriever creates a Retriever. threshold and limit come from
// configuration and bound every search.
func NewRetriever(client *llm.Client, store *casestudy.Store, threshold float64, limit int, logger *slog.Logger) (*Retriever, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("case study store is required")
	}
	if limit < 1 {
		return nil, fmt.Errorf("retrieval limit must be at least 1, got %d", limit)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		client:    client,
		store:     store,
		threshold: threshold,
		limit:     limit,
		logger:    logger,
	}, nil
}

// Retrieve embeds the planned search query and searches every partition
// the provider maps to, merging per-partition results into one
// similarity-ranked list capped at the configured limit.
//
// Retrieve never fails. An embedding failure retrieves nothing, and a
// missing or unsearchable partition is skipped so the surviving
// partitions still contribute.
func (r *Retriever) Retrieve(ctx context.Context, ragQuery, provider string) []casestudy.ScoredDocument {
	vec, err := r.client.Embed(ctx, ragQuery)
	if err != nil {
		r.logger.Error("embedding search query, nothing to retrieve", "error", err)
		return nil
	}
	return r.search(ctx, vec, provider)
}

func (r *Retriever) search(ctx context.Context, vec pgvector.Vector, provider string) []casestudy.ScoredDocument {
	merged := []casestudy.ScoredDocument{}
	for _, p := range casestudy.PartitionsFor(provider) {
		exists, err := r.store.Exists(ctx, p)
		if err != nil {
			r.logger.Error("checking partition, skipping", "partition", p, "error", err)
			continue
		}
		if !exists {
			r.logger.Warn("partition not found in database", "partition", p)
			continue
		}

		docs, err := r.store.Search(ctx, p, vec, r.threshold, r.limit)
		if err != nil {
			r.logger.Error("searching partition, skipping", "partition", p, "error", err)
			continue
		}
		merged = append(merged, docs...)
	}

	// Each partition is already ranked; ranking again merges them.
	// Stable sort keeps the partition order for equal similarities.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if len(merged) > r.limit {
		merged = merged[:r.limit]
	}

	r.logger.Info("retrieved case studies", "count", len(merged), "provider", provider)
	return merged
}
