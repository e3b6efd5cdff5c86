package casestudy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// queryTimeout bounds the existence probe and each partition search.
const queryTimeout = 5 * time.Second

// VectorDimension is the embedding width of the corpus tables.
// text-embedding-3-small produces 1536-dimensional vectors; the
// migrations declare vector(1536) to match.
const VectorDimension = 1536

// maxSearchLimit caps a single partition search.
const maxSearchLimit = 100

// documentCols is the standard SELECT column list for scanDocuments.
// Nullable columns are coalesced so callers never deal with NULLs.
const documentCols = `id, COALESCE(case_id, ''), content, COALESCE(link, ''),
	COALESCE(company_name, ''), COALESCE(region, ''), COALESCE(services_used, '{}'),
	COALESCE(outcomes, '{}'), COALESCE(summary, ''), COALESCE(year, 0), COALESCE(industry, '')`

// tableExistsSQL probes information_schema for a partition's backing table.
const tableExistsSQL = `SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`

// Store runs similarity search over the case study partitions.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a case study Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Exists reports whether the partition's backing table exists.
// Deployments sometimes carry only one provider's corpus; searches skip
// missing partitions instead of failing.
func (s *Store) Exists(ctx context.Context, p Partition) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var exists bool
	err := s.pool.QueryRow(ctx, tableExistsSQL, string(p)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking partition %s: %w", p, err)
	}
	return exists, nil
}

// Search returns the documents in partition p nearest to vec, keeping only
// those with cosine similarity strictly greater than threshold, ordered
// most similar first.
func (s *Store) Search(ctx context.Context, p Partition, vec pgvector.Vector, threshold float64, limit int) ([]ScoredDocument, error) {
	if limit <= 0 {
		return []ScoredDocument{}, nil
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+documentCols+`,
		        1 - (embedding <=> $1) AS similarity
		   FROM `+string(p)+`
		  WHERE 1 - (embedding <=> $1) > $2
		  ORDER BY embedding <=> $1
		  LIMIT $3`,
		vec, threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", p, err)
	}
	defer rows.Close()

	return scanDocuments(rows, p)
}

// scanDocuments collects search rows into scored documents.
func scanDocuments(rows pgx.Rows, p Partition) ([]ScoredDocument, error) {
	docs := []ScoredDocument{}
	for rows.Next() {
		var d ScoredDocument
		if err := rows.Scan(
			&d.ID, &d.CaseID, &d.Content, &d.Link,
			&d.CompanyName, &d.Region, &d.ServicesUsed,
			&d.Outcomes, &d.Summary, &d.Year, &d.Industry,
			&d.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scanning case study row: %w", err)
		}
		d.Partition = p
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating case study rows: %w", err)
	}
	return docs, nil
}
