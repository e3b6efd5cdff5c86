// Package casestudy stores and searches the cloud provider case study corpus.
//
// The corpus is partitioned by provider into separate PostgreSQL tables,
// each carrying a pgvector embedding column. Search runs per partition;
// cross-partition merging is the retriever's job.
package casestudy

import "strings"

// Partition identifies one provider-specific case study table.
// Partition values are package constants, never user input; they are
// interpolated into SQL directly.
type Partition string

const (
	// PartitionAWS holds AWS case studies.
	PartitionAWS Partition = "case_studies"

	// PartitionGCP holds Google Cloud case studies.
	PartitionGCP Partition = "gcp_case_studies"
)

// Cloud provider labels produced by the query planner.
const (
	ProviderAWS    = "aws"
	ProviderGCP    = "gcp"
	ProviderOthers = "others"
)

// PartitionsFor maps a planned cloud provider to the partitions to search.
// Matching is case-insensitive. Anything that is not a known single
// provider searches every partition, same as "others".
func PartitionsFor(provider string) []Partition {
	switch strings.ToLower(provider) {
	case ProviderAWS:
		return []Partition{PartitionAWS}
	case ProviderGCP:
		return []Partition{PartitionGCP}
	default:
		return []Partition{PartitionAWS, PartitionGCP}
	}
}

// Document is one case study row as served to the pipeline.
// Nullable text columns are coalesced to "" at scan time, arrays to
// empty, the year to 0.
type Document struct {
	ID           int
	CaseID       string
	Content      string
	Link         string
	CompanyName  string
	Region       string
	ServicesUsed []string
	Outcomes     []string
	Summary      string
	Year         int
	Industry     string
}

// ScoredDocument pairs a document with its cosine similarity to the query
// and the partition it came from.
type ScoredDocument struct {
	Document
	Similarity float64
	Partition  Partition
}
