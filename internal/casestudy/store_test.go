package casestudy

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/docket0/docket/internal/testutil"
)

// makeVector creates a unit vector of the given dimension with a single
// non-zero component.
func makeVector(dim, idx int) []float32 {
	vec := make([]float32, dim)
	vec[idx%dim] = 1.0
	return vec
}

// makeVectorWithAngle creates a vector at a given angle from makeVector(dim, 0).
// angle=0 → identical (similarity=1.0), angle=pi/2 → orthogonal (similarity=0).
func makeVectorWithAngle(dim int, angle float64) []float32 {
	vec := make([]float32, dim)
	vec[0] = float32(math.Cos(angle))
	vec[1] = float32(math.Sin(angle))
	return vec
}

func seedDocument(t *testing.T, pool *pgxpool.Pool, p Partition, company, content string, vec []float32) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO `+string(p)+` (content, company_name, embedding) VALUES ($1, $2, $3)`,
		content, company, pgvector.NewVector(vec),
	)
	if err != nil {
		t.Fatalf("seeding %s: %v", p, err)
	}
}

func setupStoreTest(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	store, err := NewStore(db.Pool, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewStore() unexpected error: %v", err)
	}
	return store, db.Pool
}

func companies(docs []ScoredDocument) []string {
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.CompanyName)
	}
	return names
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(nil, nil); err == nil {
		t.Fatal("NewStore(nil, nil) expected error, got nil")
	}
}

func TestSearch(t *testing.T) {
	store, pool := setupStoreTest(t)
	ctx := context.Background()
	dim := VectorDimension

	base := makeVector(dim, 0)

	// AWS partition: three documents at increasing angles from the base
	// vector, one orthogonal document, and one row with NULL metadata.
	seedDocument(t, pool, PartitionAWS, "Acme Corp", "acme migrated to serverless", makeVectorWithAngle(dim, 0))
	seedDocument(t, pool, PartitionAWS, "Globex", "globex adopted containers", makeVectorWithAngle(dim, math.Pi/6))
	seedDocument(t, pool, PartitionAWS, "Initech", "initech rebuilt their data lake", makeVectorWithAngle(dim, math.Pi/3))
	seedDocument(t, pool, PartitionAWS, "Umbrella", "umbrella unrelated notes", makeVectorWithAngle(dim, math.Pi/2))
	if _, err := pool.Exec(ctx,
		`INSERT INTO case_studies (content, embedding) VALUES ($1, $2)`,
		"minimal row", pgvector.NewVector(makeVector(dim, 2)),
	); err != nil {
		t.Fatalf("seeding minimal row: %v", err)
	}

	// GCP partition: a single document matching the base vector.
	seedDocument(t, pool, PartitionGCP, "CloudCo", "cloudco moved analytics to bigquery", makeVectorWithAngle(dim, 0))

	t.Run("orders by similarity descending", func(t *testing.T) {
		docs, err := store.Search(ctx, PartitionAWS, pgvector.NewVector(base), 0.0, 10)
		if err != nil {
			t.Fatalf("Search() unexpected error: %v", err)
		}

		want := []string{"Acme Corp", "Globex", "Initech"}
		if diff := cmp.Diff(want, companies(docs)); diff != "" {
			t.Fatalf("Search() companies mismatch (-want +got):\n%s", diff)
		}

		wantSims := []float64{1.0, math.Cos(math.Pi / 6), math.Cos(math.Pi / 3)}
		for i, d := range docs {
			if math.Abs(d.Similarity-wantSims[i]) > 1e-3 {
				t.Errorf("docs[%d].Similarity = %f, want %f", i, d.Similarity, wantSims[i])
			}
			if d.Partition != PartitionAWS {
				t.Errorf("docs[%d].Partition = %q, want %q", i, d.Partition, PartitionAWS)
			}
		}
	})

	t.Run("threshold is strict", func(t *testing.T) {
		// The orthogonal document has similarity exactly 0; a threshold of
		// 0.0 must exclude it.
		docs, err := store.Search(ctx, PartitionAWS, pgvector.NewVector(base), 0.0, 10)
		if err != nil {
			t.Fatalf("Search() unexpected error: %v", err)
		}
		for _, d := range docs {
			if d.CompanyName == "Umbrella" {
				t.Fatalf("Search() returned orthogonal document at threshold 0.0: %+v", d)
			}
		}

		// Lowering the threshold below 0 lets it back in.
		docs, err = store.Search(ctx, PartitionAWS, pgvector.NewVector(base), -1.0, 10)
		if err != nil {
			t.Fatalf("Search() unexpected error: %v", err)
		}
		if len(docs) != 5 {
			t.Fatalf("Search() with threshold -1.0 returned %d documents, want 5", len(docs))
		}
	})

	t.Run("respects limit", func(t *testing.T) {
		docs, err := store.Search(ctx, PartitionAWS, pgvector.NewVector(base), 0.0, 2)
		if err != nil {
			t.Fatalf("Search() unexpected error: %v", err)
		}
		want := []string{"Acme Corp", "Globex"}
		if diff := cmp.Diff(want, companies(docs)); diff != "" {
			t.Fatalf("Search() companies mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("zero limit returns empty result", func(t *testing.T) {
		docs, err := store.Search(ctx, PartitionAWS, pgvector.NewVector(base), 0.0, 0)
		if err != nil {
			t.Fatalf("Search() unexpected error: %v", err)
		}
		if docs == nil || len(docs) != 0 {
			t.Fatalf("Search() with limit 0 = %v, want empty slice", docs)
		}
	})

	t.Run("coalesces null columns", func(t *testing.T) {
		docs, err := store.Search(ctx, PartitionAWS, pgvector.NewVector(makeVector(dim, 2)), 0.0, 1)
		if err != nil {
			t.Fatalf("Search() unexpected error: %v", err)
		}
		if len(docs) != 1 {
			t.Fatalf("Search() returned %d documents, want 1", len(docs))
		}
		got := docs[0]
		if got.Content != "minimal row" {
			t.Errorf("Content = %q, want %q", got.Content, "minimal row")
		}
		if got.CompanyName != "" || got.CaseID != "" || got.Link != "" || got.Industry != "" {
			t.Errorf("null text columns not coalesced to empty strings: %+v", got)
		}
		if len(got.ServicesUsed) != 0 || len(got.Outcomes) != 0 {
			t.Errorf("null array columns not coalesced to empty: %+v", got)
		}
		if got.Year != 0 {
			t.Errorf("Year = %d, want 0", got.Year)
		}
	})

	t.Run("partitions are isolated", func(t *testing.T) {
		docs, err := store.Search(ctx, PartitionGCP, pgvector.NewVector(base), 0.0, 10)
		if err != nil {
			t.Fatalf("Search() unexpected error: %v", err)
		}
		want := []string{"CloudCo"}
		if diff := cmp.Diff(want, companies(docs)); diff != "" {
			t.Fatalf("Search() companies mismatch (-want +got):\n%s", diff)
		}
		if docs[0].Partition != PartitionGCP {
			t.Errorf("Partition = %q, want %q", docs[0].Partition, PartitionGCP)
		}
	})

	t.Run("scans array columns", func(t *testing.T) {
		if _, err := pool.Exec(ctx,
			`INSERT INTO gcp_case_studies (content, company_name, services_used, outcomes, embedding)
			 VALUES ($1, $2, $3, $4, $5)`,
			"dataworks built a lakehouse", "DataWorks",
			[]string{"BigQuery", "Dataflow"}, []string{"30% cost reduction"},
			pgvector.NewVector(makeVector(dim, 1)),
		); err != nil {
			t.Fatalf("seeding array row: %v", err)
		}

		docs, err := store.Search(ctx, PartitionGCP, pgvector.NewVector(makeVector(dim, 1)), 0.5, 1)
		if err != nil {
			t.Fatalf("Search() unexpected error: %v", err)
		}
		if len(docs) != 1 || docs[0].CompanyName != "DataWorks" {
			t.Fatalf("Search() = %v, want the DataWorks row", companies(docs))
		}
		if diff := cmp.Diff([]string{"BigQuery", "Dataflow"}, docs[0].ServicesUsed); diff != "" {
			t.Errorf("ServicesUsed mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"30% cost reduction"}, docs[0].Outcomes); diff != "" {
			t.Errorf("Outcomes mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestExists(t *testing.T) {
	store, _ := setupStoreTest(t)
	ctx := context.Background()

	for _, p := range []Partition{PartitionAWS, PartitionGCP} {
		exists, err := store.Exists(ctx, p)
		if err != nil {
			t.Fatalf("Exists(%s) unexpected error: %v", p, err)
		}
		if !exists {
			t.Errorf("Exists(%s) = false, want true", p)
		}
	}

	exists, err := store.Exists(ctx, Partition("no_such_table"))
	if err != nil {
		t.Fatalf("Exists(no_such_table) unexpected error: %v", err)
	}
	if exists {
		t.Error("Exists(no_such_table) = true, want false")
	}
}
