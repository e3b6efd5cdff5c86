// Package session tracks conversations across requests.
//
// Each conversation is keyed by a UUID and persisted to the
// conversation_history table as alternating user/assistant rows. Instead of
// replaying full transcripts, the pipeline carries a rolling summary:
// every stored row snapshots the summary as of that turn, and the most
// recent row holds the current one. [Summarizer] folds each finished
// exchange into the summary with an LLM call.
//
// Session lookups never fail a request. A malformed ID, an unknown ID,
// or a database error all resolve to a fresh session, and a missing
// summary degrades to "".
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FirstTime is the sentinel session ID clients send to start a new
// conversation.
const FirstTime = "first_time"

// queryTimeout bounds every history query. Expiry counts as a storage
// error and takes the same degraded path.
const queryTimeout = 5 * time.Second

// Role labels one side of a stored conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	sessionExistsSQL = `SELECT EXISTS (SELECT FROM conversation_history WHERE session_id = $1)`

	// The id tiebreak keeps the ordering stable when both rows of a turn
	// land in the same transaction timestamp.
	latestSummarySQL = `SELECT COALESCE(conv_summary, '')
	  FROM conversation_history
	 WHERE session_id = $1
	 ORDER BY created_at DESC, id DESC
	 LIMIT 1`

	insertTurnSQL = `INSERT INTO conversation_history (role, content, conv_summary, session_id)
	VALUES ($1, $2, $3, $4)`

	// Mirrors migration 000001. Migrations are the operational path;
	// this is the first-request safety net when they have not run.
	ensureSchemaSQL = `CREATE TABLE IF NOT EXISTS conversation_history (
	    id SERIAL PRIMARY KEY,
	    role VARCHAR(10) NOT NULL,
	    content TEXT NOT NULL,
	    conv_summary TEXT,
	    session_id UUID NOT NULL,
	    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
)

// Store persists conversation history in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a session Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Resolve maps a requested session ID to the UUID the conversation runs
// under. [FirstTime], malformed IDs, IDs with no stored history, and
// database errors all resolve to a fresh session; only an ID with
// existing history is reused.
func (s *Store) Resolve(ctx context.Context, requested string) uuid.UUID {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if requested == FirstTime {
		s.ensureSchema(ctx)
		id := uuid.New()
		s.logger.Info("created new session", "session_id", id)
		return id
	}

	id, err := uuid.Parse(requested)
	if err != nil {
		fresh := uuid.New()
		s.logger.Warn("invalid session ID format, creating new session",
			"requested", requested, "session_id", fresh)
		return fresh
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, sessionExistsSQL, id).Scan(&exists); err != nil {
		fresh := uuid.New()
		s.logger.Error("checking session, creating new session",
			"error", err, "session_id", fresh)
		return fresh
	}
	if !exists {
		fresh := uuid.New()
		s.logger.Info("session not found, creating new session",
			"requested", id, "session_id", fresh)
		return fresh
	}

	s.logger.Info("using existing session", "session_id", id)
	return id
}

// ensureSchema idempotently creates the history table. Errors are logged
// and swallowed: resolution must never fail the request.
func (s *Store) ensureSchema(ctx context.Context) {
	if _, err := s.pool.Exec(ctx, ensureSchemaSQL); err != nil {
		s.logger.Error("ensuring conversation history table", "error", err)
	}
}

// LatestSummary returns the current conversation summary for the session,
// or "" when the session has no history or the lookup fails.
func (s *Store) LatestSummary(ctx context.Context, id uuid.UUID) string {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var summary string
	err := s.pool.QueryRow(ctx, latestSummarySQL, id).Scan(&summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return ""
	}
	if err != nil {
		s.logger.Error("fetching conversation summary", "error", err, "session_id", id)
		return ""
	}
	return summary
}

// AppendTurn persists one finished exchange as a user row followed by an
// assistant row. Both rows carry the updated summary so the most recent row
// always reflects the conversation state after this turn. The two inserts
// commit atomically.
func (s *Store) AppendTurn(ctx context.Context, id uuid.UUID, userQuery, answer, summary string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	if _, err := tx.Exec(ctx, insertTurnSQL, RoleUser, userQuery, summary, id); err != nil {
		return fmt.Errorf("storing user message: %w", err)
	}
	if _, err := tx.Exec(ctx, insertTurnSQL, RoleAssistant, answer, summary, id); err != nil {
		return fmt.Errorf("storing assistant message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing conversation turn: %w", err)
	}

	s.logger.Info("stored conversation turn", "session_id", id)
	return nil
}
