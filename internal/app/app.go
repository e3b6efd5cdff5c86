// Package app assembles configuration, storage, the model provider, and
// the query pipeline into one application container.
//
// Every entry point (HTTP server, CLI, MCP server) calls Setup to build
// an App and Close to release it. Components are constructed in
// dependency order and torn down in reverse: background tasks drain
// before the pool they write through closes.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docket0/docket/internal/casestudy"
	"github.com/docket0/docket/internal/config"
	"github.com/docket0/docket/internal/llm"
	"github.com/docket0/docket/internal/pipeline"
	"github.com/docket0/docket/internal/session"
	"github.com/docket0/docket/internal/task"
)

// closeTimeout bounds the background-task drain during shutdown. Tasks
// still running when it expires are abandoned.
const closeTimeout = 30 * time.Second

// App is the core application container.
type App struct {
	// Configuration
	Config *config.Config

	// Core services
	Genkit      *genkit.Genkit
	LLM         *llm.Client
	DBPool      *pgxpool.Pool
	Sessions    *session.Store
	CaseStudies *casestudy.Store
	Pipeline    *pipeline.Pipeline
	Tasks       *task.Registry

	// Teardown for resources acquired during Setup
	otelCleanup func()
}

// Close gracefully shuts down all resources. Background tasks drain
// first so in-flight history writes land before the database pool
// closes; the trace exporter flushes last.
func (a *App) Close() error {
	slog.Info("shutting down application")

	var errs []error

	if a.Tasks != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := a.Tasks.Close(drainCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		slog.Info("database pool closed")
	}

	if a.otelCleanup != nil {
		a.otelCleanup()
	}

	return errors.Join(errs...)
}
