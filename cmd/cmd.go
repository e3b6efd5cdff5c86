// Package cmd provides CLI commands for docket.
//
// Commands:
//   - serve: HTTP API server with NDJSON streaming
//   - ask: one-shot question from the terminal
//   - mcp: Model Context Protocol server for editor integration
//   - migrate: apply database migrations and exit
//
// Signal handling and graceful shutdown are implemented
// for all long-running commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/docket0/docket/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Execute is the main entry point for the docket CLI application.
func Execute() error {
	// Initialize logger once at entry point. Logs go to stderr: stdout
	// carries command output, and the MCP transport reserves it for
	// JSON-RPC.
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{
		Level: level,
		JSON:  os.Getenv("DOCKET_LOG_JSON") != "",
	}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "ask":
		return runAsk()
	case "mcp":
		return runMCP()
	case "migrate":
		return runMigrate()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runVersion displays version information.
func runVersion() {
	fmt.Printf("docket %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("docket - Conversational search over cloud case studies")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  docket serve [addr]    Start HTTP API server (default: 127.0.0.1:8080)")
	fmt.Println("  docket ask <question>  Ask a question from the terminal")
	fmt.Println("  docket mcp             Start MCP server (for Claude Desktop/Cursor)")
	fmt.Println("  docket migrate         Apply database migrations and exit")
	fmt.Println("  docket version         Show version information")
	fmt.Println("  docket help            Show this help")
	fmt.Println()
	fmt.Println("Ask options:")
	fmt.Println("  --new                  Start a new conversation instead of")
	fmt.Println("                         continuing the last one")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  OPENAI_API_KEY         API key for the default openai provider")
	fmt.Println("  GEMINI_API_KEY         API key when provider is gemini")
	fmt.Println("  DATABASE_URL           PostgreSQL URL (overrides postgres_* keys)")
	fmt.Println("  DEBUG                  Enable debug logging")
	fmt.Println()
	fmt.Println("Configuration is read from ~/.docket/config.yaml; every key can be")
	fmt.Println("overridden with DOCKET_* environment variables.")
}
