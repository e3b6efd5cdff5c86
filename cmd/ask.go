package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"

	"github.com/docket0/docket/internal/app"
	"github.com/docket0/docket/internal/config"
	"github.com/docket0/docket/internal/pipeline"
	"github.com/docket0/docket/internal/session"
)

// runAsk answers a single question from the command line. Consecutive
// invocations continue the conversation recorded in
// ~/.docket/current_session unless --new is given.
func runAsk() error {
	askFlags := flag.NewFlagSet("ask", flag.ContinueOnError)
	askFlags.SetOutput(os.Stderr)
	startNew := askFlags.Bool("new", false, "Start a new conversation instead of continuing the last one")

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	if err := askFlags.Parse(args); err != nil {
		return fmt.Errorf("parsing ask flags: %w", err)
	}

	question := strings.TrimSpace(strings.Join(askFlags.Args(), " "))
	if question == "" {
		return fmt.Errorf("usage: docket ask [--new] <question>")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Warn("shutdown error", "error", closeErr)
		}
	}()

	requested := session.FirstTime
	if *startNew {
		// Forget the old conversation now, so it stays forgotten even
		// if this ask never completes.
		if clearErr := session.ClearCurrentSessionID(); clearErr != nil {
			slog.Warn("clearing session state", "error", clearErr)
		}
	} else {
		if id, ok, stateErr := session.LoadCurrentSessionID(); stateErr != nil {
			slog.Warn("ignoring unreadable session state", "error", stateErr)
		} else if ok {
			requested = id.String()
		}
	}

	var complete *pipeline.CompleteEvent
	var failure *pipeline.ErrorEvent

	// Progress goes to stderr so piping stdout captures only the answer.
	sink := func(line []byte) error {
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(line, &envelope); err != nil {
			return fmt.Errorf("decoding event: %w", err)
		}

		switch envelope.Type {
		case pipeline.EventProcessingStep:
			var step pipeline.ProcessingStepEvent
			if err := json.Unmarshal(line, &step); err == nil {
				fmt.Fprintf(os.Stderr, "· %s\n", step.Message)
			}
		case pipeline.EventComplete:
			var ev pipeline.CompleteEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				return fmt.Errorf("decoding complete event: %w", err)
			}
			complete = &ev
		case pipeline.EventError:
			var ev pipeline.ErrorEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				return fmt.Errorf("decoding error event: %w", err)
			}
			failure = &ev
		}
		return nil
	}

	a.Pipeline.Run(ctx, question, requested, sink)

	if failure != nil {
		if failure.Detail != nil {
			return fmt.Errorf("%s: %v", failure.Message, failure.Detail)
		}
		return fmt.Errorf("%s", failure.Message)
	}
	if complete == nil {
		return fmt.Errorf("no answer received")
	}

	printAnswer(complete)

	if id, parseErr := uuid.Parse(complete.SessionID); parseErr == nil {
		if saveErr := session.SaveCurrentSessionID(id); saveErr != nil {
			slog.Warn("saving session state", "error", saveErr)
		}
	}

	return nil
}

// printAnswer renders the answer markdown for the terminal and lists the
// citations beneath it. Falls back to plain text when the renderer
// cannot be built.
func printAnswer(ev *pipeline.CompleteEvent) {
	out := ev.Response

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Detect light/dark terminal
		glamour.WithWordWrap(100),
	)
	if err == nil {
		if rendered, rerr := renderer.Render(ev.Response); rerr == nil {
			out = strings.TrimSuffix(rendered, "\n")
		}
	}
	fmt.Println(out)

	if len(ev.CitationArray) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, c := range ev.CitationArray {
			fmt.Printf("  - %s: %s\n", c.CompanyName, c.Link)
		}
	}
}
