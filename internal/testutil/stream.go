package testutil

import (
	"bufio"
	"encoding/json"
	"strings"
	"testing"
)

// StreamEvent represents one parsed NDJSON stream event.
type StreamEvent struct {
	Type string         // "type" field of the event object
	Data map[string]any // full decoded object, including "type"
}

// ParseNDJSONEvents parses an application/x-ndjson body into structured events.
//
// Every non-empty line must be a self-contained JSON object carrying a
// string "type" field; anything else fails the test. This matches the
// query stream contract: one event per line, terminated by \n.
//
// Example:
//
//	events := testutil.ParseNDJSONEvents(t, rec.Body.String())
//	require.Equal(t, "complete", events[len(events)-1].Type)
func ParseNDJSONEvents(t *testing.T, body string) []StreamEvent {
	t.Helper()

	var events []StreamEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var data map[string]any
		if err := json.Unmarshal([]byte(line), &data); err != nil {
			t.Fatalf("NDJSON parse error at line %d: %v (line: %q)", lineNum, err, truncateForLog(line))
		}

		typ, ok := data["type"].(string)
		if !ok {
			t.Fatalf("NDJSON event at line %d has no string \"type\" field: %q", lineNum, truncateForLog(line))
		}

		events = append(events, StreamEvent{Type: typ, Data: data})
	}

	if err := scanner.Err(); err != nil {
		t.Fatalf("NDJSON scan error: %v", err)
	}

	return events
}

// FindEvent finds the first event of a given type in the parsed events.
// Returns nil if not found.
func FindEvent(events []StreamEvent, eventType string) *StreamEvent {
	for i := range events {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}

// FindAllEvents finds all events of a given type.
func FindAllEvents(events []StreamEvent, eventType string) []StreamEvent {
	var found []StreamEvent
	for _, e := range events {
		if e.Type == eventType {
			found = append(found, e)
		}
	}
	return found
}

// truncateForLog keeps failure messages readable for long stream lines.
func truncateForLog(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
