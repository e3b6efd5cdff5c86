// Package api provides the HTTP server for the docket query service.
//
// # Architecture
//
// The server uses Go 1.22+ routing with a layered middleware stack:
//
//	Recovery → Logging → CORS → RateLimit → Routes
//
// Health probes (/ and /health) bypass the middleware stack via a
// top-level mux, ensuring they remain fast and unthrottled.
//
// # Endpoints
//
// Health probes (no middleware):
//   - GET /        — service banner with status and timestamp
//   - GET /health  — returns {"status":"healthy","timestamp":...}
//
// Query:
//   - POST /query — streams NDJSON events while a query is processed:
//     processing_step lines for progress, then exactly one terminal
//     complete or error line
//
// # Streaming contract
//
// POST /query always answers 200 with Content-Type application/x-ndjson,
// even for invalid input; validation failures surface as a single error
// event on the stream so clients only ever parse one wire format.
package api
