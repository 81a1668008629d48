// Package listingboard is the interaction ledger for job and partner listings.
//
// It records recommendations, favorites and clicks per listing and serves
// them over HTTP and WebSocket. The code is organized into:
//
// - cmd/server: the ledger API server
// - cmd/cli: command-line client for the API
// - cmd/migrate, cmd/seed: database and data tooling
// - internal/ledger: toggle, click, check and watch operations
// - internal/store: statistics storage (memory, postgres, redis)
// - internal/broker: change notification fan-out (local, redis, postgres)
// - internal/handlers, internal/websocket: the HTTP and WebSocket surfaces
// - internal/kernel: dependency wiring and shutdown ordering
package listingboard
