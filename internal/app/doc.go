// Package app wires the export service together and manages its lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration (cmd/server) and initialize the logger
//	2. Initialize OpenTelemetry providers
//	3. Connect to the reading store and build the export pipeline
//	   (NewComponents: registry, builder, merger, run store, manager)
//	4. Create the websocket hub and, when enabled, the nightly scheduler
//	5. Set up the chi router and the HTTP server
//
// NewComponents is also used by cmd/export, which runs the same pipeline
// without the HTTP surface.
//
// # Graceful Shutdown
//
// Stop shuts the HTTP server down, stops the scheduler, cancels active runs
// and waits for them to record their final state, disconnects websocket
// clients, closes the run store and the database, and flushes telemetry.
// All of it shares the configured shutdown timeout.
//
// Initialization errors are returned to the caller; the package never calls
// os.Exit.
package app
