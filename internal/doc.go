// Package internal holds the Punktual server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem responses, and routing
// - calendar: link, ICS and embed generation (no I/O)
// - domain: business logic for events, short links, users and accounts
// - storage: Postgres repositories and migrations
// - jobs: River workers and schedules
// - auth, audit, cms, config, email, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
