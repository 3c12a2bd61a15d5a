// Package api defines the wire types shared by the dispatcher, the
// executor host and the tool server.
//
// The central type is [ExecutionResult], a tagged union that is either a
// completed process (stdout, stderr, exit code) or a failure indicator
// (timeout or internal error). A [Job] is the executor host's record of one
// execution and doubles as the runsync response body.
//
// Core types:
//   - [JobRequest]: job envelope {"input": {"code": ...}}
//   - [ExecutionResult]: tagged execution outcome
//   - [Job]: job record with status and timings
//   - [HealthResponse]: endpoint health snapshot
//   - [APIError]: structured HTTP error with type and message
//
// The package performs no I/O.
package api
