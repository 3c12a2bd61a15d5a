// Package storage holds what the job store adapters share: sentinel
// errors, the tenant carried in the request context and the status
// transition check applied on every update.
//
// The adapters (memory, postgres) implement worker.JobStore.
package storage
