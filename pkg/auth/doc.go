// Package auth authenticates requests to the worker.
//
// Authenticators vote Yes (identity established), No (credentials present
// but rejected) or Abstain (credentials not theirs to judge). A Chain asks
// each in turn and falls back to a default decision when all abstain.
//
// Middleware runs the chain in front of the job routes, applies the
// per-tier rate limit, and scopes the job store to the caller's tenant.
package auth
