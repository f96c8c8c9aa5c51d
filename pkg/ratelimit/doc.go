// Package ratelimit provides a per-client token-bucket registry used
// to throttle callers of the orchestrator's outer surfaces. Buckets
// refill at requests_per_minute/60 tokens per second up to burst_size
// and start full. The registry is process-local; instances do not
// share limiter state.
package ratelimit
