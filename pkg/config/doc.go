// Package config loads the server configuration. Precedence is
// defaults, then the YAML file, then CARAVEL_* environment variables.
// An empty redis_addr selects the in-process lock backend.
package config
