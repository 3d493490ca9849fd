// Package config loads engine configuration from VIGIL_-prefixed
// environment variables, with an optional YAML file and per-component
// worker-pool sizing.
package config
