// Package config loads and validates the TOML configuration for the studio
// store and its maintenance CLI. Paths are tilde-expanded and normalized to
// absolute form during Load so downstream code never handles relative or
// user-prefixed paths.
package config
