// Package config builds the immutable run configuration.
//
// Values come from, highest precedence first: command-line flags,
// environment variables, .env files, an optional YAML config file, and
// built-in defaults. Each key accepts an ATTRSYNC_* environment variable
// and, where the original connector read one, its legacy q_* name.
package config
