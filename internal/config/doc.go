// ABOUTME: Package documentation for gateway configuration.
// ABOUTME: YAML with ${ENV} expansion; static inputs for auth and the classifiers.

// Package config loads and validates the opsgate configuration file.
//
// The configuration is YAML with ${VAR_NAME} environment expansion applied
// to the raw text before parsing. It carries the static inputs the gateway
// fixes at startup: the listen address, the verification key and audience
// (or pass-through defaults when no key is configured), the sandbox roots
// and command allowlist for the security classifiers, the database and
// audit paths, and per-tool scope overrides.
package config
