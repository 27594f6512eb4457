// ABOUTME: Package documentation for the tool registry.
// ABOUTME: Describes the catalog's concurrency model and invocation contract.

// Package registry provides the tool catalog for the gateway.
//
// The registry maps tool names to {definition, handler} pairs. It is the
// single source of truth for which tools exist: the dispatcher, the
// authorizer, and tools/list discovery all read from the same map, so the
// tool set can never diverge between catalogs.
//
// # Lifecycle
//
// Tools are registered during process startup and live for the process
// lifetime; there is no deletion path. Re-registering a name overwrites the
// previous handler with a warning.
//
// # Invocation
//
// Invoke never raises: an unknown name and a panicking handler both come
// back as error results. Blocking handlers run on the calling goroutine,
// which under net/http is already one goroutine per request.
package registry
