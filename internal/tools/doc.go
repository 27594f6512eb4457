// ABOUTME: Package documentation for the built-in domain tools.
// ABOUTME: Validate first, then act; every failure becomes an error result.

// Package tools provides the gateway's built-in tool handlers: filesystem
// access, shell execution, read-only git inspection, and read-only SQL
// queries.
//
// Every handler follows the same shape: decode arguments, pass them through
// the relevant sandbox classifier, and only then perform the operation. The
// classifier call sits immediately before the side effect and is the only
// gate; rejections and execution failures alike come back as error results,
// never as raised errors.
//
// Subprocess-backed tools (shell, git) share a runner that enforces a hard
// wall-clock timeout and kills the child's whole process group on expiry.
package tools
