// ABOUTME: Package documentation for the security classifiers.
// ABOUTME: States the pure-function contract and the heuristic-not-sandbox caveat.

// Package sandbox holds the three per-domain security classifiers that gate
// side-effecting tool operations: the filesystem path validator, the shell
// command validator, and the SQL read-only classifier.
//
// All three are pure functions of their input and static configuration.
// They hold no mutable state, perform no side effects beyond reading the
// filesystem for symlink resolution, and are safe for unsynchronized
// concurrent use.
//
// These checks are heuristics, not an isolation boundary. They decide
// whether the gateway will perform an operation at all; they do not replace
// OS-level process or user isolation, which is explicitly out of scope.
package sandbox
