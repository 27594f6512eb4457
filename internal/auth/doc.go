// ABOUTME: Package documentation for authentication and authorization.
// ABOUTME: Describes the verifier strategies and the fail-closed RBAC table.

// Package auth provides token verification, the Principal identity model,
// and scope-based authorization for the gateway.
//
// # Authentication
//
// Verification is a strategy selected once at startup. With a verification
// key configured, KeyVerifier checks asymmetric JWT signatures (public key
// only; the service never needs a private key except to self-issue tokens
// via Issuer, a separate optional capability). Without a key,
// PassthroughVerifier accepts every request with the configured default
// scopes. Both strategies sit behind the same Verifier interface, so there
// is a single authentication code path rather than per-request branching.
//
// # Authorization
//
// Authorizer holds a static table of tool name to acceptable scopes.
// Unknown tools are denied before any scope comparison (fail-closed), the
// admin scope short-circuits to allow, and otherwise a non-empty
// intersection between caller and required scopes grants access.
package auth
