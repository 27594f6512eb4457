// ABOUTME: Audit log entity and store interface for tool invocation records.
// ABOUTME: Records who invoked which tool with what outcome for attribution.

package store

import (
	"context"
	"time"
)

// Invocation outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Invocation is a single audit record for a tools/call that reached the
// registry. Both successful and failed calls are recorded.
type Invocation struct {
	ID        string    // UUID v4
	Subject   string    // principal subject that made the call
	Tool      string    // tool name as requested
	Outcome   string    // OutcomeOK or OutcomeError
	Reason    string    // failure reason for error outcomes, "" otherwise
	CreatedAt time.Time // when the call completed
}

// InvocationFilter specifies filtering options for listing audit records.
type InvocationFilter struct {
	Subject *string // filter by principal subject
	Tool    *string // filter by tool name
	Outcome *string // filter by outcome
	Limit   int     // max results (default 100, max 1000)
}

// AuditStore persists and queries invocation records.
type AuditStore interface {
	AppendInvocation(ctx context.Context, inv *Invocation) error
	ListInvocations(ctx context.Context, filter InvocationFilter) ([]*Invocation, error)
	Close() error
}
