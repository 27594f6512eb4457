// ABOUTME: Result model and handler contract shared by every gateway tool.
// ABOUTME: Failures travel as data; nothing above the handler boundary sees a panic.

package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Content is a single item in a tool result. Only text content is produced
// by the gateway's built-in tools.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Result is the uniform envelope returned by every tool invocation.
// When IsError is true, the first content item carries the human-readable
// failure reason.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Reason returns the failure reason of an error result, or "" for success
// results and error results with no content.
func (r *Result) Reason() string {
	if r == nil || !r.IsError || len(r.Content) == 0 {
		return ""
	}
	return r.Content[0].Text
}

// Text returns a successful result with a single text item.
func Text(text string) *Result {
	return &Result{
		Content: []Content{{Type: "text", Text: text}},
	}
}

// Textf returns a successful result with a formatted text item.
func Textf(format string, args ...any) *Result {
	return Text(fmt.Sprintf(format, args...))
}

// Errorf returns an error result whose first item is the failure reason.
func Errorf(format string, args ...any) *Result {
	return &Result{
		Content: []Content{{Type: "text", Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// Definition describes a registered tool for discovery via tools/list.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Handler executes a tool. It receives the raw arguments object from the
// tools/call params and reports every failure through the result, never by
// returning an error or panicking. The registry converts a handler panic
// into an error result as a last line of defense.
type Handler func(ctx context.Context, args json.RawMessage) *Result
