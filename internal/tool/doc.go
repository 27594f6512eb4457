// ABOUTME: Package documentation for the tool result model.
// ABOUTME: Explains the never-throw contract between handlers and the registry.

// Package tool defines the result envelope and handler contract for gateway
// tools.
//
// Every tool returns a *Result. A Result with IsError=false wraps the
// successful output; a Result with IsError=true carries a human-readable
// failure reason as its first content item. Handlers never signal failure
// any other way: validation rejections, I/O errors, and subprocess failures
// all become error results at the point of detection.
//
// This keeps the layer above simple. The dispatcher maps success results to
// JSON-RPC results and error results to application-level error responses
// without ever needing to unwind a raised error.
package tool
