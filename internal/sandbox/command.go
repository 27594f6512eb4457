// ABOUTME: Shell command validation: closed allowlist plus dangerous-pattern scan.
// ABOUTME: Patterns are checked on the command, each argument, and the joined line.

package sandbox

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Command validation errors.
var (
	ErrEmptyCommand      = errors.New("command is empty")
	ErrCommandNotAllowed = errors.New("command is not in the allowlist")
	ErrDangerousCommand  = errors.New("command matches a dangerous pattern")
)

// dangerousPattern is a compiled signature for a known-destructive command
// shape, named so rejections can say what was matched.
type dangerousPattern struct {
	name string
	re   *regexp.Regexp
}

// dangerousPatterns are checked independently of the allowlist: an allowed
// base command can still be rejected by its arguments.
var dangerousPatterns = []dangerousPattern{
	{"privilege escalation", regexp.MustCompile(`(?i)\bsudo\s`)},
	{"privilege escalation", regexp.MustCompile(`(?i)\bsu\s+(-|root\b)`)},
	{"recursive root deletion", regexp.MustCompile(`(?i)\brm\s+(-[a-z]*\s+)*-[a-z]*r[a-z]*\s+/(\s|\*|$)`)},
	{"fork bomb", regexp.MustCompile(`:\(\)\s*\{.*\}\s*;\s*:`)},
	{"filesystem format", regexp.MustCompile(`(?i)\bmkfs(\.[a-z0-9]+)?\b`)},
	{"raw device write", regexp.MustCompile(`(?i)\bdd\s+.*\bof=/dev/`)},
	{"world-writable permissions", regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)*0?777\b`)},
	{"world-writable permissions", regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)*([ugoa]*\+w[xrw]*\s+/|a\+rwx)`)},
}

// CommandValidator gates shell execution behind a closed allowlist and a
// fixed set of dangerous patterns. It holds no mutable state after
// construction and is safe for concurrent use.
type CommandValidator struct {
	allowed map[string]struct{}
}

// NewCommandValidator builds a validator from the statically configured
// allow-set of base command names.
func NewCommandValidator(allowedCommands []string) *CommandValidator {
	allowed := make(map[string]struct{}, len(allowedCommands))
	for _, c := range allowedCommands {
		c = strings.TrimSpace(c)
		if c != "" {
			allowed[c] = struct{}{}
		}
	}
	return &CommandValidator{allowed: allowed}
}

// Validate runs both stages and returns the reconstructed command line on
// success.
//
// Stage one requires the leading whitespace-delimited token of command to be
// a member of the allowlist; anything not explicitly allowed is rejected.
// Stage two checks every dangerous pattern against three surfaces: the base
// command string, each argument individually, and the full joined line. The
// joined line catches a pattern split across two arguments; the per-argument
// pass attributes the offending token when it is confined to one.
func (v *CommandValidator) Validate(command string, args []string) (string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", ErrEmptyCommand
	}

	base := fields[0]
	if _, ok := v.allowed[base]; !ok {
		return "", fmt.Errorf("%w: %s", ErrCommandNotAllowed, base)
	}

	if p := matchDangerous(command); p != "" {
		return "", fmt.Errorf("%w: %s in command %q", ErrDangerousCommand, p, command)
	}
	for i, arg := range args {
		if p := matchDangerous(arg); p != "" {
			return "", fmt.Errorf("%w: %s in argument %d %q", ErrDangerousCommand, p, i+1, arg)
		}
	}

	full := command
	if len(args) > 0 {
		full = command + " " + strings.Join(args, " ")
	}
	if p := matchDangerous(full); p != "" {
		return "", fmt.Errorf("%w: %s in command line %q", ErrDangerousCommand, p, full)
	}

	return full, nil
}

// matchDangerous returns the name of the first matching pattern, or "".
func matchDangerous(s string) string {
	for _, p := range dangerousPatterns {
		if p.re.MatchString(s) {
			return p.name
		}
	}
	return ""
}
