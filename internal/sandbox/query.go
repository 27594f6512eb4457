// ABOUTME: Read-only SQL classification for the database query tool.
// ABOUTME: Prefix verb check plus banned write-verb substring scan; both must hold.

package sandbox

import "strings"

// readOnlyPrefixes are the verbs a read-only statement may start with.
var readOnlyPrefixes = []string{"SELECT", "SHOW", "DESCRIBE", "EXPLAIN", "WITH"}

// writeKeywords reject a query when found anywhere in the string. The
// substring scan is deliberate: a read prefix alone would admit a stacked
// destructive statement after the first one.
var writeKeywords = []string{"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER", "TRUNCATE"}

// IsReadOnlyQuery reports whether sql is classified as read-only: the
// trimmed, case-normalized query must start with a read-only verb and must
// not contain any write keyword anywhere.
//
// This is a conservative heuristic, not a SQL parser. Identifiers containing
// a banned keyword as a substring are over-rejected, and write keywords
// inside string literals of an otherwise read-only query are rejected too.
// Both are accepted trade-offs of keeping the gate simple and fail-closed.
func IsReadOnlyQuery(sql string) bool {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	if upper == "" {
		return false
	}

	if !hasReadOnlyPrefix(upper) {
		return false
	}

	for _, kw := range writeKeywords {
		if strings.Contains(upper, kw) {
			return false
		}
	}
	return true
}

// hasReadOnlyPrefix checks that the statement's primary verb is in the
// read-only set, requiring a non-identifier character after the verb so
// "SELECTION" does not pass as "SELECT".
func hasReadOnlyPrefix(upper string) bool {
	for _, verb := range readOnlyPrefixes {
		if !strings.HasPrefix(upper, verb) {
			continue
		}
		if len(upper) == len(verb) {
			return true
		}
		next := upper[len(verb)]
		if next == ' ' || next == '\t' || next == '\n' || next == '(' || next == '*' {
			return true
		}
	}
	return false
}
