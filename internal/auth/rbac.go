// ABOUTME: Scope-based authorization mapping tool names to required scopes.
// ABOUTME: Fail-closed: unknown tools are denied before any scope comparison.

package auth

// Authorizer decides whether a caller's scopes permit invoking a tool.
// The tool-to-scope table is declared statically at startup and read-only
// afterwards, so no synchronization is needed.
type Authorizer struct {
	required   map[string]map[string]struct{}
	adminScope string
}

// NewAuthorizer creates an authorizer. Callers holding adminScope are
// allowed to invoke any known tool.
func NewAuthorizer(adminScope string) *Authorizer {
	return &Authorizer{
		required:   make(map[string]map[string]struct{}),
		adminScope: adminScope,
	}
}

// Require declares the acceptable scopes for a tool. Holding any one of
// them is sufficient. Called once per tool during startup registration.
func (a *Authorizer) Require(toolName string, scopes ...string) {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	a.required[toolName] = set
}

// IsAuthorized reports whether the caller's scopes permit invoking the
// named tool. Resolution order:
//
//  1. Unknown tool name: deny unconditionally. This runs before any scope
//     comparison, so an unrecognized tool is never rescued by an elevated
//     scope.
//  2. Caller holds the admin scope: allow.
//  3. Otherwise allow iff the intersection of caller scopes and the tool's
//     required scopes is non-empty.
func (a *Authorizer) IsAuthorized(toolName string, callerScopes []string) bool {
	required, known := a.required[toolName]
	if !known {
		return false
	}

	for _, s := range callerScopes {
		if a.adminScope != "" && s == a.adminScope {
			return true
		}
	}

	for _, s := range callerScopes {
		if _, ok := required[s]; ok {
			return true
		}
	}
	return false
}

// Known reports whether a tool has a declared scope set.
func (a *Authorizer) Known(toolName string) bool {
	_, ok := a.required[toolName]
	return ok
}
