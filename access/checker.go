// Package access decides whether a set of granted SSO scopes is enough to
// call an ESI endpoint.
package access

// PublicScope is granted to every caller, authenticated or not
const PublicScope = "public"

// Checker reports whether granted covers required
type Checker interface {
	Check(required, granted []string) bool
}

// ScopeChecker allows a call when every required scope is granted. A
// requirement of nothing, or of only the public scope, always passes.
type ScopeChecker struct{}

func (ScopeChecker) Check(required, granted []string) bool {
	have := make(map[string]struct{}, len(granted)+1)
	have[PublicScope] = struct{}{}
	for _, s := range granted {
		have[s] = struct{}{}
	}

	for _, s := range required {
		if _, ok := have[s]; !ok {
			return false
		}
	}
	return true
}

// AllowAll never denies. Useful when the origin should be the only judge.
type AllowAll struct{}

func (AllowAll) Check(_, _ []string) bool { return true }
