package login

import (
	"sort"
)

// AccessRules maps a capability to the value a user must hold for it. A page
// is visible when any one rule matches.
type AccessRules map[string]bool

// Decision is the outcome of an access check.
type Decision int

const (
	DecisionAllow Decision = iota
	// DecisionRedirectLogin asks the caller to send the visitor to the login
	// page.
	DecisionRedirectLogin
	// DecisionAccessDenied is for authenticated users lacking the capability.
	// Redirecting them to login would loop.
	DecisionAccessDenied
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionRedirectLogin:
		return "redirect_login"
	case DecisionAccessDenied:
		return "access_denied"
	default:
		return "unknown"
	}
}

// AuthorizationGate checks page rules against user capabilities.
type AuthorizationGate struct{}

// CanAccess reports whether user satisfies at least one rule. Empty rules
// allow everyone. A nil user holds no capabilities.
func (AuthorizationGate) CanAccess(user *User, rules AccessRules) bool {
	if len(rules) == 0 {
		return true
	}

	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if user.Authorize(name) == rules[name] {
			return true
		}
	}
	return false
}

// Decide maps the check to what the caller should do.
func (g AuthorizationGate) Decide(user *User, rules AccessRules) Decision {
	if g.CanAccess(user, rules) {
		return DecisionAllow
	}
	if user == nil || !user.Authenticated {
		return DecisionRedirectLogin
	}
	return DecisionAccessDenied
}
