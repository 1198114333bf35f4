package auth

import (
	"slices"
	"strings"
)

// scopeSet trims, drops blank and case-insensitive duplicate scopes and sorts
// the rest so equal configurations request equal tokens.
func scopeSet(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" || slices.ContainsFunc(out, func(existing string) bool {
			return strings.EqualFold(existing, scope)
		}) {
			continue
		}
		out = append(out, scope)
	}
	slices.Sort(out)
	return out
}

// tokenErrorBody prefers the OAuth error code over the raw response body.
func tokenErrorBody(code string, body []byte) string {
	if code = strings.TrimSpace(code); code != "" {
		return code
	}
	return strings.TrimSpace(string(body))
}
