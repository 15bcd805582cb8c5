package telemetry

import "errors"

// Provider failure classes. Raw provider errors never cross this package
// boundary: every failure is normalized to one of these plus a message.
var (
	ErrAuth       = errors.New("telemetry authentication failed")
	ErrPermission = errors.New("telemetry token lacks permission")
	ErrNotFound   = errors.New("telemetry zone not found")
	ErrNetwork    = errors.New("telemetry provider unreachable")
)

// Hint returns the remediation hint for a classified provider error
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return "Check that the Cloudflare API token is valid and not expired."
	case errors.Is(err, ErrPermission):
		return "Grant the API token the Zone Analytics:Read permission."
	case errors.Is(err, ErrNotFound):
		return "Verify the zone ID matches the zone in the Cloudflare dashboard."
	case errors.Is(err, ErrNetwork):
		return "Check outbound network access to api.cloudflare.com."
	default:
		return ""
	}
}

// classifyRule maps a provider response onto a failure class. Rules are
// evaluated top to bottom; the first match wins.
type classifyRule struct {
	match func(status int, code int, msg string) bool
	class error
}

var classifyRules = []classifyRule{
	{func(status, code int, msg string) bool { return status == 401 }, ErrAuth},
	{func(status, code int, msg string) bool { return code == 10000 || code == 9109 || code == 6003 }, ErrAuth},
	{func(status, code int, msg string) bool { return status == 403 }, ErrPermission},
	{func(status, code int, msg string) bool { return code == 9106 || code == 10001 }, ErrPermission},
	{func(status, code int, msg string) bool { return status == 404 || code == 1003 || code == 7003 }, ErrNotFound},
	{func(status, code int, msg string) bool { return status == 0 || status >= 500 }, ErrNetwork},
}

// classify maps an HTTP status plus provider error code onto a failure
// class. Unmatched responses fall back to ErrNetwork so callers always
// see a normalized class.
func classify(status int, code int, msg string) error {
	for _, rule := range classifyRules {
		if rule.match(status, code, msg) {
			return rule.class
		}
	}
	return ErrNetwork
}
