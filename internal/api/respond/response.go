package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RespondError sends an error response
func RespondError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// RespondSuccess sends a success response
func RespondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// maxFriendlyLen bounds how much raw error text reaches a client
const maxFriendlyLen = 150

// friendlyRule rewrites a known technical error fragment into a short
// user-facing sentence. Rules are evaluated top to bottom.
type friendlyRule struct {
	fragment string
	message  string
}

var friendlyRules = []friendlyRule{
	{"ssh configuration", "The SSH key for this site is not configured correctly."},
	{"unable to authenticate", "SSH authentication failed. Check the deployed public key."},
	{"connection refused", "The server refused the connection. Check that SSH is running."},
	{"no route to host", "The server is unreachable."},
	{"timed out", "The operation timed out. The server may be overloaded."},
	{"manually cancelled", "The audit was cancelled."},
	{"audit abandoned", "The audit stalled and was cleaned up."},
}

// FriendlyMessage rewrites a raw error string from the audit engine into
// a short user-facing sentence. Unmatched errors pass through truncated.
func FriendlyMessage(raw string) string {
	if raw == "" {
		return ""
	}

	lower := strings.ToLower(raw)
	for _, rule := range friendlyRules {
		if strings.Contains(lower, rule.fragment) {
			return rule.message
		}
	}

	if len(raw) > maxFriendlyLen {
		return raw[:maxFriendlyLen] + "..."
	}
	return raw
}
