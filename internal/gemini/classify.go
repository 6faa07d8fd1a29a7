package gemini

import (
	"context"
	"errors"
	"net"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/thisnaeem/metagen/internal/scheduler"
)

// classifyError maps a provider error onto the scheduler's failure taxonomy.
//
// Gemini rejects an invalid API key with HTTP 400 INVALID_ARGUMENT and an
// "API key not valid" message rather than 401, so the message is inspected
// alongside the status code.
func classifyError(err error) *scheduler.ClassifiedError {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401 || gerr.Code == 403:
			return scheduler.Auth(err)
		case gerr.Code == 429:
			return scheduler.Quota(err)
		case gerr.Code == 400 && isKeyRejection(gerr.Message):
			return scheduler.Auth(err)
		case gerr.Code == 400 || gerr.Code == 404:
			// The request itself was rejected; retrying the same
			// payload cannot help.
			return scheduler.Permanent(err)
		case gerr.Code >= 500:
			return scheduler.Transient(err)
		}
	}

	if isKeyRejection(err.Error()) {
		return scheduler.Auth(err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "quota") ||
		strings.Contains(strings.ToLower(err.Error()), "resource exhausted") {
		return scheduler.Quota(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return scheduler.Transient(err)
	}

	// Unknown failures are retried; the retry budget bounds the cost.
	return scheduler.Transient(err)
}

func isKeyRejection(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "api key not valid") ||
		strings.Contains(lower, "api key expired") ||
		strings.Contains(lower, "permission denied")
}
