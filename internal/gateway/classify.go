package gateway

import (
	"strings"

	"gemchat/internal/domain"
)

// classify maps an upstream model failure to exactly one ErrorKind by
// inspecting its textual category. The mapping is total: anything that
// matches no known pattern falls through to KindUnknown with the raw detail
// preserved, rather than guessing a category.
//
// Match order matters: credential and quota phrasing often also mentions a
// model name, so those patterns are checked first.
func classify(err error) *domain.Error {
	detail := strings.ToLower(err.Error())

	switch {
	case containsAny(detail, "api key", "api_key", "unauthenticated", "permission denied", "unauthorized"):
		return domain.NewError(domain.KindInvalidCredentials, "upstream_error", err)
	case containsAny(detail, "quota", "resource_exhausted", "rate limit", "too many requests"):
		return domain.NewError(domain.KindQuotaExceeded, "upstream_error", err)
	case containsAny(detail, "image", "inline_data", "unsupported media", "payload size"):
		return domain.NewError(domain.KindAttachmentRejected, "upstream_error", err)
	case containsAny(detail, "model", "overloaded", "unavailable", "deadline", "timeout", "connection refused"):
		return domain.NewError(domain.KindModelUnavailable, "upstream_error", err)
	}
	return domain.NewError(domain.KindUnknown, "upstream_error", err)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
