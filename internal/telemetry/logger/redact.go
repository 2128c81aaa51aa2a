package logger

import (
	"log/slog"
	"strings"
)

// sensitiveKeyPatterns flags log attribute keys whose value should
// never reach stdout/stderr verbatim, regardless of which command
// logged them.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"credential",
	"auth",
}

const redactedValue = "***REDACTED***"

// redactSensitive is a slog.HandlerOptions.ReplaceAttr hook: any
// string-valued attribute whose key matches a sensitive pattern is
// replaced with redactedValue, recursively through groups.
func redactSensitive(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		if IsSensitiveKey(a.Key) && a.Value.String() != "" {
			return slog.String(a.Key, redactedValue)
		}
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}

	return a
}

// IsSensitiveKey reports whether key looks like it names a secret.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
