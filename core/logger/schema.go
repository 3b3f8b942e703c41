package logger

import "strings"

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

var levelAliases = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

// Outcome values; anything else is dropped.
var knownOutcome = map[string]struct{}{
	"ok":           {},
	"fail":         {},
	"rejected":     {},
	"cancelled":    {},
	"rate_limited": {},
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := levelAliases[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

// normalizeStatus lowercases status and folds "error" into "fail".
func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "error" {
		return "fail"
	}
	return status
}

func normalizeOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	_, ok := knownOutcome[outcome]
	return outcome, ok
}

// defaultKeyOrder puts correlation first, then intake fields, then transport
// and error details. Keys not listed follow in alphabetical order.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status", "outcome",
	"rid", "rid_full", "update_id", "user_id", "chat_id", "handler", "cb_key",
	"kind", "state", "next_state", "replies", "language", "course",
	"submission_id", "sink", "driver", "path",
	"action", "endpoint", "mode", "listen", "public_url", "timeout_ms",
	"db", "host", "port",
	"attempt", "attempts", "delay_ms", "backoff_ms", "duration_ms", "elapsed_ms",
	"reason", "err", "err_kind", "err_code",
}
