package mcp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"devlink-mcp-server/internal/errs"
)

func getStringArg(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getIntArg(args map[string]interface{}, key string, fallback int) int {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
		return fallback
	default:
		return fallback
	}
}

// getBoolArg extracts a boolean argument with default.
func getBoolArg(args map[string]interface{}, key string, fallback bool) bool {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return fallback
}

// getOptionalBoolArg distinguishes an absent flag from an explicit false.
func getOptionalBoolArg(args map[string]interface{}, key string) *bool {
	val, ok := args[key]
	if !ok {
		return nil
	}
	b, ok := val.(bool)
	if !ok {
		return nil
	}
	return &b
}

// getStringSliceArg accepts a JSON array or a comma-separated string.
func getStringSliceArg(args map[string]interface{}, key string) []string {
	val, ok := args[key]
	if !ok || val == nil {
		return nil
	}
	var out []string
	switch v := val.(type) {
	case []string:
		out = append(out, v...)
	case []interface{}:
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
	case string:
		out = strings.Split(v, ",")
	default:
		return nil
	}
	cleaned := out[:0]
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

func getIntSliceArg(args map[string]interface{}, key string) ([]int, error) {
	raw := getStringSliceArg(args, key)
	if raw == nil {
		return nil, nil
	}
	out := make([]int, 0, len(raw))
	for _, s := range raw {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errs.New(errs.InvalidArgument, "", "%s: %q is not a number", key, s)
		}
		out = append(out, int(f))
	}
	return out, nil
}

// getDurationMsArg reads a millisecond count; zero or absent yields 0.
func getDurationMsArg(args map[string]interface{}, key string) time.Duration {
	ms := getIntArg(args, key, 0)
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// requireID reads a positive integer id argument.
func requireID(args map[string]interface{}, key string) (int64, error) {
	if _, ok := args[key]; !ok {
		return 0, errs.New(errs.InvalidArgument, "", "%s is required", key)
	}
	id := getIntArg(args, key, -1)
	if id < 1 {
		return 0, errs.New(errs.InvalidArgument, "", "%s must be a positive integer, got %v", key, args[key])
	}
	return int64(id), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	if cut < 0 {
		cut = 0
	}
	// Back off to a rune boundary so multi-byte text stays valid UTF-8.
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// classifyJSError categorizes JavaScript execution errors for better debugging.
func classifyJSError(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()

	if strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "Timeout") {
		return "timeout"
	}

	if strings.Contains(errStr, "SyntaxError") ||
		strings.Contains(errStr, "Unexpected token") ||
		strings.Contains(errStr, "Unexpected identifier") {
		return "syntax"
	}

	if strings.Contains(errStr, "ReferenceError") ||
		strings.Contains(errStr, "TypeError") ||
		strings.Contains(errStr, "is not defined") ||
		strings.Contains(errStr, "is not a function") ||
		strings.Contains(errStr, "Cannot read properties") {
		return "runtime"
	}

	if strings.Contains(errStr, "Promise") ||
		strings.Contains(errStr, "await") {
		return "async"
	}

	if strings.Contains(errStr, "SecurityError") ||
		strings.Contains(errStr, "cross-origin") {
		return "security"
	}

	return "unknown"
}

// formatJSError extracts the JavaScript error from the protocol wrapper.
func formatJSError(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()

	for _, kind := range []string{"ReferenceError:", "TypeError:", "SyntaxError:"} {
		if strings.Contains(errStr, kind) {
			parts := strings.SplitN(errStr, kind, 2)
			return kind + " " + strings.TrimSpace(parts[1])
		}
	}

	if strings.Contains(errStr, "context deadline exceeded") {
		return "Script execution timed out"
	}

	return truncate(errStr, 200)
}
