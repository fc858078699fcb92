package mcp

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"devlink-mcp-server/internal/errs"
)

func TestGetStringArg(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]interface{}
		key      string
		expected string
	}{
		{
			name:     "string value",
			args:     map[string]interface{}{"key": "value"},
			key:      "key",
			expected: "value",
		},
		{
			name:     "missing key",
			args:     map[string]interface{}{"other": "value"},
			key:      "key",
			expected: "",
		},
		{
			name:     "int value converted to string",
			args:     map[string]interface{}{"key": 123},
			key:      "key",
			expected: "123",
		},
		{
			name:     "nil map",
			args:     nil,
			key:      "key",
			expected: "",
		},
		{
			name:     "explicit nil",
			args:     map[string]interface{}{"key": nil},
			key:      "key",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getStringArg(tt.args, tt.key)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestGetIntArg(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]interface{}
		key      string
		fallback int
		expected int
	}{
		{
			name:     "int value",
			args:     map[string]interface{}{"key": 42},
			key:      "key",
			fallback: 0,
			expected: 42,
		},
		{
			name:     "int64 value",
			args:     map[string]interface{}{"key": int64(100)},
			key:      "key",
			fallback: 0,
			expected: 100,
		},
		{
			name:     "float64 value",
			args:     map[string]interface{}{"key": float64(3.14)},
			key:      "key",
			fallback: 0,
			expected: 3,
		},
		{
			name:     "numeric string",
			args:     map[string]interface{}{"key": " 7 "},
			key:      "key",
			fallback: 0,
			expected: 7,
		},
		{
			name:     "missing key uses fallback",
			args:     map[string]interface{}{"other": 123},
			key:      "key",
			fallback: 99,
			expected: 99,
		},
		{
			name:     "non-numeric string uses fallback",
			args:     map[string]interface{}{"key": "not a number"},
			key:      "key",
			fallback: 50,
			expected: 50,
		},
		{
			name:     "nil map uses fallback",
			args:     nil,
			key:      "key",
			fallback: 25,
			expected: 25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getIntArg(tt.args, tt.key, tt.fallback)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestGetBoolArg(t *testing.T) {
	tests := []struct {
		name     string
		args     map[string]interface{}
		key      string
		fallback bool
		expected bool
	}{
		{
			name:     "true value",
			args:     map[string]interface{}{"key": true},
			key:      "key",
			fallback: false,
			expected: true,
		},
		{
			name:     "false value",
			args:     map[string]interface{}{"key": false},
			key:      "key",
			fallback: true,
			expected: false,
		},
		{
			name:     "missing key uses fallback",
			args:     map[string]interface{}{"other": true},
			key:      "key",
			fallback: true,
			expected: true,
		},
		{
			name:     "non-bool value uses fallback",
			args:     map[string]interface{}{"key": "true"},
			key:      "key",
			fallback: false,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getBoolArg(tt.args, tt.key, tt.fallback)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestGetOptionalBoolArg(t *testing.T) {
	if got := getOptionalBoolArg(map[string]interface{}{}, "headless"); got != nil {
		t.Errorf("expected nil for absent flag, got %v", *got)
	}
	got := getOptionalBoolArg(map[string]interface{}{"headless": false}, "headless")
	if got == nil || *got {
		t.Errorf("expected explicit false, got %v", got)
	}
}

func TestGetStringSliceArg(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected []string
	}{
		{"json array", []interface{}{"error", " warning "}, []string{"error", "warning"}},
		{"string slice", []string{"log"}, []string{"log"}},
		{"comma separated", "xhr, fetch,,", []string{"xhr", "fetch"}},
		{"empty string", "", nil},
		{"unsupported type", 12, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getStringSliceArg(map[string]interface{}{"key": tt.value}, "key")
			if strings.Join(result, "|") != strings.Join(tt.expected, "|") || len(result) != len(tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestGetIntSliceArg(t *testing.T) {
	ports, err := getIntSliceArg(map[string]interface{}{"ports": []interface{}{float64(9222), "9229"}}, "ports")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ports) != 2 || ports[0] != 9222 || ports[1] != 9229 {
		t.Errorf("unexpected ports %v", ports)
	}

	_, err = getIntSliceArg(map[string]interface{}{"ports": "9222,abc"}, "ports")
	if !errs.Is(err, errs.InvalidArgument) {
		t.Errorf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestGetDurationMsArg(t *testing.T) {
	if got := getDurationMsArg(map[string]interface{}{"timeout_ms": float64(1500)}, "timeout_ms"); got != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", got)
	}
	if got := getDurationMsArg(map[string]interface{}{"timeout_ms": -1}, "timeout_ms"); got != 0 {
		t.Errorf("expected 0 for negative, got %v", got)
	}
}

func TestRequireID(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]interface{}
		want    int64
		wantErr string
	}{
		{"json number", map[string]interface{}{"msgid": float64(3)}, 3, ""},
		{"missing", map[string]interface{}{}, 0, "msgid is required"},
		{"zero", map[string]interface{}{"msgid": 0}, 0, "msgid must be a positive integer"},
		{"garbage", map[string]interface{}{"msgid": "abc"}, 0, "msgid must be a positive integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := requireID(tt.args, "msgid")
			if tt.wantErr == "" {
				if err != nil || got != tt.want {
					t.Fatalf("expected %d, got %d (%v)", tt.want, got, err)
				}
				return
			}
			if !errs.Is(err, errs.InvalidArgument) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected INVALID_ARGUMENT containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected unchanged, got %q", got)
	}
	if got := truncate("abcdefghij", 8); got != "abcde..." {
		t.Errorf("expected abcde..., got %q", got)
	}
}

func TestTruncateMultiByte(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		max      int
		expected string
	}{
		{"cut inside a rune", "日本語テキスト", 8, "日..."},
		{"cut on a boundary", "日本語テキスト", 9, "日本..."},
		{"accented text", "héllo wörld", 5, "h..."},
		{"limit below ellipsis", "日本語", 2, "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.max)
			if !utf8.ValidString(got) {
				t.Fatalf("truncate produced invalid UTF-8: %q", got)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestClassifyJSError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "timeout error",
			err:      errors.New("context deadline exceeded"),
			expected: "timeout",
		},
		{
			name:     "syntax error",
			err:      errors.New("SyntaxError: Unexpected token"),
			expected: "syntax",
		},
		{
			name:     "reference error",
			err:      errors.New("ReferenceError: foo is not defined"),
			expected: "runtime",
		},
		{
			name:     "is not a function",
			err:      errors.New("foo is not a function"),
			expected: "runtime",
		},
		{
			name:     "cannot read properties",
			err:      errors.New("Cannot read properties of undefined"),
			expected: "runtime",
		},
		{
			name:     "promise error",
			err:      errors.New("Promise rejection"),
			expected: "async",
		},
		{
			name:     "security error",
			err:      errors.New("SecurityError: blocked by CSP"),
			expected: "security",
		},
		{
			name:     "unknown error",
			err:      errors.New("some random error"),
			expected: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifyJSError(tt.err)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestFormatJSError(t *testing.T) {
	long := strings.Repeat("x", 250)

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "reference error",
			err:      errors.New("runtime error: ReferenceError: foo is not defined"),
			expected: "ReferenceError: foo is not defined",
		},
		{
			name:     "type error",
			err:      errors.New("CDP: TypeError: x is not a function"),
			expected: "TypeError: x is not a function",
		},
		{
			name:     "timeout",
			err:      errors.New("context deadline exceeded"),
			expected: "Script execution timed out",
		},
		{
			name:     "short error unchanged",
			err:      errors.New("short error"),
			expected: "short error",
		},
		{
			name:     "long error truncated",
			err:      errors.New(long),
			expected: long[:197] + "...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatJSError(tt.err)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}
