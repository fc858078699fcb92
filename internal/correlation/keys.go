// Package correlation extracts request/trace identifiers from network headers
// and console text so a request can be linked to the log lines that mention it.
package correlation

import (
	"regexp"
	"sort"
	"strings"
)

// Key types.
const (
	RequestID     = "request_id"
	CorrelationID = "correlation_id"
	TraceID       = "trace_id"
)

// Key is a normalized correlation key.
type Key struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (k Key) String() string { return k.Type + ":" + k.Value }

var (
	traceparentPattern = regexp.MustCompile(`(?i)^\s*([0-9a-f]{2})-([0-9a-f]{32})-([0-9a-f]{16})-([0-9a-f]{2})\s*$`)
	cloudTracePattern  = regexp.MustCompile(`(?i)^\s*([0-9a-f]{32})(?:/[0-9]+)?(?:;o=\d+)?\s*$`)
	b3SinglePattern    = regexp.MustCompile(`(?i)^\s*([0-9a-f]{16,32})-[0-9a-f]{16}(?:-[01d](?:-[0-9a-f]{16})?)?\s*$`)
)

// headerKinds maps a lowercased header name to the key it yields. Entries with
// a parse func carry a compound value the trace id must be cut out of.
var headerKinds = map[string]struct {
	typ   string
	parse func(string) string
}{
	"x-request-id":          {RequestID, nil},
	"request-id":            {RequestID, nil},
	"request_id":            {RequestID, nil},
	"x-correlation-id":      {CorrelationID, nil},
	"correlation-id":        {CorrelationID, nil},
	"correlation_id":        {CorrelationID, nil},
	"x-correlationid":       {CorrelationID, nil},
	"x-trace-id":            {TraceID, nil},
	"trace-id":              {TraceID, nil},
	"trace_id":              {TraceID, nil},
	"x-b3-traceid":          {TraceID, nil},
	"traceparent":           {TraceID, traceIDFromTraceparent},
	"x-cloud-trace-context": {TraceID, traceIDFromCloudTrace},
	"b3":                    {TraceID, traceIDFromB3Single},
}

// messagePatterns are tried against lowercased console text in order.
var messagePatterns = []struct {
	typ   string
	re    *regexp.Regexp
	parse func(string) string
}{
	{RequestID, regexp.MustCompile(`\b(?:x-request-id|request[_-]?id)\b["']?\s*(?:=|:)\s*["']?([a-z0-9][a-z0-9._:/\-]{5,127})`), nil},
	{CorrelationID, regexp.MustCompile(`\b(?:x-correlation-id|correlation[_-]?id)\b["']?\s*(?:=|:)\s*["']?([a-z0-9][a-z0-9._:/\-]{5,127})`), nil},
	{TraceID, regexp.MustCompile(`\b(?:x-trace-id|trace[_-]?id|x-b3-traceid)\b["']?\s*(?:=|:)\s*["']?([0-9a-f]{16,64})`), nil},
	{TraceID, regexp.MustCompile(`\btraceparent\b["']?\s*(?:=|:)\s*["']?([0-9a-f]{2}-[0-9a-f]{32}-[0-9a-f]{16}-[0-9a-f]{2})`), traceIDFromTraceparent},
	{TraceID, regexp.MustCompile(`\bx-cloud-trace-context\b["']?\s*(?:=|:)\s*["']?([0-9a-f]{32})(?:/[0-9]+)?`), traceIDFromCloudTrace},
}

// FromHeader extracts keys from one header pair.
func FromHeader(name, value string) []Key {
	kind, ok := headerKinds[strings.ToLower(strings.TrimSpace(name))]
	v := normalizeValue(value)
	if !ok || v == "" {
		return nil
	}
	if kind.parse != nil {
		v = kind.parse(v)
		if v == "" {
			return nil
		}
	}
	return []Key{{Type: kind.typ, Value: v}}
}

// FromHeaders extracts keys from a header map in name order.
func FromHeaders(headers map[string]string) []Key {
	if len(headers) == 0 {
		return nil
	}
	names := make([]string, 0, len(headers))
	for n := range headers {
		names = append(names, n)
	}
	sort.Strings(names)

	var keys []Key
	for _, n := range names {
		keys = append(keys, FromHeader(n, headers[n])...)
	}
	return dedupe(keys)
}

// FromMessage extracts keys mentioned in free-form log text.
func FromMessage(message string) []Key {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return nil
	}
	var keys []Key
	for _, p := range messagePatterns {
		for _, match := range p.re.FindAllStringSubmatch(msg, -1) {
			v := normalizeValue(match[1])
			if p.parse != nil {
				v = p.parse(v)
			}
			if v != "" {
				keys = append(keys, Key{Type: p.typ, Value: v})
			}
		}
	}
	return dedupe(keys)
}

func traceIDFromTraceparent(value string) string {
	if m := traceparentPattern.FindStringSubmatch(value); len(m) == 5 {
		return normalizeValue(m[2])
	}
	return ""
}

func traceIDFromCloudTrace(value string) string {
	if m := cloudTracePattern.FindStringSubmatch(value); len(m) == 2 {
		return normalizeValue(m[1])
	}
	return ""
}

func traceIDFromB3Single(value string) string {
	if m := b3SinglePattern.FindStringSubmatch(value); len(m) == 2 {
		return normalizeValue(m[1])
	}
	return ""
}

func normalizeValue(value string) string {
	v := strings.TrimSpace(strings.ToLower(value))
	v = strings.Trim(v, "\"'`")
	return strings.TrimRight(v, ".,;:)]}")
}

func dedupe(keys []Key) []Key {
	if len(keys) <= 1 {
		return keys
	}
	seen := make(map[Key]bool, len(keys))
	uniq := keys[:0]
	for _, k := range keys {
		if k.Type == "" || k.Value == "" || seen[k] {
			continue
		}
		seen[k] = true
		uniq = append(uniq, k)
	}
	return uniq
}
