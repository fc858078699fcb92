package collector

import (
	"fmt"
	"strings"

	"devlink-mcp-server/internal/automation"
)

// LogKind discriminates a LogRecord.
type LogKind string

const (
	KindConsole   LogKind = "console"
	KindException LogKind = "exception"
)

// LogRecord is a console message or an uncaught exception. Kind names the
// single payload that is set.
type LogRecord struct {
	Kind      LogKind                    `json:"kind"`
	Console   *automation.ConsoleMessage `json:"console,omitempty"`
	Exception *automation.Exception      `json:"exception,omitempty"`
	PageURL   string                     `json:"page_url,omitempty"`
}

// EventType is the console level, or "exception".
func (r LogRecord) EventType() string {
	switch r.Kind {
	case KindException:
		return string(KindException)
	case KindConsole:
		if r.Console != nil && r.Console.Level != "" {
			return r.Console.Level
		}
		return "log"
	}
	return string(r.Kind)
}

// Text is the human-readable message.
func (r LogRecord) Text() string {
	switch r.Kind {
	case KindException:
		if r.Exception == nil {
			return ""
		}
		if r.Exception.Description != "" {
			return r.Exception.Description
		}
		return r.Exception.Text
	case KindConsole:
		if r.Console != nil {
			return r.Console.Text
		}
	}
	return ""
}

// Location renders url:line:col of the source, or "".
func (r LogRecord) Location() string {
	var url string
	var line, col int
	switch {
	case r.Kind == KindException && r.Exception != nil:
		url, line, col = r.Exception.URL, r.Exception.Line, r.Exception.Column
	case r.Kind == KindConsole && r.Console != nil:
		url, line, col = r.Console.URL, r.Console.Line, r.Console.Column
	}
	if url == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", url, line, col)
}

// ConsoleLog collects console messages and exceptions.
type ConsoleLog struct {
	*Collector[LogRecord]
}

// NewConsoleLog returns a console collector keeping maxNavigations segments.
func NewConsoleLog(maxNavigations int) *ConsoleLog {
	return &ConsoleLog{Collector: New[LogRecord](maxNavigations)}
}

// Record stores a console or exception event. Other kinds are ignored.
func (l *ConsoleLog) Record(ev automation.Event, pageURL string) (int64, bool) {
	switch ev.Kind {
	case automation.EventConsole:
		if ev.Console == nil {
			return 0, false
		}
		return l.Collect(LogRecord{Kind: KindConsole, Console: ev.Console, PageURL: pageURL}), true
	case automation.EventException:
		if ev.Exception == nil {
			return 0, false
		}
		return l.Collect(LogRecord{Kind: KindException, Exception: ev.Exception, PageURL: pageURL}), true
	}
	return 0, false
}

// MessageContains matches records whose text contains substr, case-insensitively.
func MessageContains(substr string) Filter[LogRecord] {
	if substr == "" {
		return nil
	}
	needle := strings.ToLower(substr)
	return func(e Entry[LogRecord]) bool {
		return strings.Contains(strings.ToLower(e.Item.Text()), needle)
	}
}
