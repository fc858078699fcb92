package mangle

import (
	"devlink-mcp-server/internal/collector"
	"devlink-mcp-server/internal/correlation"
)

// Predicates mirrored from the collectors.
const (
	PredConsole    = "console_event"
	PredException  = "exception_event"
	PredRequest    = "net_request"
	PredResponse   = "net_response"
	PredFailed     = "net_failed"
	PredNavigation = "navigation_event"
	PredConsoleKey = "console_key"
	PredRequestKey = "request_key"
)

// ConsolePredicates and NetworkPredicates group the base facts cleared together.
var (
	ConsolePredicates = []string{PredConsole, PredException, PredConsoleKey}
	NetworkPredicates = []string{PredRequest, PredResponse, PredFailed, PredRequestKey}
)

// ConsoleFacts converts a console entry and its correlation keys into facts.
func ConsoleFacts(e collector.Entry[collector.LogRecord], keys []correlation.Key) []Fact {
	ts := e.Time.UnixMilli()
	var facts []Fact
	switch e.Item.Kind {
	case collector.KindException:
		facts = append(facts, Fact{Predicate: PredException, Args: []interface{}{e.ID, e.Item.Text(), ts}, Timestamp: e.Time})
	default:
		facts = append(facts, Fact{Predicate: PredConsole, Args: []interface{}{e.ID, e.Type, e.Item.Text(), ts}, Timestamp: e.Time})
	}
	for _, k := range keys {
		facts = append(facts, Fact{Predicate: PredConsoleKey, Args: []interface{}{e.ID, k.Type, k.Value}, Timestamp: e.Time})
	}
	return facts
}

// RequestFacts converts a freshly collected request.
func RequestFacts(e collector.Entry[collector.NetworkRecord], keys []correlation.Key) []Fact {
	r := e.Item
	facts := []Fact{{
		Predicate: PredRequest,
		Args:      []interface{}{e.ID, r.Method, r.URL, e.Type, e.Time.UnixMilli()},
		Timestamp: e.Time,
	}}
	return append(facts, requestKeyFacts(e, keys)...)
}

// CompletionFacts converts the response or failure that completed a request.
// A still-pending entry yields nothing.
func CompletionFacts(e collector.Entry[collector.NetworkRecord], keys []correlation.Key) []Fact {
	r := e.Item
	ts := r.Finished
	if ts.IsZero() {
		ts = e.Time
	}
	var facts []Fact
	switch {
	case r.Failed:
		facts = append(facts, Fact{Predicate: PredFailed, Args: []interface{}{e.ID, r.ErrorText, ts.UnixMilli()}, Timestamp: ts})
	case r.Status > 0:
		facts = append(facts, Fact{Predicate: PredResponse, Args: []interface{}{e.ID, r.Status, ts.UnixMilli()}, Timestamp: ts})
	default:
		return nil
	}
	return append(facts, requestKeyFacts(e, keys)...)
}

func requestKeyFacts(e collector.Entry[collector.NetworkRecord], keys []correlation.Key) []Fact {
	facts := make([]Fact, 0, len(keys))
	for _, k := range keys {
		facts = append(facts, Fact{Predicate: PredRequestKey, Args: []interface{}{e.ID, k.Type, k.Value}, Timestamp: e.Time})
	}
	return facts
}
