package mcp

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"devlink-mcp-server/internal/errs"
	"devlink-mcp-server/internal/mangle"
)

type QueryEventsTool struct {
	automation *Context
}

func (t *QueryEventsTool) Name() string { return "query-events" }
func (t *QueryEventsTool) Description() string {
	return `Query collected events as Mangle (Datalog) facts.

Every console message, exception, request, response, failure and navigation is
mirrored as a fact keyed by its msgid/reqid.

MODES (first one given wins):
- query: one atom with variables, e.g. "net_response(Id, Status, Ts)."
- predicate: evaluate rules and return every fact, e.g. "failed_request", "pending_request", "correlated"
- (none): list the declared predicates with their arity

Optional rule: a rule added before querying, e.g.
  "slow_api(Id) :- net_request(Id, _, Url, _, _), net_response(Id, S, _), S >= 500."

BUILT-IN PREDICATES:
  console_event(Id, Level, Message, Ts), exception_event(Id, Text, Ts),
  net_request(Id, Method, Url, Type, Ts), net_response(Id, Status, Ts), net_failed(Id, Error, Ts),
  navigation_event(Url, Ts), console_key(Id, KeyType, Value), request_key(Id, KeyType, Value)
  failed_request(Id, Url, Status), network_error(Id, Url, Error), pending_request(Id, Url),
  error_log(Id, Message), correlated(RequestId, LogId)`
}
func (t *QueryEventsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Single-atom Datalog query ending with a period",
			},
			"predicate": map[string]interface{}{
				"type":        "string",
				"description": "Predicate to evaluate (base or derived)",
			},
			"rule": map[string]interface{}{
				"type":        "string",
				"description": "Optional rule to add before querying",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum rows returned (default: 100)",
			},
		},
	}
}
func (t *QueryEventsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	engine := t.automation.Engine()
	if engine == nil {
		return nil, errs.New(errs.InvalidArgument, "", "fact mirror is disabled (mangle.enable: false)")
	}
	limit := getIntArg(args, "limit", 100)
	if limit <= 0 {
		limit = 100
	}

	if rule := strings.TrimSpace(getStringArg(args, "rule")); rule != "" {
		if err := engine.AddRule(rule); err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, "", err)
		}
	}

	if query := strings.TrimSpace(getStringArg(args, "query")); query != "" {
		if !strings.HasSuffix(query, ".") {
			query += "."
		}
		rows, err := engine.Query(ctx, query)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, "", err)
		}
		total := len(rows)
		if len(rows) > limit {
			rows = rows[:limit]
		}
		return map[string]interface{}{"results": rows, "count": len(rows), "total": total}, nil
	}

	if predicate := strings.TrimSpace(getStringArg(args, "predicate")); predicate != "" {
		facts, err := engine.Evaluate(ctx, predicate)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, "", err)
		}
		total := len(facts)
		if len(facts) > limit {
			facts = facts[:limit]
		}
		rows := make([][]interface{}, 0, len(facts))
		for _, f := range facts {
			rows = append(rows, f.Args)
		}
		return map[string]interface{}{"predicate": predicate, "facts": rows, "count": len(rows), "total": total}, nil
	}

	return map[string]interface{}{"predicates": describePredicates(engine)}, nil
}

func describePredicates(engine *mangle.Engine) []string {
	preds := engine.Predicates()
	out := make([]string, 0, len(preds))
	for name, arity := range preds {
		out = append(out, name+"/"+strconv.Itoa(arity))
	}
	sort.Strings(out)
	return out
}
