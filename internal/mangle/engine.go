// Package mangle mirrors collected events into a Mangle deductive database so
// they can be queried with Datalog rules.
package mangle

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"devlink-mcp-server/internal/config"
)

//go:embed events.mg
var defaultSchema string

// Fact is one normalized event.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
	Timestamp time.Time     `json:"timestamp"`
}

// QueryResult binds query variables to values.
type QueryResult map[string]interface{}

// Engine wraps the Mangle store with a bounded fact buffer and a predicate index.
type Engine struct {
	cfg config.MangleConfig
	mu  sync.RWMutex

	source      string
	programInfo *analysis.ProgramInfo
	store       factstore.FactStore

	facts []Fact
	index map[string][]int
}

// NewEngine loads the built-in event schema, then the configured schema file if any.
func NewEngine(cfg config.MangleConfig) (*Engine, error) {
	e := &Engine{
		cfg:   cfg,
		store: factstore.NewSimpleInMemoryStore(),
		index: make(map[string][]int),
	}
	if !cfg.Enable {
		return e, nil
	}
	if err := e.load(defaultSchema); err != nil {
		return nil, fmt.Errorf("built-in schema: %w", err)
	}
	if cfg.SchemaPath != "" {
		if err := e.LoadSchema(cfg.SchemaPath); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// LoadSchema appends the rules in path to the program.
func (e *Engine) LoadSchema(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if err := e.AddRule(string(data)); err != nil {
		return fmt.Errorf("load schema %s: %w", path, err)
	}
	return nil
}

// AddRule appends ruleSource to the program and re-analyzes it. On error the
// previous program stays in effect.
func (e *Engine) AddRule(ruleSource string) error {
	if !e.cfg.Enable {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(e.source + "\n" + ruleSource)
}

func (e *Engine) load(source string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(source)
}

func (e *Engine) loadLocked(source string) error {
	unit, err := parse.Unit(bytes.NewReader([]byte(source)))
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	info, err := analysis.AnalyzeOneUnit(unit, make(map[ast.PredicateSym]ast.Decl))
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	e.source = source
	e.programInfo = info
	return nil
}

// AddFacts buffers facts, adds them to the store and re-evaluates the program.
func (e *Engine) AddFacts(ctx context.Context, facts []Fact) error {
	if !e.cfg.Enable || len(facts) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	base := len(e.facts)
	e.facts = append(e.facts, facts...)
	if limit := e.cfg.FactBufferLimit; limit > 0 && len(e.facts) > limit {
		// Trim to 90% so trimming is not paid on every insert.
		keep := limit * 9 / 10
		e.facts = append([]Fact(nil), e.facts[len(e.facts)-keep:]...)
		e.rebuildLocked()
	} else {
		for i, f := range facts {
			e.index[f.Predicate] = append(e.index[f.Predicate], base+i)
			e.store.Add(e.factToAtom(f))
		}
	}

	if e.programInfo != nil {
		if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
			return fmt.Errorf("eval program after fact insertion: %w", err)
		}
	}
	return nil
}

// rebuildLocked recreates the index and the store from the buffer.
func (e *Engine) rebuildLocked() {
	e.index = make(map[string][]int)
	e.store = factstore.NewSimpleInMemoryStore()
	for i, f := range e.facts {
		e.index[f.Predicate] = append(e.index[f.Predicate], i)
		e.store.Add(e.factToAtom(f))
	}
}

// Reset drops every fact; the program is kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.facts = nil
	e.index = make(map[string][]int)
	e.store = factstore.NewSimpleInMemoryStore()
}

// ResetPredicates drops the facts of the named predicates and every derived fact.
func (e *Engine) ResetPredicates(predicates ...string) {
	drop := make(map[string]bool, len(predicates))
	for _, p := range predicates {
		drop[p] = true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.facts[:0]
	for _, f := range e.facts {
		if !drop[f.Predicate] {
			kept = append(kept, f)
		}
	}
	e.facts = kept
	e.rebuildLocked()
	if e.programInfo != nil {
		if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
			log.Printf("[mangle] re-evaluate after reset: %v", err)
		}
	}
}

// Query runs a single-atom query such as `failed_request(Id, Url, Status).`
// and returns one binding per matching fact.
func (e *Engine) Query(ctx context.Context, queryStr string) ([]QueryResult, error) {
	if !e.cfg.Enable || e.programInfo == nil {
		return nil, fmt.Errorf("engine not ready")
	}
	unit, err := parse.Unit(bytes.NewReader([]byte(queryStr)))
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	if len(unit.Clauses) == 0 {
		return nil, fmt.Errorf("no query found")
	}
	queryAtom := unit.Clauses[0].Head

	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]QueryResult, 0)
	err = e.store.GetFacts(queryAtom, func(atom ast.Atom) error {
		result := make(QueryResult)
		for i, arg := range queryAtom.Args {
			if i >= len(atom.Args) {
				break
			}
			if v, ok := arg.(ast.Variable); ok && v.Symbol != "_" {
				result[v.Symbol] = convertConstant(atom.Args[i])
			}
		}
		results = append(results, result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}
	if len(results) == 0 {
		results = e.queryBuffer(queryAtom.Predicate.Symbol, queryAtom.Args)
	}
	return results, nil
}

// queryBuffer matches base facts directly when the store has no answer.
func (e *Engine) queryBuffer(predicate string, queryArgs []ast.BaseTerm) []QueryResult {
	results := make([]QueryResult, 0)
	for _, idx := range e.index[predicate] {
		f := e.facts[idx]
		if len(f.Args) < len(queryArgs) {
			continue
		}
		result := make(QueryResult)
		matches := true
		for i, q := range queryArgs {
			switch arg := q.(type) {
			case ast.Variable:
				if arg.Symbol != "_" {
					result[arg.Symbol] = f.Args[i]
				}
			case ast.Constant:
				if fmt.Sprintf("%v", f.Args[i]) != fmt.Sprintf("%v", convertConstant(arg)) {
					matches = false
				}
			}
			if !matches {
				break
			}
		}
		if matches {
			results = append(results, result)
		}
	}
	return results
}

// Evaluate runs the program and returns every fact of predicate, base or derived.
func (e *Engine) Evaluate(ctx context.Context, predicate string) ([]Fact, error) {
	if !e.cfg.Enable || e.programInfo == nil {
		return nil, fmt.Errorf("engine not ready")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
		return nil, fmt.Errorf("eval program: %w", err)
	}

	arity := -1
	for sym := range e.programInfo.Decls {
		if sym.Symbol == predicate {
			arity = sym.Arity
			break
		}
	}
	if arity < 0 {
		return nil, fmt.Errorf("unknown predicate %q", predicate)
	}

	args := make([]ast.BaseTerm, arity)
	for i := range args {
		args[i] = ast.Variable{Symbol: fmt.Sprintf("V%d", i)}
	}
	query := ast.Atom{Predicate: ast.PredicateSym{Symbol: predicate, Arity: arity}, Args: args}

	facts := make([]Fact, 0)
	now := time.Now()
	err := e.store.GetFacts(query, func(atom ast.Atom) error {
		out := make([]interface{}, len(atom.Args))
		for i, a := range atom.Args {
			out[i] = convertConstant(a)
		}
		facts = append(facts, Fact{Predicate: atom.Predicate.Symbol, Args: out, Timestamp: now})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get facts: %w", err)
	}
	return facts, nil
}

// Predicates lists the declared predicates with their arity.
func (e *Engine) Predicates() map[string]int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]int)
	if e.programInfo == nil {
		return out
	}
	for sym := range e.programInfo.Decls {
		out[sym.Symbol] = sym.Arity
	}
	return out
}

// QueryTemporal returns buffered facts of predicate inside (after, before).
// Zero bounds are open.
func (e *Engine) QueryTemporal(predicate string, after, before time.Time) []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()
	results := make([]Fact, 0)
	for _, idx := range e.index[predicate] {
		f := e.facts[idx]
		if (after.IsZero() || f.Timestamp.After(after)) && (before.IsZero() || f.Timestamp.Before(before)) {
			results = append(results, f)
		}
	}
	return results
}

// FactsByPredicate returns the buffered facts of predicate.
func (e *Engine) FactsByPredicate(predicate string) []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()
	indices := e.index[predicate]
	results := make([]Fact, 0, len(indices))
	for _, idx := range indices {
		results = append(results, e.facts[idx])
	}
	return results
}

// Facts returns a copy of the buffer.
func (e *Engine) Facts() []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Fact, len(e.facts))
	copy(out, e.facts)
	return out
}

// Ready reports whether queries can run.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.programInfo != nil || !e.cfg.Enable
}

func (e *Engine) factToAtom(f Fact) ast.Atom {
	args := make([]ast.BaseTerm, len(f.Args))
	for i, arg := range f.Args {
		args[i] = toConstant(arg)
	}
	return ast.Atom{
		Predicate: ast.PredicateSym{Symbol: f.Predicate, Arity: len(f.Args)},
		Args:      args,
	}
}

func toConstant(v interface{}) ast.Constant {
	switch val := v.(type) {
	case string:
		return ast.String(val)
	case int:
		return ast.Number(int64(val))
	case int64:
		return ast.Number(val)
	case float64:
		return ast.Float64(val)
	case bool:
		if val {
			return ast.String("true")
		}
		return ast.String("false")
	default:
		return ast.String(fmt.Sprintf("%v", v))
	}
}

func convertConstant(c ast.BaseTerm) interface{} {
	if c == nil {
		return nil
	}
	switch term := c.(type) {
	case ast.Constant:
		switch term.Type {
		case ast.StringType:
			val, _ := term.StringValue()
			return val
		case ast.NumberType:
			if val, err := term.NumberValue(); err == nil {
				return val
			}
		case ast.Float64Type:
			if val, err := term.Float64Value(); err == nil {
				return val
			}
		}
		return term.String()
	case ast.Variable:
		return term.Symbol
	default:
		return fmt.Sprintf("%v", c)
	}
}
