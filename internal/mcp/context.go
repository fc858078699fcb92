package mcp

import (
	"context"
	"log"
	"time"

	"devlink-mcp-server/internal/automation"
	"devlink-mcp-server/internal/collector"
	"devlink-mcp-server/internal/config"
	"devlink-mcp-server/internal/connection"
	"devlink-mcp-server/internal/correlation"
	"devlink-mcp-server/internal/health"
	"devlink-mcp-server/internal/mangle"
	"devlink-mcp-server/internal/recorder"
	"devlink-mcp-server/internal/strategy"
)

// ContextOptions overrides the collaborators NewContext would build from config.
type ContextOptions struct {
	Manager  *connection.Manager
	Engine   *mangle.Engine
	Recorder *recorder.Recorder
}

// Context is the composition root behind the tools: one connection manager,
// the console and network collectors, and the fact mirror they feed.
type Context struct {
	cfg      config.Config
	defaults connection.Request
	manager  *connection.Manager
	console  *collector.ConsoleLog
	network  *collector.NetworkLog
	keys     *correlation.Index
	engine   *mangle.Engine
	recorder *recorder.Recorder
}

// NewContext builds the context and installs its listeners on every session
// the manager accepts.
func NewContext(cfg config.Config, opts ContextOptions) *Context {
	manager := opts.Manager
	if manager == nil {
		manager = connection.NewManager(connection.Options{
			Registry:     strategy.DefaultRegistry(strategy.DialRod),
			Prober:       health.NewProber(cfg.Connection.CheckTimeoutDuration()),
			CloseTimeout: cfg.Connection.CloseTimeoutDuration(),
		})
	}

	maxNav := cfg.Collector.GetMaxNavigations()
	c := &Context{
		cfg:      cfg,
		defaults: RequestFromConfig(cfg.Connection),
		manager:  manager,
		console:  collector.NewConsoleLog(maxNav),
		network:  collector.NewNetworkLog(maxNav),
		keys:     correlation.NewIndex(),
		engine:   opts.Engine,
		recorder: opts.Recorder,
	}
	c.console.OnEvict(func(evicted []collector.Entry[collector.LogRecord]) {
		ids := make([]int64, 0, len(evicted))
		for _, e := range evicted {
			ids = append(ids, e.ID)
		}
		c.keys.Forget(ids...)
	})

	manager.SetInstaller(c.install)
	if c.recorder != nil {
		manager.SetTracer(c.recorder)
	}
	return c
}

// RequestFromConfig turns the connection section into the default connect request.
func RequestFromConfig(cc config.ConnectionConfig) connection.Request {
	req := connection.Request{
		Strategy: cc.Strategy,
		Fallback: append([]string(nil), cc.Fallback...),
		Params: strategy.Params{
			ProjectPath:    cc.ProjectPath,
			Endpoint:       cc.Endpoint,
			Binary:         cc.Binary,
			Port:           cc.Port,
			Stealth:        cc.Stealth,
			URL:            cc.URL,
			Args:           append([]string(nil), cc.Args...),
			DiscoveryHosts: append([]string(nil), cc.DiscoveryHosts...),
			DiscoveryPorts: append([]int(nil), cc.DiscoveryPorts...),
		},
		AttachTimeout: cc.AttachTimeoutDuration(),
		TotalTimeout:  cc.TotalTimeoutDuration(),
		Discovery:     cc.Discovery,
	}
	if cc.Headless != nil {
		v := *cc.Headless
		req.Params.Headless = &v
	}
	if cc.HealthCheck != nil {
		v := *cc.HealthCheck
		req.HealthCheck = &v
	}
	return req
}

func (c *Context) Manager() *connection.Manager    { return c.manager }
func (c *Context) Console() *collector.ConsoleLog  { return c.console }
func (c *Context) Network() *collector.NetworkLog  { return c.network }
func (c *Context) Engine() *mangle.Engine          { return c.engine }
func (c *Context) Correlations() *correlation.Index { return c.keys }

// PageSize is the configured default for list tools.
func (c *Context) PageSize() int { return c.cfg.Collector.GetPageSize() }

// Connect merges overrides onto the configured defaults and connects.
func (c *Context) Connect(ctx context.Context, overrides *connection.Request) (*connection.Result, error) {
	return c.manager.Connect(ctx, c.defaults.Merge(overrides))
}

// AutoConnect runs one connect with the configured defaults when enabled.
func (c *Context) AutoConnect(ctx context.Context) {
	if !c.cfg.Connection.AutoConnect {
		return
	}
	res, err := c.Connect(ctx, nil)
	if err != nil {
		log.Printf("[context] auto-connect failed: %v", err)
		return
	}
	log.Printf("[context] auto-connected via %s to %s (%s)", res.StrategyUsed, res.Endpoint, res.ConnectionID)
}

// ClearConsole drops console entries, their correlation keys and mirrored facts.
func (c *Context) ClearConsole() {
	c.console.Clear()
	c.keys.Reset()
	if c.engine != nil {
		c.engine.ResetPredicates(mangle.ConsolePredicates...)
	}
}

// ClearNetwork drops network entries and their mirrored facts.
func (c *Context) ClearNetwork() {
	c.network.Clear()
	if c.engine != nil {
		c.engine.ResetPredicates(mangle.NetworkPredicates...)
	}
}

// Close disconnects the live session and closes the trace recorder.
func (c *Context) Close(ctx context.Context) {
	c.manager.Disconnect(ctx)
	if c.recorder != nil {
		if err := c.recorder.Close(); err != nil {
			log.Printf("[context] close recorder: %v", err)
		}
	}
}

// install is the manager's installer: one listener per event kind, all owned
// by the session and detached on teardown.
func (c *Context) install(h automation.Handle) []func() {
	kinds := []automation.EventKind{
		automation.EventConsole,
		automation.EventException,
		automation.EventRequest,
		automation.EventResponse,
		automation.EventRequestFailed,
		automation.EventNavigated,
	}
	detach := make([]func(), 0, len(kinds))
	for _, kind := range kinds {
		detach = append(detach, h.OnEvent(kind, c.handleEvent))
	}
	return detach
}

func (c *Context) handleEvent(ev automation.Event) {
	switch ev.Kind {
	case automation.EventConsole, automation.EventException:
		c.recordConsole(ev)
	case automation.EventRequest:
		c.recordRequest(ev)
	case automation.EventResponse, automation.EventRequestFailed:
		c.recordCompletion(ev)
	case automation.EventNavigated:
		c.recordNavigation(ev)
	}
}

func (c *Context) recordConsole(ev automation.Event) {
	id, ok := c.console.Record(ev, c.manager.Status().PageURL)
	if !ok {
		return
	}
	entry, ok := c.console.Get(id)
	if !ok {
		return
	}
	keys := correlation.FromMessage(entry.Item.Text())
	c.keys.Add(id, keys)
	c.mirror(mangle.ConsoleFacts(entry, keys))
	c.trace(string(ev.Kind), map[string]interface{}{"msgid": id, "type": entry.Type})
}

func (c *Context) recordRequest(ev automation.Event) {
	id, ok := c.network.Record(ev)
	if !ok {
		return
	}
	entry, ok := c.network.Get(id)
	if !ok {
		return
	}
	c.mirror(mangle.RequestFacts(entry, correlation.FromHeaders(entry.Item.RequestHeaders)))
	c.trace("request", map[string]interface{}{"reqid": id, "method": entry.Item.Method, "url": entry.Item.URL})
}

func (c *Context) recordCompletion(ev automation.Event) {
	id, ok := c.network.Record(ev)
	if !ok {
		return
	}
	entry, ok := c.network.Get(id)
	if !ok {
		return
	}
	c.mirror(mangle.CompletionFacts(entry, correlation.FromHeaders(entry.Item.ResponseHeaders)))
	c.trace(string(ev.Kind), map[string]interface{}{"reqid": id, "state": entry.Item.State()})
}

func (c *Context) recordNavigation(ev automation.Event) {
	if ev.Navigation == nil {
		return
	}
	url := ev.Navigation.URL
	c.console.SplitAfterNavigation(url)
	c.network.SplitAfterNavigation(url)

	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	c.mirror([]mangle.Fact{{Predicate: mangle.PredNavigation, Args: []interface{}{url, ts.UnixMilli()}, Timestamp: ts}})
	c.trace("navigated", map[string]interface{}{"url": url})
}

// networkKeys collects the correlation keys carried by a request and its response.
func networkKeys(r collector.NetworkRecord) []correlation.Key {
	keys := correlation.FromHeaders(r.RequestHeaders)
	seen := make(map[correlation.Key]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	for _, k := range correlation.FromHeaders(r.ResponseHeaders) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

func (c *Context) mirror(facts []mangle.Fact) {
	if c.engine == nil || len(facts) == 0 {
		return
	}
	if err := c.engine.AddFacts(context.Background(), facts); err != nil {
		log.Printf("[context] mirror %d facts: %v", len(facts), err)
	}
}

func (c *Context) trace(eventType string, data interface{}) {
	if c.recorder == nil {
		return
	}
	c.recorder.Log(eventType, c.manager.ConnectionID(), data)
}
