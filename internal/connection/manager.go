// Package connection owns the single live DevTools session. Connect walks a
// prioritized strategy list with fallback, probes the result and keeps exactly
// one session; every state-changing call runs through a FIFO queue.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"devlink-mcp-server/internal/automation"
	"devlink-mcp-server/internal/errs"
	"devlink-mcp-server/internal/health"
	"devlink-mcp-server/internal/strategy"
)

const defaultCloseTimeout = 5 * time.Second

// Prober produces a health verdict for a live handle.
type Prober interface {
	Probe(ctx context.Context, h automation.Handle) health.Verdict
}

// Installer attaches listeners to a freshly accepted handle and returns the
// detach funcs the manager will call on teardown.
type Installer func(h automation.Handle) []func()

// Options configures a Manager.
type Options struct {
	Registry *strategy.Registry
	Prober   Prober
	// CloseTimeout bounds the best-effort close during teardown.
	CloseTimeout time.Duration
	Tracer       Tracer
}

type session struct {
	id          string
	strategy    string
	endpoint    string
	handle      automation.Handle
	page        automation.Page
	owned       []func()
	connectedAt time.Time
}

// Manager produces and maintains at most one live session.
type Manager struct {
	registry     *strategy.Registry
	prober       Prober
	closeTimeout time.Duration
	queue        serialQueue

	mu          sync.RWMutex
	state       State
	sess        *session
	lastErr     error
	warnings    []string
	lastHealth  *health.Verdict
	lastRequest *Request
	installer   Installer
	tracer      Tracer
}

// NewManager builds a disconnected manager.
func NewManager(opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = strategy.DefaultRegistry(nil)
	}
	if opts.Prober == nil {
		opts.Prober = health.NewProber(0)
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = defaultCloseTimeout
	}
	return &Manager{
		registry:     opts.Registry,
		prober:       opts.Prober,
		closeTimeout: opts.CloseTimeout,
		tracer:       opts.Tracer,
		state:        StateDisconnected,
	}
}

// SetInstaller registers the hook run for every accepted session.
func (m *Manager) SetInstaller(fn Installer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installer = fn
}

// SetTracer replaces the lifecycle tracer.
func (m *Manager) SetTracer(t Tracer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracer = t
}

// Connect tears down any current session and attempts each candidate strategy
// in order until one attaches and passes the health probe.
func (m *Manager) Connect(ctx context.Context, req Request) (*Result, error) {
	release := m.queue.enter()
	defer release()
	return m.connect(ctx, req)
}

// Reconnect re-runs the last successful request merged with overrides.
func (m *Manager) Reconnect(ctx context.Context, overrides *Request) (*Result, error) {
	release := m.queue.enter()
	defer release()

	m.mu.RLock()
	prev := m.lastRequest
	m.mu.RUnlock()
	if prev == nil {
		return nil, errs.New(errs.NoPriorConnection, "", "reconnect requires a previous successful connect")
	}
	return m.connect(ctx, prev.Merge(overrides))
}

// Disconnect tears down the current session. Without a session it changes nothing.
func (m *Manager) Disconnect(ctx context.Context) Snapshot {
	release := m.queue.enter()
	defer release()

	m.mu.Lock()
	sess := m.sess
	if sess == nil {
		m.mu.Unlock()
		return m.Status()
	}
	m.sess = nil
	m.state = StateDisconnected
	m.warnings = nil
	m.lastHealth = nil
	m.lastErr = nil
	m.mu.Unlock()

	m.teardown(sess, ReasonDisconnect)
	return m.Status()
}

// RefreshHealth probes the current session. An unhealthy verdict tears the
// session down and records HEALTH_CHECK_FAILED as the last error.
func (m *Manager) RefreshHealth(ctx context.Context) Snapshot {
	release := m.queue.enter()
	defer release()

	m.mu.RLock()
	sess := m.sess
	m.mu.RUnlock()
	if sess == nil {
		return m.Status()
	}

	verdict := m.prober.Probe(ctx, sess.handle)
	m.trace(TraceEvent{Type: TraceHealth, ConnectionID: sess.id, Strategy: sess.strategy, HealthLevel: string(verdict.Level), Reason: verdict.Summary()})

	if verdict.Level == health.Unhealthy {
		m.mu.Lock()
		m.sess = nil
		m.state = StateDisconnected
		m.lastHealth = &verdict
		m.lastErr = errs.New(errs.HealthCheckFailed, errs.PhaseHealth, "%s", verdict.Summary())
		m.mu.Unlock()

		log.Printf("[connection] session %s failed health check: %s", sess.id, verdict.Summary())
		m.teardown(sess, ReasonHealthFailed)
		return m.Status()
	}

	page, pageErr := sess.handle.CurrentPage(ctx)
	m.mu.Lock()
	if m.sess == sess {
		if pageErr == nil {
			sess.page = page
		}
		m.lastHealth = &verdict
	}
	m.mu.Unlock()
	return m.Status()
}

// Status returns the current snapshot. It never waits on queued operations.
func (m *Manager) Status() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		State:     m.state,
		Connected: m.state == StateConnected && m.sess != nil,
		LastError: errorInfo(m.lastErr),
		Warnings:  append([]string{}, m.warnings...),
	}
	if m.lastHealth != nil {
		snap.HealthLevel = m.lastHealth.Level
	}
	if s := m.sess; s != nil {
		snap.StrategyUsed = s.strategy
		snap.ConnectionID = s.id
		snap.Endpoint = s.endpoint
		snap.HasCurrentPage = s.page.URL != ""
		snap.PagePath = s.page.Path
		snap.PageURL = s.page.URL
		at := s.connectedAt
		snap.ConnectedAt = &at
	}
	return snap
}

// Handle returns the live handle. It is valid until the next teardown.
func (m *Manager) Handle() (automation.Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil {
		return nil, errs.New(errs.NotConnected, "", "no live session; connect first")
	}
	return m.sess.handle, nil
}

// ConnectionID returns the current session id or "".
func (m *Manager) ConnectionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil {
		return ""
	}
	return m.sess.id
}

func (m *Manager) connect(ctx context.Context, req Request) (*Result, error) {
	m.mu.Lock()
	prev := m.sess
	m.sess = nil
	m.state = StateConnecting
	m.lastErr = nil
	m.warnings = nil
	m.lastHealth = nil
	m.mu.Unlock()

	if prev != nil {
		m.teardown(prev, ReasonSuperseded)
	}

	if req.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.TotalTimeout)
		defer cancel()
	}

	var attempts []errs.Attempt
	var lastCause error
	for _, name := range req.Candidates() {
		sess, verdict, attempt, err := m.tryCandidate(ctx, name, req)
		if err != nil {
			attempts = append(attempts, attempt)
			lastCause = err
			log.Printf("[connection] %s", attempt.Warning())
			continue
		}

		warnings := make([]string, 0, len(attempts))
		for _, a := range attempts {
			warnings = append(warnings, a.Warning())
		}

		m.mu.Lock()
		installer := m.installer
		m.mu.Unlock()
		if installer != nil {
			sess.owned = append(sess.owned, installer(sess.handle)...)
		}

		stored := req.Merge(nil)
		m.mu.Lock()
		m.sess = sess
		m.state = StateConnected
		m.warnings = warnings
		m.lastHealth = verdict
		m.lastRequest = &stored
		res := &Result{
			Status:       StateConnected,
			Connected:    true,
			StrategyUsed: sess.strategy,
			Endpoint:     sess.endpoint,
			ConnectionID: sess.id,
			Warnings:     append([]string{}, warnings...),
			Health:       verdict,
			Page:         sess.page,
		}
		m.mu.Unlock()

		log.Printf("[connection] session %s connected via %s at %s", sess.id, sess.strategy, sess.endpoint)
		m.trace(TraceEvent{Type: TraceAccepted, ConnectionID: sess.id, Strategy: sess.strategy, Endpoint: sess.endpoint, HealthLevel: levelOf(verdict)})
		return res, nil
	}

	exhausted := exhaustedError(attempts, lastCause)
	m.mu.Lock()
	m.state = StateDisconnected
	m.lastErr = exhausted
	m.mu.Unlock()
	m.trace(TraceEvent{Type: TraceExhaust, Reason: exhausted.Message})
	return nil, exhausted
}

// tryCandidate runs one strategy. On failure it returns the attempt record and
// the typed cause; any session created along the way is already torn down.
func (m *Manager) tryCandidate(ctx context.Context, name string, req Request) (*session, *health.Verdict, errs.Attempt, error) {
	fail := func(phase string, code errs.Code, cause error) (*session, *health.Verdict, errs.Attempt, error) {
		a := errs.Attempt{Strategy: name, Phase: phase, Reason: cause.Error()}
		m.trace(TraceEvent{Type: TraceRejected, Strategy: name, Reason: a.Reason})
		return nil, nil, a, errs.Wrap(code, phase, cause)
	}

	if err := ctx.Err(); err != nil {
		return fail(name, errs.StrategyAttachFailed, fmt.Errorf("aggregate timeout exceeded: %w", err))
	}
	adapter, err := m.registry.Lookup(name)
	if err != nil {
		return fail(name, errs.StrategyAttachFailed, err)
	}

	m.trace(TraceEvent{Type: TraceAttempt, Strategy: name})
	started := time.Now()
	att, err := m.attach(ctx, adapter, req)
	if err != nil {
		return fail(name, errs.StrategyAttachFailed, err)
	}

	sess := &session{
		id:          uuid.NewString(),
		strategy:    name,
		endpoint:    att.Endpoint,
		handle:      att.Handle,
		page:        att.Page,
		connectedAt: time.Now(),
	}
	sess.owned = append(sess.owned, m.trackNavigation(sess))
	m.trace(TraceEvent{Type: TraceAttachOK, ConnectionID: sess.id, Strategy: name, Endpoint: sess.endpoint, Duration: time.Since(started)})

	if !req.healthCheckEnabled() {
		return sess, nil, errs.Attempt{}, nil
	}

	verdict := m.prober.Probe(ctx, sess.handle)
	m.trace(TraceEvent{Type: TraceHealth, ConnectionID: sess.id, Strategy: name, HealthLevel: string(verdict.Level), Reason: verdict.Summary()})
	if verdict.Level == health.Unhealthy {
		m.teardown(sess, ReasonRejected)
		return fail(errs.PhaseHealth, errs.HealthCheckFailed, errors.New(verdict.Summary()))
	}
	if verdict.Level == health.Degraded {
		log.Printf("[connection] accepting degraded session %s: %s", sess.id, verdict.Summary())
	}
	return sess, &verdict, errs.Attempt{}, nil
}

func (m *Manager) attach(ctx context.Context, adapter strategy.Adapter, req Request) (*strategy.Attachment, error) {
	actx := ctx
	if req.AttachTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, req.AttachTimeout)
		defer cancel()
	}
	att, err := adapter.Attach(actx, req.Params)
	if err != nil {
		return nil, err
	}
	if att == nil || att.Handle == nil {
		return nil, errors.New("adapter returned no handle")
	}
	if att.Endpoint == "" {
		att.Endpoint = att.Handle.Endpoint()
	}
	return att, nil
}

// trackNavigation keeps the session's current page in step with main-frame
// navigations so Status never needs I/O.
func (m *Manager) trackNavigation(sess *session) func() {
	return sess.handle.OnEvent(automation.EventNavigated, func(ev automation.Event) {
		if ev.Navigation == nil {
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.sess != nil && m.sess != sess {
			return
		}
		sess.page.URL = ev.Navigation.URL
		sess.page.Path = automation.PathOf(ev.Navigation.URL)
	})
}

// teardown detaches owned listeners in reverse order and closes the handle.
// Close failures are logged only. Callers have already unlinked sess.
func (m *Manager) teardown(sess *session, reason string) {
	for i := len(sess.owned) - 1; i >= 0; i-- {
		if detach := sess.owned[i]; detach != nil {
			detach()
		}
	}
	sess.owned = nil

	ctx, cancel := context.WithTimeout(context.Background(), m.closeTimeout)
	defer cancel()
	if err := sess.handle.Close(ctx); err != nil {
		log.Printf("[connection] close session %s (%s): %v", sess.id, reason, err)
	} else {
		log.Printf("[connection] session %s closed (%s)", sess.id, reason)
	}
	m.trace(TraceEvent{Type: TraceTeardown, ConnectionID: sess.id, Strategy: sess.strategy, Endpoint: sess.endpoint, Reason: reason})
}

func (m *Manager) trace(ev TraceEvent) {
	m.mu.RLock()
	t := m.tracer
	m.mu.RUnlock()
	if t == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	t.Trace(ev)
}

func exhaustedError(attempts []errs.Attempt, cause error) *errs.Error {
	e := &errs.Error{
		Code:     errs.AllStrategiesExhausted,
		Attempts: attempts,
		Err:      cause,
	}
	if len(attempts) == 0 {
		e.Message = "no strategies to try"
		return e
	}
	last := attempts[len(attempts)-1]
	e.Phase = last.Phase
	e.Message = fmt.Sprintf("%d strateg%s failed; last: %s", len(attempts), plural(len(attempts)), last.Reason)
	return e
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

func levelOf(v *health.Verdict) string {
	if v == nil {
		return ""
	}
	return string(v.Level)
}
