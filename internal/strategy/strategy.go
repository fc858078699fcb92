// Package strategy implements the named ways of establishing a DevTools session:
// spawning a browser, attaching to an explicit endpoint, or probing for one.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"devlink-mcp-server/internal/automation"
)

// Strategy names.
const (
	Launch   = "launch"
	Connect  = "connect"
	Discover = "discover"
)

// Params carries the inputs every adapter may read. Each adapter ignores the
// fields it does not use.
type Params struct {
	// ProjectPath is the working directory of a spawned browser; an index.html
	// inside it becomes the entry page when URL is empty.
	ProjectPath string `json:"project_path,omitempty"`
	// Endpoint is a ws:// DevTools URL, an http(s) debugger address, host:port or a bare port.
	Endpoint string `json:"endpoint,omitempty"`
	Binary   string `json:"binary,omitempty"`
	Port     int    `json:"port,omitempty"`
	Headless *bool  `json:"headless,omitempty"`
	Stealth  bool   `json:"stealth,omitempty"`
	// URL is navigated to once attached.
	URL  string   `json:"url,omitempty"`
	Args []string `json:"args,omitempty"`

	DiscoveryHosts []string `json:"discovery_hosts,omitempty"`
	DiscoveryPorts []int    `json:"discovery_ports,omitempty"`
}

// IsHeadless defaults to true when unset.
func (p Params) IsHeadless() bool {
	if p.Headless == nil {
		return true
	}
	return *p.Headless
}

// Merge returns p with every non-zero field of o applied on top.
func (p Params) Merge(o Params) Params {
	if o.ProjectPath != "" {
		p.ProjectPath = o.ProjectPath
	}
	if o.Endpoint != "" {
		p.Endpoint = o.Endpoint
	}
	if o.Binary != "" {
		p.Binary = o.Binary
	}
	if o.Port != 0 {
		p.Port = o.Port
	}
	if o.Headless != nil {
		v := *o.Headless
		p.Headless = &v
	}
	if o.Stealth {
		p.Stealth = true
	}
	if o.URL != "" {
		p.URL = o.URL
	}
	if len(o.Args) > 0 {
		p.Args = append([]string(nil), o.Args...)
	}
	if len(o.DiscoveryHosts) > 0 {
		p.DiscoveryHosts = append([]string(nil), o.DiscoveryHosts...)
	}
	if len(o.DiscoveryPorts) > 0 {
		p.DiscoveryPorts = append([]int(nil), o.DiscoveryPorts...)
	}
	return p
}

// Attachment is what a successful attach hands to the connection manager.
type Attachment struct {
	Handle   automation.Handle
	Endpoint string
	Page     automation.Page
}

// Adapter performs one bootstrap/attach sequence. ctx carries the per-attempt timeout.
type Adapter interface {
	Name() string
	Attach(ctx context.Context, p Params) (*Attachment, error)
}

// Dialer binds a handle to a resolved endpoint.
type Dialer func(ctx context.Context, opts automation.DialOptions) (automation.Handle, error)

// DialRod is the production Dialer.
func DialRod(ctx context.Context, opts automation.DialOptions) (automation.Handle, error) {
	h, err := automation.Dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Registry resolves strategy names to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry registers the given adapters by name; later ones win.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// DefaultRegistry wires the launch, connect and discover adapters to dial.
func DefaultRegistry(dial Dialer) *Registry {
	if dial == nil {
		dial = DialRod
	}
	return NewRegistry(
		&LaunchAdapter{Dial: dial},
		&ConnectAdapter{Dial: dial},
		&DiscoverAdapter{Dial: dial},
	)
}

func (r *Registry) Register(a Adapter) {
	r.adapters[strings.ToLower(a.Name())] = a
}

// Lookup returns the adapter for name.
func (r *Registry) Lookup(name string) (Adapter, error) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return a, nil
}

// Names lists the registered strategies alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// finish reads the current page and packages the attachment. A page read
// failure is not fatal here; the health prober reports it.
func finish(ctx context.Context, h automation.Handle) *Attachment {
	att := &Attachment{Handle: h, Endpoint: h.Endpoint()}
	if page, err := h.CurrentPage(ctx); err == nil {
		att.Page = page
	}
	return att
}
