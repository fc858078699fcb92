package strategy

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"devlink-mcp-server/internal/automation"
)

// Default discovery hints: Chrome's conventional port, Node's inspector port
// and the devlink bridge port.
var (
	DefaultDiscoveryHosts = []string{"127.0.0.1", "localhost"}
	DefaultDiscoveryPorts = []int{9222, 9229, 9421}
)

// DiscoverAdapter probes host/port hints in order and attaches to the first
// debugger that answers.
type DiscoverAdapter struct {
	Dial Dialer
}

func (a *DiscoverAdapter) Name() string { return Discover }

func (a *DiscoverAdapter) Attach(ctx context.Context, p Params) (*Attachment, error) {
	candidates := discoveryCandidates(p)
	var tried []string
	for _, addr := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("discovery interrupted after %d probes: %w", len(tried), err)
		}
		ws, err := resolveEndpoint(ctx, addr)
		if err != nil {
			tried = append(tried, addr)
			continue
		}
		h, err := a.Dial(ctx, automation.DialOptions{Endpoint: ws, URL: p.URL, Stealth: p.Stealth})
		if err != nil {
			log.Printf("[strategy] discovered %s but attach failed: %v", ws, err)
			tried = append(tried, addr)
			continue
		}
		return finish(ctx, h), nil
	}
	return nil, fmt.Errorf("no debugger found (probed %s)", strings.Join(tried, ", "))
}

// discoveryCandidates lists the explicit endpoint first, then hosts x ports.
func discoveryCandidates(p Params) []string {
	hosts := p.DiscoveryHosts
	if len(hosts) == 0 {
		hosts = DefaultDiscoveryHosts
	}
	ports := p.DiscoveryPorts
	if len(ports) == 0 {
		ports = DefaultDiscoveryPorts
	}
	if p.Port != 0 {
		ports = append([]int{p.Port}, ports...)
	}

	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	add(p.Endpoint)
	for _, h := range hosts {
		for _, port := range ports {
			add(net.JoinHostPort(h, strconv.Itoa(port)))
		}
	}
	return out
}
