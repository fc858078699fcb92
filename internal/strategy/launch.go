package strategy

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"devlink-mcp-server/internal/automation"
)

// LaunchAdapter spawns a browser with remote debugging enabled, waits for its
// endpoint and attaches. The spawned process is owned by the returned handle.
type LaunchAdapter struct {
	Dial Dialer
}

func (a *LaunchAdapter) Name() string { return Launch }

func (a *LaunchAdapter) Attach(ctx context.Context, p Params) (*Attachment, error) {
	entry, err := entryURL(p)
	if err != nil {
		return nil, err
	}

	l := newLauncher(p)
	ws, err := launchWithContext(ctx, l)
	if err != nil {
		return nil, err
	}

	h, err := a.Dial(ctx, automation.DialOptions{
		Endpoint: ws,
		Launcher: l,
		URL:      entry,
		Stealth:  p.Stealth,
	})
	if err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("attach launched browser: %w", err)
	}
	log.Printf("[strategy] launched browser at %s", ws)
	return finish(ctx, h), nil
}

func newLauncher(p Params) *launcher.Launcher {
	l := launcher.New().Headless(p.IsHeadless())
	if p.Binary != "" {
		l = l.Bin(p.Binary)
	}
	if p.Port != 0 {
		l = l.Set(flags.RemoteDebuggingPort, strconv.Itoa(p.Port))
	}
	if p.ProjectPath != "" {
		l = l.WorkingDir(p.ProjectPath)
	}
	for _, rawFlag := range p.Args {
		flagStr := strings.TrimLeft(rawFlag, "-")
		name, val, hasVal := strings.Cut(flagStr, "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

// launchWithContext bounds Launch by ctx. A launch that finishes after ctx is
// done has its process reaped in the background.
func launchWithContext(ctx context.Context, l *launcher.Launcher) (string, error) {
	type result struct {
		ws  string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ws, err := l.Launch()
		ch <- result{ws, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("launch browser: %w", r.err)
		}
		return r.ws, nil
	case <-ctx.Done():
		go func() {
			<-ch
			l.Kill()
			l.Cleanup()
		}()
		return "", fmt.Errorf("launch browser: %w", ctx.Err())
	}
}

// entryURL picks the page to open: an explicit URL, else the project's index.html.
func entryURL(p Params) (string, error) {
	if p.ProjectPath != "" {
		info, err := os.Stat(p.ProjectPath)
		if err != nil {
			return "", fmt.Errorf("project path: %w", err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("project path %s is not a directory", p.ProjectPath)
		}
	}
	if p.URL != "" {
		return p.URL, nil
	}
	if p.ProjectPath == "" {
		return "", nil
	}
	index := filepath.Join(p.ProjectPath, "index.html")
	if _, err := os.Stat(index); err != nil {
		return "", nil
	}
	abs, err := filepath.Abs(index)
	if err != nil {
		return "", nil
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
