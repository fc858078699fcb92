// Package recorder writes connection lifecycle traces as rotating JSONL files.
package recorder

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"devlink-mcp-server/internal/connection"
)

const (
	DefaultMaxFiles = 3
	TraceDir        = "data/traces"
)

// Event is one line of a trace file.
type Event struct {
	Timestamp    time.Time   `json:"ts"`
	Type         string      `json:"type"`
	ConnectionID string      `json:"connection_id,omitempty"`
	Data         interface{} `json:"data,omitempty"`
}

// Recorder keeps one trace file per connect attempt chain and retains the
// newest maxFiles of them.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	basePath string
	maxFiles int
}

// NewRecorder creates basePath if needed.
func NewRecorder(basePath string, maxFiles int) (*Recorder, error) {
	if basePath == "" {
		basePath = TraceDir
	}
	if maxFiles < 1 {
		maxFiles = DefaultMaxFiles
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{basePath: basePath, maxFiles: maxFiles}, nil
}

// Start opens a new trace file labelled with label, rotating old ones.
func (r *Recorder) Start(label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startLocked(label)
}

func (r *Recorder) startLocked(label string) error {
	_ = r.closeLocked()
	if err := r.rotate(); err != nil {
		return fmt.Errorf("rotate traces: %w", err)
	}
	name := fmt.Sprintf("trace_%s_%d.jsonl", label, time.Now().UnixMilli())
	f, err := os.Create(filepath.Join(r.basePath, name))
	if err != nil {
		return err
	}
	r.file = f
	r.encoder = json.NewEncoder(f)
	return nil
}

// Log appends an event to the open trace. Without an open trace it is a no-op.
func (r *Recorder) Log(eventType, connectionID string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logLocked(Event{Timestamp: time.Now(), Type: eventType, ConnectionID: connectionID, Data: data})
}

func (r *Recorder) logLocked(ev Event) {
	if r.encoder == nil {
		return
	}
	if err := r.encoder.Encode(ev); err != nil {
		log.Printf("[recorder] write trace: %v", err)
	}
}

// Trace implements connection.Tracer. The first attempt of a connect opens a
// new file; exhaustion and teardown close it after writing.
func (r *Recorder) Trace(ev connection.TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder == nil && ev.Type == connection.TraceAttempt {
		if err := r.startLocked("connect"); err != nil {
			log.Printf("[recorder] start trace: %v", err)
			return
		}
	}
	r.logLocked(Event{Timestamp: ev.Time, Type: ev.Type, ConnectionID: ev.ConnectionID, Data: ev})

	switch {
	case ev.Type == connection.TraceExhaust:
		_ = r.closeLocked()
	case ev.Type == connection.TraceTeardown && ev.Reason != connection.ReasonRejected:
		_ = r.closeLocked()
	}
}

// rotate deletes the oldest traces so that, with the file about to be
// created, at most maxFiles remain.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}
	type trace struct {
		name string
		mod  time.Time
	}
	var traces []trace
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, trace{e.Name(), info.ModTime()})
	}
	sort.Slice(traces, func(i, j int) bool { return traces[i].mod.After(traces[j].mod) })

	for i := r.maxFiles - 1; i < len(traces); i++ {
		if i < 0 {
			continue
		}
		_ = os.Remove(filepath.Join(r.basePath, traces[i].name))
	}
	return nil
}

// Close finishes the current trace.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *Recorder) closeLocked() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.encoder = nil
	return err
}
