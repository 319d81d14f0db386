package etl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// ── Source ──────────────────────────────────────────────────
// A Source opens a data location as a stream of raw lines.
// Implementations live in etl/sources/, one file per scheme.

// RawLine is one physical line of input without its terminator.
type RawLine struct {
	Number int    // 1-based
	Text   string // "\n" and a preceding "\r" are stripped
}

// LineSource is a forward-only, single-pass iterator over raw lines.
//
//	for src.Next() {
//	    line := src.Line()
//	}
//	if err := src.Err(); err != nil { ... }
type LineSource interface {
	// Next advances to the next line. It returns false at EOF or on error.
	Next() bool
	// Line returns the current line; valid after Next returned true.
	Line() RawLine
	// Err returns the first non-EOF read error.
	Err() error
	// Close releases the underlying reader. Safe to call twice.
	Close() error
	// Name identifies the input for diagnostics.
	Name() string
}

// SourceSpec describes a registered source.
type SourceSpec struct {
	Scheme string `json:"scheme"` // "file", "http", ...
	Label  string `json:"label"`
}

// Source is the interface every data source must implement.
type Source interface {
	Spec() SourceSpec
	Open(ctx context.Context, location string) (LineSource, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Source{}
)

// RegisterSource registers a source under its scheme.
// Called from init() in each source implementation file.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[s.Spec().Scheme] = s
}

// GetSource returns the source registered for scheme.
func GetSource(scheme string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[scheme]
	if !ok {
		return nil, fmt.Errorf("unknown source scheme: %q", scheme)
	}
	return s, nil
}

// ListSources returns the specs of all registered sources.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	return specs
}

// OpenLines resolves location to a registered source and opens it.
// Any failure is a *FatalIOError.
func OpenLines(ctx context.Context, location string) (LineSource, error) {
	src, err := GetSource(SchemeOf(location))
	if err != nil {
		schemes := make([]string, 0)
		for _, spec := range ListSources() {
			schemes = append(schemes, spec.Scheme)
		}
		sort.Strings(schemes)
		return nil, &FatalIOError{Source: location, Err: fmt.Errorf("%w (registered: %s)", err, strings.Join(schemes, ", "))}
	}
	ls, err := src.Open(ctx, location)
	if err != nil {
		var fe *FatalIOError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &FatalIOError{Source: location, Err: err}
	}
	return ls, nil
}

// SchemeOf returns the URL scheme of location, or "file" for plain paths.
func SchemeOf(location string) string {
	if i := strings.Index(location, "://"); i > 0 {
		return strings.ToLower(location[:i])
	}
	return "file"
}

// ── Reader-backed LineSource ───────────────────────────────

type readerLines struct {
	name   string
	rc     io.ReadCloser
	br     *bufio.Reader
	cur    RawLine
	n      int
	err    error
	done   bool
	closed bool
}

// NewLineReader wraps rc as a LineSource. Only the current line is held
// in memory.
func NewLineReader(name string, rc io.ReadCloser) LineSource {
	return &readerLines{name: name, rc: rc, br: bufio.NewReaderSize(rc, 64*1024)}
}

func (r *readerLines) Next() bool {
	if r.done {
		return false
	}
	text, err := r.br.ReadString('\n')
	if err != nil && err != io.EOF {
		r.err = &FatalIOError{Source: r.name, Line: r.n, Err: err}
		r.done = true
		return false
	}
	if err == io.EOF {
		r.done = true
		if text == "" {
			return false
		}
	}
	text = strings.TrimSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\r")
	r.n++
	r.cur = RawLine{Number: r.n, Text: text}
	return true
}

func (r *readerLines) Line() RawLine { return r.cur }
func (r *readerLines) Err() error { return r.err }
func (r *readerLines) Name() string { return r.name }

func (r *readerLines) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rc.Close()
}
