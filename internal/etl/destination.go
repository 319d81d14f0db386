package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// ── Destination ────────────────────────────────────────────
// Sinks receive decoded records one at a time. The dispatcher owns
// serialization; sinks only move bytes or documents.

// Publisher is the queue sink contract.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
}

// Inserter is the repository sink contract.
type Inserter interface {
	Insert(ctx context.Context, collection string, doc Document) error
}

// Sinks holds the connections acquired for one run.
type Sinks struct {
	Queue      Publisher
	Repository Inserter
	closers    []io.Closer
}

// OnClose registers c to be closed by Close.
func (s *Sinks) OnClose(c io.Closer) {
	s.closers = append(s.closers, c)
}

// Close releases every registered connection, in reverse order.
func (s *Sinks) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Unavailable is a sink whose connection could not be acquired. Every
// call fails with ErrSinkConnection so the run keeps going.
type Unavailable struct {
	Err error
}

func (u Unavailable) Publish(context.Context, string, Message) error {
	return fmt.Errorf("%w: %v", ErrSinkConnection, u.Err)
}

func (u Unavailable) Insert(context.Context, string, Document) error {
	return fmt.Errorf("%w: %v", ErrSinkConnection, u.Err)
}

// SinkOutcome is the result of one sink attempt.
type SinkOutcome struct {
	Sink SinkKind
	Err  error // nil on acknowledgment, otherwise *SinkError
}

// DispatchResult lists the attempted sinks in routing order.
type DispatchResult struct {
	Outcomes []SinkOutcome
}

// Failed returns the outcomes that did not succeed.
func (r DispatchResult) Failed() []SinkOutcome {
	var out []SinkOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Dispatcher routes records to the sinks named by the schema destination.
// It is not safe for concurrent use; the engine calls it from one goroutine
// so each sink sees records in input order.
type Dispatcher struct {
	Sinks   *Sinks
	Codec   Codec         // defaults to JSONCodec
	Timeout time.Duration // per sink call; 0 means no extra deadline
	NewID   func() string // message IDs; defaults to uuid.NewString
}

// Dispatch delivers rec to every sink the schema routes to. A failure on
// one sink does not prevent the attempt on the other. Nothing is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, rec Record, schema *Schema) DispatchResult {
	var res DispatchResult

	doc, docErr := NewDocument(rec, schema)
	for _, target := range schema.Targets() {
		if docErr != nil {
			res.Outcomes = append(res.Outcomes, SinkOutcome{Sink: target, Err: &SinkError{Kind: ErrSinkSerialization, Sink: target, Line: rec.Line, Err: docErr}})
			continue
		}
		var err error
		switch target {
		case SinkQueue:
			err = d.publish(ctx, rec.Line, schema.StorageName, doc)
		case SinkRepository:
			err = d.insert(ctx, rec.Line, schema.StorageName, doc)
		}
		res.Outcomes = append(res.Outcomes, SinkOutcome{Sink: target, Err: classify(target, rec.Line, err)})
	}
	return res
}

func (d *Dispatcher) publish(ctx context.Context, line int, queue string, doc Document) error {
	if d.Sinks == nil || d.Sinks.Queue == nil {
		return fmt.Errorf("%w: queue sink not configured", ErrSinkConnection)
	}
	codec := d.Codec
	if codec == nil {
		codec = JSONCodec{}
	}
	body, err := codec.Encode(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkSerialization, err)
	}
	newID := d.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	msg := Message{ID: newID(), Line: line, ContentType: codec.ContentType(), Body: body}

	ctx, cancel := d.callContext(WithLine(ctx, line))
	defer cancel()
	return d.Sinks.Queue.Publish(ctx, queue, msg)
}

func (d *Dispatcher) insert(ctx context.Context, line int, collection string, doc Document) error {
	if d.Sinks == nil || d.Sinks.Repository == nil {
		return fmt.Errorf("%w: repository sink not configured", ErrSinkConnection)
	}
	ctx, cancel := d.callContext(WithLine(ctx, line))
	defer cancel()
	return d.Sinks.Repository.Insert(ctx, collection, doc)
}

func (d *Dispatcher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.Timeout > 0 {
		return context.WithTimeout(ctx, d.Timeout)
	}
	return context.WithCancel(ctx)
}

type lineKey struct{}

// WithLine returns a context carrying the source line number of the
// record being delivered.
func WithLine(ctx context.Context, line int) context.Context {
	return context.WithValue(ctx, lineKey{}, line)
}

// LineFromContext returns the line number stored by WithLine.
func LineFromContext(ctx context.Context) (int, bool) {
	line, ok := ctx.Value(lineKey{}).(int)
	return line, ok
}

// classify wraps a sink error into a *SinkError. Sinks may tag errors with
// one of the ErrSink* kinds; untagged timeouts count as connection failures
// and anything else as a rejection.
func classify(sink SinkKind, line int, err error) error {
	if err == nil {
		return nil
	}
	var se *SinkError
	if errors.As(err, &se) {
		se.Sink, se.Line = sink, line
		return se
	}
	kind := ErrSinkRejected
	switch {
	case errors.Is(err, ErrSinkConnection):
		kind = ErrSinkConnection
	case errors.Is(err, ErrSinkSerialization):
		kind = ErrSinkSerialization
	case errors.Is(err, ErrSinkRejected):
		kind = ErrSinkRejected
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrSinkConnection
	}
	return &SinkError{Kind: kind, Sink: sink, Line: line, Err: err}
}
