package etl

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ── Run summary ────────────────────────────────────────────

// Run statuses.
const (
	StatusSuccess = "success" // every line decoded and delivered
	StatusPartial = "partial" // run completed with decode or delivery failures
	StatusError   = "error"   // run aborted by a fatal error
)

// Failure is one non-fatal problem recorded during a run.
type Failure struct {
	Line    int      `json:"line"`
	Stage   string   `json:"stage"` // "decode" | "dispatch"
	Sink    SinkKind `json:"sink,omitempty"`
	Fields  []string `json:"fields,omitempty"`
	Message string   `json:"message"`
}

// RunSummary aggregates the outcome of one run.
type RunSummary struct {
	RunID           string           `json:"runId"`
	Schema          string           `json:"schema"`
	Source          string           `json:"source"`
	LinesRead       int              `json:"linesRead"`
	Decoded         int              `json:"decoded"`
	DecodeFailed    int              `json:"decodeFailed"`
	Delivered       map[SinkKind]int `json:"delivered"`
	DeliveryFailed  map[SinkKind]int `json:"deliveryFailed"`
	Failures        []Failure        `json:"failures,omitempty"`
	OmittedFailures int              `json:"omittedFailures,omitempty"`
	StartedAt       time.Time        `json:"startedAt"`
	FinishedAt      time.Time        `json:"finishedAt"`
	Duration        time.Duration    `json:"duration"`

	maxFailures int
}

// NewRunSummary starts a summary for schema reading from source.
func NewRunSummary(schema *Schema, source string) *RunSummary {
	s := &RunSummary{
		RunID:          uuid.NewString(),
		Schema:         schema.Name,
		Source:         source,
		Delivered:      make(map[SinkKind]int),
		DeliveryFailed: make(map[SinkKind]int),
		StartedAt:      time.Now(),
		maxFailures:    defaultMaxFailures,
	}
	for _, k := range schema.Targets() {
		s.Delivered[k] = 0
		s.DeliveryFailed[k] = 0
	}
	return s
}

// Status reports success when nothing failed and partial otherwise.
func (s *RunSummary) Status() string {
	if s.DecodeFailed > 0 {
		return StatusPartial
	}
	for _, n := range s.DeliveryFailed {
		if n > 0 {
			return StatusPartial
		}
	}
	return StatusSuccess
}

// TotalDelivered sums successful deliveries across sinks.
func (s *RunSummary) TotalDelivered() int {
	n := 0
	for _, v := range s.Delivered {
		n += v
	}
	return n
}

// TotalDeliveryFailed sums failed deliveries across sinks.
func (s *RunSummary) TotalDeliveryFailed() int {
	n := 0
	for _, v := range s.DeliveryFailed {
		n += v
	}
	return n
}

func (s *RunSummary) addFailure(f Failure) {
	if s.maxFailures > 0 && len(s.Failures) >= s.maxFailures {
		s.OmittedFailures++
		return
	}
	s.Failures = append(s.Failures, f)
}

func (s *RunSummary) finish() {
	s.FinishedAt = time.Now()
	s.Duration = s.FinishedAt.Sub(s.StartedAt)
}

// ── Engine ─────────────────────────────────────────────────
// Orchestrates: source lines → decode → dispatch, one record at a time.

const (
	defaultBuffer      = 64
	defaultMaxFailures = 1000
)

// Engine drives a single-pass run. Reading and decoding happen on a
// producer goroutine; dispatch happens on the calling goroutine. The two
// are joined by a channel of Buffer records, which bounds memory when a
// sink is slow and keeps delivery in input order.
type Engine struct {
	Dispatcher  *Dispatcher
	Logger      *zap.Logger
	Buffer      int // in-flight records; defaults to 64
	MaxFailures int // failure details kept in the summary; defaults to 1000
}

// Run processes every line of src. Per-line and per-sink failures are
// recorded in the summary and never stop the run. A read error on src is
// returned as a *FatalIOError together with the partial summary.
func (e *Engine) Run(ctx context.Context, schema *Schema, src LineSource) (*RunSummary, error) {
	summary := NewRunSummary(schema, src.Name())
	if e.MaxFailures != 0 {
		summary.maxFailures = e.MaxFailures
	}
	log := e.logger().With(
		zap.String("runId", summary.RunID),
		zap.String("schema", schema.Name),
		zap.String("source", src.Name()),
	)
	log.Info("run started", zap.String("destination", string(schema.Destination)), zap.String("storage", schema.StorageName))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	buffer := e.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	recs := make(chan Record, buffer)
	var readErr error

	go func() {
		defer close(recs)
		for src.Next() {
			rec := Decode(src.Line(), schema)
			select {
			case recs <- rec:
			case <-runCtx.Done():
				return
			}
		}
		readErr = src.Err()
	}()

	for rec := range recs {
		if runCtx.Err() != nil {
			break
		}
		e.handle(runCtx, log, schema, rec, summary)
	}
	cancel()
	for range recs {
	}

	summary.finish()
	fields := []zap.Field{
		zap.Int("linesRead", summary.LinesRead),
		zap.Int("decoded", summary.Decoded),
		zap.Int("decodeFailed", summary.DecodeFailed),
		zap.Int("delivered", summary.TotalDelivered()),
		zap.Int("deliveryFailed", summary.TotalDeliveryFailed()),
		zap.Duration("duration", summary.Duration),
	}
	if readErr != nil {
		log.Error("run aborted", append(fields, zap.Error(readErr))...)
		return summary, readErr
	}
	if err := ctx.Err(); err != nil {
		log.Warn("run cancelled", append(fields, zap.Error(err))...)
		return summary, err
	}
	log.Info("run finished", append(fields, zap.String("status", summary.Status()))...)
	return summary, nil
}

func (e *Engine) handle(ctx context.Context, log *zap.Logger, schema *Schema, rec Record, summary *RunSummary) {
	summary.LinesRead++

	if !rec.OK() {
		summary.DecodeFailed++
		errs := rec.Errors()
		msgs := make([]string, len(errs))
		for i, fe := range errs {
			msgs[i] = fe.Error()
		}
		log.Warn("record not decoded",
			zap.Int("line", rec.Line),
			zap.Strings("fields", rec.FailedFields()),
			zap.Strings("errors", msgs),
		)
		summary.addFailure(Failure{
			Line:    rec.Line,
			Stage:   "decode",
			Fields:  rec.FailedFields(),
			Message: strings.Join(msgs, "; "),
		})
		return
	}
	summary.Decoded++

	res := e.Dispatcher.Dispatch(ctx, rec, schema)
	for _, o := range res.Outcomes {
		if o.Err == nil {
			summary.Delivered[o.Sink]++
			continue
		}
		summary.DeliveryFailed[o.Sink]++
		log.Warn("delivery failed",
			zap.Int("line", rec.Line),
			zap.String("sink", string(o.Sink)),
			zap.Error(o.Err),
		)
		summary.addFailure(Failure{
			Line:    rec.Line,
			Stage:   "dispatch",
			Sink:    o.Sink,
			Message: o.Err.Error(),
		})
	}
}

// Preview decodes up to limit lines of src without dispatching them.
func (e *Engine) Preview(ctx context.Context, schema *Schema, src LineSource, limit int) ([]Record, error) {
	var records []Record
	for (limit <= 0 || len(records) < limit) && src.Next() {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		records = append(records, Decode(src.Line(), schema))
	}
	return records, src.Err()
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}
