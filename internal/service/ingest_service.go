package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"textingest/internal/config"
	"textingest/internal/domain"
	"textingest/internal/etl"
	_ "textingest/internal/etl/sources"
)

// ErrAlreadyRunning is returned when a run for the same schema and data
// location is still in flight.
var ErrAlreadyRunning = errors.New("a run for this schema and data is already in progress")

// ErrHistoryDisabled is returned by ListRuns when no run store is configured.
var ErrHistoryDisabled = errors.New("run history is disabled (HISTORY_DB=off)")

// Run triggers recorded in history.
const (
	TriggerManual   = "manual"
	TriggerWatch    = "watch"
	TriggerSchedule = "schedule"
	TriggerMCP      = "mcp"
)

const watchDebounce = 500 * time.Millisecond

// ─────────────────────────────────────────────────────────────
// IngestService: schema, lines, decode, dispatch, history
// ─────────────────────────────────────────────────────────────

// IngestService runs ingestion jobs and owns their triggers.
type IngestService struct {
	cfg     config.Config
	sinks   SinkOpener
	runs    domain.RunLogStore // nil disables history
	emitter EventEmitter
	logger  *zap.Logger
	running runningGuard

	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// Deps holds the collaborators of an IngestService.
type Deps struct {
	Config  config.Config
	Sinks   SinkOpener // defaults to ConnSinkOpener
	Runs    domain.RunLogStore
	Emitter EventEmitter
	Logger  *zap.Logger
}

// NewIngestService creates an IngestService ready for use.
func NewIngestService(deps Deps) *IngestService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sinks := deps.Sinks
	if sinks == nil {
		sinks = ConnSinkOpener{Config: deps.Config, Logger: logger}
	}
	emitter := deps.Emitter
	if emitter == nil {
		emitter = LogEmitter{Logger: logger}
	}
	return &IngestService{
		cfg:     deps.Config,
		sinks:   sinks,
		runs:    deps.Runs,
		emitter: emitter,
		logger:  logger,
	}
}

// RunRequest names the inputs of one run.
type RunRequest struct {
	SchemaPath string `json:"schemaPath"`
	DataPath   string `json:"dataPath"`
	Trigger    string `json:"trigger,omitempty"`
}

func (r RunRequest) key() string {
	return r.SchemaPath + "\x00" + r.DataPath
}

// ── Run ────────────────────────────────────────────────────

// Run executes one ingestion synchronously. A schema error or a data
// source that cannot be opened returns before any sink is contacted. The
// summary is non-nil whenever reading started, including on a fatal read
// error part way through.
func (s *IngestService) Run(ctx context.Context, req RunRequest) (*etl.RunSummary, error) {
	if req.Trigger == "" {
		req.Trigger = TriggerManual
	}
	if !s.running.TryLock(req.key()) {
		s.emitter.Emit(ctx, EventRunSkipped, req)
		return nil, ErrAlreadyRunning
	}
	defer s.running.Unlock(req.key())

	start := time.Now()
	schema, err := etl.LoadSchema(req.SchemaPath)
	if err != nil {
		s.record(req, nil, nil, start, err)
		return nil, err
	}

	src, err := etl.OpenLines(ctx, req.DataPath)
	if err != nil {
		s.record(req, schema, nil, start, err)
		return nil, err
	}
	defer src.Close()

	codec, err := etl.CodecFor(s.cfg.QueueEncoding)
	if err != nil {
		s.record(req, schema, nil, start, err)
		return nil, err
	}

	sinks := s.sinks.Open(ctx, schema)
	defer func() {
		if err := sinks.Close(); err != nil {
			s.logger.Warn("closing sinks", zap.Error(err))
		}
	}()

	engine := &etl.Engine{
		Dispatcher: &etl.Dispatcher{
			Sinks:   sinks,
			Codec:   codec,
			Timeout: s.cfg.SinkTimeout,
		},
		Logger: s.logger,
		Buffer: s.cfg.Buffer,
	}
	summary, runErr := engine.Run(ctx, schema, src)
	s.record(req, schema, summary, start, runErr)

	s.emitter.Emit(ctx, EventRunCompleted, map[string]any{
		"runId":   summary.RunID,
		"schema":  schema.Name,
		"source":  req.DataPath,
		"trigger": req.Trigger,
		"status":  runStatus(summary, runErr),
	})
	return summary, runErr
}

// ── Validate / Preview ─────────────────────────────────────

// Validate loads and validates a schema file.
func (s *IngestService) Validate(schemaPath string) (*etl.Schema, error) {
	return etl.LoadSchema(schemaPath)
}

// PreviewResult is the response from Preview.
type PreviewResult struct {
	Schema  *etl.Schema  `json:"schema"`
	Records []etl.Record `json:"records"`
}

// Preview decodes the first limit lines of dataPath without dispatching.
func (s *IngestService) Preview(ctx context.Context, schemaPath, dataPath string, limit int) (*PreviewResult, error) {
	schema, err := etl.LoadSchema(schemaPath)
	if err != nil {
		return nil, err
	}
	src, err := etl.OpenLines(ctx, dataPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	engine := &etl.Engine{Logger: s.logger}
	records, err := engine.Preview(ctx, schema, src, limit)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Schema: schema, Records: records}, nil
}

// ── History ────────────────────────────────────────────────

// ListRuns returns the most recent runs first.
func (s *IngestService) ListRuns(limit int) ([]domain.RunLog, error) {
	if s.runs == nil {
		return nil, ErrHistoryDisabled
	}
	return s.runs.ListRunLogs(limit)
}

func (s *IngestService) record(req RunRequest, schema *etl.Schema, summary *etl.RunSummary, start time.Time, runErr error) {
	if s.runs == nil {
		return
	}
	l := &domain.RunLog{
		SchemaPath: req.SchemaPath,
		DataPath:   req.DataPath,
		Trigger:    req.Trigger,
		StartedAt:  start,
		FinishedAt: time.Now(),
		Status:     runStatus(summary, runErr),
	}
	if schema != nil {
		l.Schema = schema.Name
	}
	if summary != nil {
		l.ID = summary.RunID
		l.StartedAt = summary.StartedAt
		l.FinishedAt = summary.FinishedAt
		l.LinesRead = summary.LinesRead
		l.Decoded = summary.Decoded
		l.DecodeFailed = summary.DecodeFailed
		l.Delivered = summary.TotalDelivered()
		l.DeliveryFailed = summary.TotalDeliveryFailed()
	}
	if runErr != nil {
		l.Error = runErr.Error()
	}
	if err := s.runs.CreateRunLog(l); err != nil {
		s.logger.Warn("recording run history", zap.Error(err))
	}
}

func runStatus(summary *etl.RunSummary, runErr error) string {
	if runErr != nil || summary == nil {
		return etl.StatusError
	}
	return summary.Status()
}

// ── Triggers (fsnotify + cron) ────────────────────────────

// Watch runs req once, then again every time the schema or data file is
// written. Bursts of events are debounced. It blocks until ctx is
// cancelled or the watcher fails.
func (s *IngestService) Watch(ctx context.Context, req RunRequest) error {
	if etl.SchemeOf(req.DataPath) != "file" {
		return fmt.Errorf("watch: %q is not a local file", req.DataPath)
	}
	req.Trigger = TriggerWatch

	files := map[string]bool{}
	for _, p := range []string{req.SchemaPath, req.DataPath} {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("watch: bad path %q: %w", p, err)
		}
		files[abs] = true
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	watchedDirs := map[string]bool{}
	for abs := range files {
		dir := filepath.Dir(abs)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch: add %q: %w", dir, err)
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.stopLocked()
	s.watcher, s.watchCancel = watcher, cancel
	s.mu.Unlock()
	defer s.Stop()

	s.logger.Info("watching", zap.String("schema", req.SchemaPath), zap.String("data", req.DataPath))
	s.runLogged(watchCtx, req)

	// pending counts debounce callbacks that are scheduled or executing.
	var (
		timer   *time.Timer
		pending sync.WaitGroup
	)
	defer func() {
		cancel()
		if timer != nil && timer.Stop() {
			pending.Done()
		}
		pending.Wait()
		s.WaitRunning(context.Background())
	}()
	for {
		select {
		case <-watchCtx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			if !files[abs] {
				continue
			}
			if timer != nil && timer.Stop() {
				pending.Done()
			}
			pending.Add(1)
			timer = time.AfterFunc(watchDebounce, func() {
				defer pending.Done()
				s.logger.Info("file changed", zap.String("path", abs))
				s.runLogged(watchCtx, req)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// Schedule runs req on a standard five-field cron expression until ctx
// is cancelled.
func (s *IngestService) Schedule(ctx context.Context, expr string, req RunRequest) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("schedule: invalid cron expression %q: %w", expr, err)
	}
	req.Trigger = TriggerSchedule

	schedCtx, cancel := context.WithCancel(ctx)
	c := cron.New()
	if _, err := c.AddFunc(expr, func() { s.runLogged(schedCtx, req) }); err != nil {
		cancel()
		return fmt.Errorf("schedule: %w", err)
	}

	s.mu.Lock()
	s.stopLocked()
	s.cronSched, s.watchCancel = c, cancel
	s.mu.Unlock()

	c.Start()
	s.logger.Info("scheduled", zap.String("cron", expr), zap.String("schema", req.SchemaPath), zap.String("data", req.DataPath))
	<-schedCtx.Done()
	s.Stop()
	s.WaitRunning(context.Background())
	return nil
}

func (s *IngestService) runLogged(ctx context.Context, req RunRequest) {
	if ctx.Err() != nil {
		return
	}
	summary, err := s.Run(ctx, req)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		s.logger.Info("run skipped, previous run still in progress")
	case err != nil && !errors.Is(err, context.Canceled):
		s.logger.Error("run failed", zap.String("trigger", req.Trigger), zap.Error(err))
	case summary != nil:
		s.logger.Info("run completed",
			zap.String("trigger", req.Trigger),
			zap.String("status", summary.Status()),
			zap.Int("linesRead", summary.LinesRead),
		)
	}
}

// WaitRunning blocks until all in-flight runs finish or ctx is cancelled.
func (s *IngestService) WaitRunning(ctx context.Context) {
	s.running.WaitAll(ctx)
}

// Stop tears down any active watcher or scheduler. Safe to call twice.
func (s *IngestService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *IngestService) stopLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		<-s.cronSched.Stop().Done()
		s.cronSched = nil
	}
}
