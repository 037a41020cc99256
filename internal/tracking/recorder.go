package tracking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai-agent/internal/metrics"
)

// Recorder opens runs against a Backend. It is safe for concurrent use.
type Recorder struct {
	backend Backend
	timeout time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewRecorder(backend Backend, timeout time.Duration, log *slog.Logger, m *metrics.Metrics) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{
		backend: backend,
		timeout: timeout,
		log:     log.With("component", "tracking", "backend", backend.Name()),
		metrics: m,
	}
}

// Run is one tracked generation. Close must be called exactly once; extra
// calls are ignored.
type Run struct {
	rec       *Recorder
	ctx       context.Context
	params    Params
	backendID string
	started   bool
	once      sync.Once
}

// Open starts a run. It never fails: if the backend rejects the run the
// returned Run still works and Close becomes a local no-op.
func (r *Recorder) Open(ctx context.Context, p Params) *Run {
	if p.RunID == "" {
		p.RunID = uuid.NewString()
	}
	run := &Run{rec: r, ctx: context.WithoutCancel(ctx), params: p}

	startCtx, cancel := context.WithTimeout(run.ctx, r.timeout)
	defer cancel()
	id, err := r.backend.StartRun(startCtx, p)
	if err != nil {
		r.metrics.TrackingError("start")
		r.log.Warn("tracking start failed", "run_id", p.RunID, "err", err)
		return run
	}
	run.backendID = id
	run.started = true
	return run
}

// ID returns the backend's run id, or the locally generated id when the
// backend never acknowledged the run.
func (run *Run) ID() string {
	if run.backendID != "" {
		return run.backendID
	}
	return run.params.RunID
}

// Close records the outcome and ends the run. The request context may
// already be cancelled; Close still gets TrackingTimeout to finish.
func (run *Run) Close(o Outcome) {
	run.once.Do(func() {
		if !run.started {
			return
		}
		r := run.rec
		ctx, cancel := context.WithTimeout(run.ctx, r.timeout)
		defer cancel()

		if err := r.backend.LogRun(ctx, run.backendID, run.params, o); err != nil {
			r.metrics.TrackingError("log")
			r.log.Warn("tracking log failed", "run_id", run.backendID, "err", err)
		}
		if err := r.backend.EndRun(ctx, run.backendID, o.Status); err != nil {
			r.metrics.TrackingError("end")
			r.log.Warn("tracking end failed", "run_id", run.backendID, "err", err)
		}
	})
}
