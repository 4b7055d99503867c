// Package scheduler drives periodic jobs with cron specs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rustyeddy/swingtrader/internal/logging"
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.s.Debugw("cron: "+msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.s.Errorw("cron: "+msg, append(kv, "error", err)...)
}

// Runner runs jobs on cron specs (seconds field enabled). A job still
// running when its next activation comes due is skipped, so ticks never
// overlap; panics are recovered and logged.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context

	mu    sync.Mutex
	names map[cron.EntryID]string
}

func New(baseCtx context.Context, loc *time.Location, logger *zap.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	logger = logging.OrNop(logger)
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{s: logger.Sugar()}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: baseCtx,
		names:   make(map[cron.EntryID]string),
	}
}

// Add registers job under name. The job receives the runner's base context
// and the activation time.
func (r *Runner) Add(name, spec string, job func(ctx context.Context, now time.Time)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() {
		start := time.Now()
		job(r.baseCtx, start)
		r.logger.Debug("scheduler: job done",
			zap.String("job", name),
			zap.Duration("took", time.Since(start)),
		)
	})
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.names[id] = name
	r.mu.Unlock()
	return id, nil
}

func (r *Runner) Start() {
	r.logger.Info("scheduler: started", zap.Int("jobs", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop stops scheduling and blocks until running jobs finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("scheduler: stopped")
}

// Next returns the next activation of every job, keyed by job name. It is
// zero until Start.
func (r *Runner) Next() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]time.Time, len(r.names))
	for _, e := range r.cron.Entries() {
		out[r.names[e.ID]] = e.Next
	}
	return out
}

// ValidateSpec reports whether spec parses with the runner's parser.
func ValidateSpec(spec string) error {
	p := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	_, err := p.Parse(spec)
	return err
}
