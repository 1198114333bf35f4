package renewal

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-transcript-intake/core"
	"github.com/robfig/cron/v3"
)

// Scheduler fires Renewer ticks on a standard cron expression, in UTC.
type Scheduler struct {
	cron      *cron.Cron
	renewer   *Renewer
	spec      string
	entry     cron.EntryID
	timeout   time.Duration
	telemetry core.Telemetry
}

func NewScheduler(renewer *Renewer, spec string, telemetry core.Telemetry) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if _, err := core.SchedulePeriod(spec); err != nil {
		return nil, err
	}
	if telemetry.Logger == nil {
		telemetry = core.NewTelemetry(nil, telemetry.Metrics)
	}
	logger := cronLogger{telemetry: telemetry}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		renewer:   renewer,
		spec:      spec,
		telemetry: telemetry,
	}
	if renewer != nil {
		s.timeout = renewer.cfg.Subscription.RenewTimeout
	}
	entry, err := s.cron.AddFunc(spec, s.run)
	if err != nil {
		return nil, core.ConfigError("renewal: schedule rejected", map[string]any{
			"schedule": spec,
			"error":    err.Error(),
		})
	}
	s.entry = entry
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.telemetry.LogInfo(context.Background(), "renewal scheduler started", map[string]any{
		"schedule": s.spec,
		"next_run": s.Next().Format(time.RFC3339),
	})
}

// Stop halts the schedule and returns a context that is done once an
// in-flight tick has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Next reports the next scheduled tick. It is zero until Start is called.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) run() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	// Tick logs its own failures; the next tick retries.
	_, _ = s.renewer.Tick(ctx)
}

type cronLogger struct {
	telemetry core.Telemetry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.telemetry.LogInfo(context.Background(), "cron: "+msg, pairs(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := pairs(keysAndValues)
	if err != nil {
		fields["error"] = err.Error()
	}
	l.telemetry.LogError(context.Background(), "cron: "+msg, fields)
}

func pairs(keysAndValues []interface{}) map[string]any {
	fields := make(map[string]any, len(keysAndValues)/2+1)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

var _ cron.Logger = cronLogger{}
