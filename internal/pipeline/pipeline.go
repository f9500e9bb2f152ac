// Package pipeline turns one raw sale event into a canonical record and
// delivers it to the ledger and the task board.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/recovery-sync/internal/ledger"
	"github.com/sells-group/recovery-sync/internal/model"
	"github.com/sells-group/recovery-sync/internal/monitoring"
	"github.com/sells-group/recovery-sync/internal/resilience"
	"github.com/sells-group/recovery-sync/internal/tasksync"
)

// Sink names used in reports, logs and metrics.
const (
	SinkLedger    = "ledger"
	SinkTaskBoard = "taskboard"
)

// Event sources.
const (
	SourceWebhook = "webhook"
	SourceImport  = "import"
)

// Sink report statuses.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// LedgerWriter is the relational sink.
type LedgerWriter interface {
	Upsert(ctx context.Context, lead model.Lead, byProduct bool) (*model.LeadRow, ledger.Outcome, error)
}

// TaskWriter is the task-board sink.
type TaskWriter interface {
	Sync(ctx context.Context, lead model.Lead) (*tasksync.Result, error)
}

// SinkReport is the outcome of one sink write.
type SinkReport struct {
	Status   string          `json:"status"`
	Outcome  string          `json:"outcome,omitempty"`
	ID       string          `json:"id,omitempty"`
	Kind     resilience.Kind `json:"kind,omitempty"`
	Error    string          `json:"error,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Result is the outcome of one unit of work.
type Result struct {
	EventID  string                `json:"event_id"`
	Lead     model.Lead            `json:"lead"`
	Rule     string                `json:"rule,omitempty"`
	Warnings []Warning             `json:"warnings,omitempty"`
	Sinks    map[string]SinkReport `json:"sinks"`
}

// Failed reports whether any sink write failed.
func (r *Result) Failed() bool {
	for _, s := range r.Sinks {
		if s.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Pipeline fans each canonical record out to both sinks.
type Pipeline struct {
	normalizer *Normalizer
	ledger     LedgerWriter
	tasks      TaskWriter
	log        *zap.Logger
}

// New creates a Pipeline. tasks may be nil when no task board is configured.
func New(normalizer *Normalizer, led LedgerWriter, tasks TaskWriter) *Pipeline {
	if normalizer == nil {
		normalizer = NewNormalizer()
	}
	return &Pipeline{
		normalizer: normalizer,
		ledger:     led,
		tasks:      tasks,
		log:        zap.L().With(zap.String("component", "pipeline")),
	}
}

// Normalizer returns the pipeline's normalizer.
func (p *Pipeline) Normalizer() *Normalizer { return p.normalizer }

// Process normalizes one raw event and writes it to both sinks. It never
// fails: sink failures are logged, counted and reported in the Result.
func (p *Pipeline) Process(ctx context.Context, raw any, project, source string) *Result {
	eventID := uuid.NewString()
	monitoring.EventsTotal.WithLabelValues(source).Inc()

	n := p.normalizer.Normalize(raw, project)
	log := p.log.With(
		zap.String("event_id", eventID),
		zap.String("source", source),
		zap.String("email", n.Lead.Email),
		zap.String("project", n.Lead.Project),
	)
	if len(n.Lead.ActionTags) == 0 {
		log.Debug("no action tag matched")
	} else {
		log.Info("event classified", zap.String("rule", string(n.Rule)), zap.Strings("tags", n.Lead.ActionTags))
	}
	for _, w := range n.Warnings {
		log.Warn("normalization gap", zap.String("kind", w.Kind), zap.String("detail", w.Detail))
	}
	monitoring.RecordTags(n.Lead.ActionTags)

	return &Result{
		EventID:  eventID,
		Lead:     n.Lead,
		Rule:     string(n.Rule),
		Warnings: n.Warnings,
		Sinks:    p.deliver(ctx, log, n.Lead, false, p.tasks != nil),
	}
}

// Deliver writes an already normalized lead, as the bulk importer does after
// merging a group. byProduct keys the ledger row by product, and withTasks
// controls whether the task board is written at all.
func (p *Pipeline) Deliver(ctx context.Context, lead model.Lead, byProduct, withTasks bool) map[string]SinkReport {
	log := p.log.With(
		zap.String("event_id", uuid.NewString()),
		zap.String("source", SourceImport),
		zap.String("email", lead.Email),
		zap.String("project", lead.Project),
	)
	monitoring.RecordTags(lead.ActionTags)
	return p.deliver(ctx, log, lead, byProduct, withTasks && p.tasks != nil)
}

// deliver runs both sink writes concurrently. The goroutines never return an
// error and recover their own panics, so one sink failing can neither cancel
// nor delay the other.
func (p *Pipeline) deliver(ctx context.Context, log *zap.Logger, lead model.Lead, byProduct, withTasks bool) map[string]SinkReport {
	var ledgerReport, taskReport SinkReport
	var g errgroup.Group

	g.Go(func() error {
		defer p.recoverSink(log, SinkLedger, monitoring.NewTimer(), &ledgerReport)
		ledgerReport = p.writeLedger(ctx, log, lead, byProduct)
		return nil
	})
	if withTasks {
		g.Go(func() error {
			defer p.recoverSink(log, SinkTaskBoard, monitoring.NewTimer(), &taskReport)
			taskReport = p.writeTasks(ctx, log, lead)
			return nil
		})
	} else {
		taskReport = SinkReport{Status: StatusSkipped}
	}
	_ = g.Wait()

	return map[string]SinkReport{
		SinkLedger:    ledgerReport,
		SinkTaskBoard: taskReport,
	}
}

func (p *Pipeline) writeLedger(ctx context.Context, log *zap.Logger, lead model.Lead, byProduct bool) SinkReport {
	timer := monitoring.NewTimer()
	row, outcome, err := p.ledger.Upsert(ctx, lead, byProduct)
	if err != nil {
		return p.failed(log, SinkLedger, err, timer)
	}
	monitoring.RecordSinkWrite(SinkLedger, string(outcome), timer.Duration())
	log.Info("ledger written", zap.String("row_id", row.ID), zap.String("outcome", string(outcome)))
	return SinkReport{Status: StatusOK, Outcome: string(outcome), ID: row.ID}
}

func (p *Pipeline) writeTasks(ctx context.Context, log *zap.Logger, lead model.Lead) SinkReport {
	timer := monitoring.NewTimer()
	res, err := p.tasks.Sync(ctx, lead)
	if err != nil {
		return p.failed(log, SinkTaskBoard, err, timer)
	}
	monitoring.RecordSinkWrite(SinkTaskBoard, string(res.Action), timer.Duration())
	for range res.Warnings {
		monitoring.WarningsTotal.WithLabelValues(WarnUnknownProduct).Inc()
	}

	report := SinkReport{Status: StatusOK, Outcome: string(res.Action), ID: res.TaskID, Warnings: res.Warnings}
	for _, t := range res.Tags {
		if t.Err != nil {
			report.Warnings = append(report.Warnings, "tag "+t.Tag+": "+t.Err.Error())
		}
	}
	return report
}

// recoverSink must be deferred directly. It turns a panic in a sink write
// into a failed report for that sink.
func (p *Pipeline) recoverSink(log *zap.Logger, sink string, timer *monitoring.Timer, report *SinkReport) {
	r := recover()
	if r == nil {
		return
	}
	err := eris.Errorf("pipeline: %s sink panic: %v", sink, r)
	monitoring.RecordSinkWrite(sink, StatusFailed, timer.Duration())
	log.Error("sink write panicked",
		zap.String("sink", sink),
		zap.String("kind", string(resilience.KindInternal)),
		zap.Error(err),
		zap.Stack("stack"),
	)
	*report = SinkReport{Status: StatusFailed, Kind: resilience.KindInternal, Error: err.Error()}
}

func (p *Pipeline) failed(log *zap.Logger, sink string, err error, timer *monitoring.Timer) SinkReport {
	kind := resilience.Classify(err)
	monitoring.RecordSinkWrite(sink, StatusFailed, timer.Duration())
	log.Error("sink write failed",
		zap.String("sink", sink),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return SinkReport{Status: StatusFailed, Kind: kind, Error: err.Error()}
}
