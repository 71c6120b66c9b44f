// Package orchestrator drives a full andon run: resolve scope, walk the
// units in order, wrap each in a retry-bounded attempt loop, and decide
// the terminal outcome of run and units.
//
// The orchestrator owns all state transitions and all version control
// decisions. Agents propose, the gate disposes, the orchestrator
// commits, reverts, or pulls the andon cord.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/chrisallenlane/andon/internal/agent"
	"github.com/chrisallenlane/andon/internal/config"
	"github.com/chrisallenlane/andon/internal/controller"
	andonerr "github.com/chrisallenlane/andon/internal/errors"
	"github.com/chrisallenlane/andon/internal/events"
	"github.com/chrisallenlane/andon/internal/gate"
	"github.com/chrisallenlane/andon/internal/git"
	"github.com/chrisallenlane/andon/internal/progress"
	"github.com/chrisallenlane/andon/internal/unit"
	"github.com/chrisallenlane/andon/internal/workflow"
)

// Recorder persists run history. A nil Recorder disables history.
type Recorder interface {
	StartRun(runID, workflowKind string, startedAt time.Time) error
	RecordUnit(runID string, u *unit.WorkUnit, outcome unit.TerminalOutcome, reason string) error
	FinishRun(runID string, finishedAt time.Time, outcome string) error
}

// Orchestrator executes one workflow run.
type Orchestrator struct {
	cfg *config.Config
	def *workflow.Definition

	invoker    agent.Invoker
	gate       gate.Gate
	vcs        *git.Git
	store      *progress.Store
	recorder   Recorder
	publisher  events.Publisher
	logger     *slog.Logger
	projectDir string
	dryRun     bool

	// progMu serializes progress writes; fan-out units terminate
	// concurrently but the store file has a single writer.
	progMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProgressStore enables the durable progress store.
func WithProgressStore(s *progress.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithRecorder enables run history recording.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithDryRun reports the planned units without invoking anything.
func WithDryRun(dry bool) Option {
	return func(o *Orchestrator) { o.dryRun = dry }
}

// New creates an orchestrator for one workflow run over projectDir.
func New(cfg *config.Config, def *workflow.Definition, invoker agent.Invoker, g gate.Gate, vcs *git.Git, projectDir string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		def:        def,
		invoker:    invoker,
		gate:       g,
		vcs:        vcs,
		publisher:  events.NopPublisher{},
		logger:     slog.Default(),
		projectDir: projectDir,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunAll processes units strictly in order. The first escalation halts
// the run: every unit after it stays pending and is never attempted.
// Exhausted units are reverted and skipped; the run continues.
//
// The returned Report is always non-nil unless ctx was cancelled.
func (o *Orchestrator) RunAll(ctx context.Context, units []*unit.WorkUnit) (*Report, error) {
	report := &Report{
		RunID:    uuid.NewString(),
		Workflow: o.def.Kind,
		Started:  time.Now().UTC(),
	}

	o.logger.Info("run started",
		"run", report.RunID,
		"workflow", string(o.def.Kind),
		"units", len(units),
		"max_attempts", o.cfg.MaxAttempts)

	if o.dryRun {
		for _, u := range units {
			report.Units = append(report.Units, UnitReport{
				ID: u.ID, Outcome: "planned", Paths: u.Paths, Complexity: u.Complexity,
			})
		}
		report.Finished = time.Now().UTC()
		return report, nil
	}

	if o.recorder != nil {
		if err := o.recorder.StartRun(report.RunID, string(o.def.Kind), report.Started); err != nil {
			o.logger.Warn("run history unavailable", "error", err)
		}
	}

	if o.def.Mutating {
		clean, err := o.vcs.IsClean()
		if err != nil {
			return nil, err
		}
		if !clean {
			return nil, andonerr.ErrGitDirty()
		}
	}

	units = o.skipResumed(units, report)

	var err error
	if o.fanoutEligible(units) {
		err = o.runParallel(ctx, units, report)
	} else {
		err = o.runSequential(ctx, units, report)
	}
	if err != nil {
		return nil, err
	}

	report.Finished = time.Now().UTC()
	o.finishRun(report)
	return report, nil
}

func (o *Orchestrator) runSequential(ctx context.Context, units []*unit.WorkUnit, report *Report) error {
	for _, u := range units {
		if report.Escalation != nil || ctx.Err() != nil {
			// Cord pulled or run cancelled: everything downstream
			// stays untouched.
			report.Units = append(report.Units, UnitReport{ID: u.ID, Outcome: "not_attempted"})
			continue
		}
		ur := o.runOne(ctx, u, report)
		if ur.escalation != nil {
			report.Escalation = ur.escalation
		}
		report.Units = append(report.Units, ur)
		o.record(report.RunID, u, ur)
	}
	return nil
}

// fanoutEligible permits parallel execution only for analysis-only
// workflows above the configured threshold. Mutating runs always walk
// units one at a time over the shared working tree.
func (o *Orchestrator) fanoutEligible(units []*unit.WorkUnit) bool {
	return o.def.AllowFanout && !o.def.Mutating && len(units) > o.cfg.FanoutThreshold
}

// fanoutWorkers bounds parallel analysis invocations.
const fanoutWorkers = 4

func (o *Orchestrator) runParallel(ctx context.Context, units []*unit.WorkUnit, report *Report) error {
	o.logger.Info("fanning out analysis",
		"units", len(units),
		"threshold", o.cfg.FanoutThreshold,
		"workers", fanoutWorkers)

	reports := make([]UnitReport, len(units))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutWorkers)
	for i, u := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ur := o.runOne(gctx, u, report)
			mu.Lock()
			reports[i] = ur
			if ur.Outcome == unit.OutcomeEscalated && report.Escalation == nil {
				report.Escalation = ur.escalation
			}
			mu.Unlock()
			if ur.Outcome == unit.OutcomeEscalated {
				return ur.escalation
			}
			return nil
		})
	}
	// An escalation cancels in-flight siblings; the partial reports
	// still go into the summary.
	_ = g.Wait()

	for i, ur := range reports {
		if ur.ID == "" {
			ur = UnitReport{ID: units[i].ID, Outcome: "not_attempted"}
		}
		report.Units = append(report.Units, ur)
		o.record(report.RunID, units[i], ur)
	}
	return ctx.Err()
}

// runOne takes a single unit from pending to terminal. The controller
// runs the attempt loop; this method owns branch lifecycle, terminal
// status and the progress record.
func (o *Orchestrator) runOne(ctx context.Context, u *unit.WorkUnit, report *Report) UnitReport {
	u.Status = unit.StatusInProgress
	o.publisher.Publish(events.NewEvent(events.EventUnitStarted, u.ID, nil))
	o.logger.Info("unit started", "unit", u.ID, "paths", strings.Join(u.Paths, ","))

	var handle *git.ScopeHandle
	if o.def.Mutating {
		h, err := o.vcs.CreateScope(u.ID)
		if err != nil {
			return o.escalate(u, report, "scope", err)
		}
		handle = h
	}

	ctrl := controller.New(o.invoker, o.gate,
		controller.WithMaxAttempts(o.cfg.MaxAttempts),
		controller.WithPublisher(o.publisher),
		controller.WithLogger(o.logger))

	res, err := ctrl.RunUnit(ctx, u, agent.Request{
		Role:         o.def.Role,
		Instructions: o.instructions(u),
		Scope:        u.Paths,
		Workdir:      o.projectDir,
	})
	if err != nil {
		// Only context cancellation reaches here. Discard whatever the
		// interrupted attempt wrote, return to the base branch, then
		// drop the scope.
		if handle != nil {
			if rerr := o.vcs.Revert(handle); rerr != nil {
				o.logger.Error("revert after cancel failed, branch preserved",
					"unit", u.ID, "branch", handle.Branch, "error", rerr)
			} else {
				o.cleanupScope(handle)
			}
		}
		u.Status = unit.StatusAborted
		return UnitReport{ID: u.ID, Outcome: unit.OutcomeAborted, Reason: err.Error(), Attempts: u.AttemptCount()}
	}

	switch res.Final {
	case controller.StateSucceeded:
		return o.finishSucceeded(u, handle, res, report)
	case controller.StateExhausted:
		return o.finishExhausted(u, handle, res)
	default:
		return o.escalateWithHandle(u, report, "attempt", res.Escalation, handle)
	}
}

func (o *Orchestrator) finishSucceeded(u *unit.WorkUnit, handle *git.ScopeHandle, res *controller.Result, report *Report) UnitReport {
	if f := criticalFinding(res.LastAgent); f != nil {
		// High-severity findings are never merged past a human.
		err := andonerr.ErrSecurityFinding(u.ID, f.Detail)
		return o.escalateWithHandle(u, report, "review", err, handle)
	}

	ur := UnitReport{ID: u.ID, Attempts: u.AttemptCount(), Paths: u.Paths}
	if res.LastAgent != nil {
		u.ResultSummary = res.LastAgent.Summary
		ur.Summary = res.LastAgent.Summary
		ur.Findings = res.LastAgent.Findings
	}

	merged := false
	if handle != nil {
		paths := u.Paths
		if len(paths) == 0 && res.LastAgent != nil {
			paths = res.LastAgent.FilesModified
		}
		if len(paths) > 0 {
			if err := o.vcs.Commit(handle, firstLine(u.Description), paths); err != nil {
				return o.escalateWithHandle(u, report, "commit", err, handle)
			}
			if stat, err := o.vcs.ScopeDiffStat(handle); err == nil {
				ur.Diff = stat
			}
			if err := o.vcs.Merge(handle, o.vcs.BaseBranch()); err != nil {
				return o.escalateWithHandle(u, report, "merge", err, handle)
			}
			merged = true
		} else {
			// Nothing to merge; go back to base and drop the branch.
			if err := o.vcs.Revert(handle); err != nil {
				o.logger.Warn("scope cleanup failed", "unit", u.ID, "error", err)
			}
		}
		o.cleanupScope(handle)
	}

	u.Status = unit.StatusCompleted
	ur.Outcome = unit.OutcomeCompleted
	if merged {
		report.CommittedUnits = append(report.CommittedUnits, u.ID)
	}
	o.persistProgress(u, res)
	o.publishTerminal(u, unit.OutcomeCompleted, "")
	o.logger.Info("unit completed", "unit", u.ID, "attempts", u.AttemptCount())
	return ur
}

func (o *Orchestrator) finishExhausted(u *unit.WorkUnit, handle *git.ScopeHandle, res *controller.Result) UnitReport {
	if handle != nil {
		if err := o.vcs.Revert(handle); err != nil {
			o.logger.Error("revert failed, branch preserved", "unit", u.ID, "error", err)
		} else {
			o.cleanupScope(handle)
		}
	}
	u.Status = unit.StatusSkipped
	o.persistProgress(u, res)
	o.publishTerminal(u, unit.OutcomeSkipped, res.FailureReason)
	o.logger.Warn("unit skipped", "unit", u.ID, "reason", res.FailureReason)
	return UnitReport{
		ID:       u.ID,
		Outcome:  unit.OutcomeSkipped,
		Reason:   res.FailureReason,
		Attempts: u.AttemptCount(),
		Paths:    u.Paths,
	}
}

func (o *Orchestrator) escalate(u *unit.WorkUnit, report *Report, step string, err error) UnitReport {
	return o.escalateWithHandle(u, report, step, err, nil)
}

// escalateWithHandle builds the run-halting escalation event. The
// in-flight branch is deliberately preserved: a human resumes from the
// exact state the run stopped in.
func (o *Orchestrator) escalateWithHandle(u *unit.WorkUnit, report *Report, step string, err error, handle *git.ScopeHandle) UnitReport {
	u.Status = unit.StatusAborted

	ev := &unit.EscalationEvent{
		UnitID:         u.ID,
		Step:           step,
		Category:       categoryFor(err),
		Reason:         err.Error(),
		CommittedUnits: append([]string(nil), report.CommittedUnits...),
		OccurredAt:     time.Now().UTC(),
	}
	if handle != nil {
		ev.InFlightBranch = handle.Branch
	}

	o.persistProgress(u, nil)
	o.publishTerminal(u, unit.OutcomeEscalated, ev.Reason)
	o.logger.Error("andon cord pulled",
		"unit", u.ID,
		"step", step,
		"category", string(ev.Category),
		"reason", ev.Reason)
	return UnitReport{
		ID:         u.ID,
		Outcome:    unit.OutcomeEscalated,
		Reason:     ev.Reason,
		Attempts:   u.AttemptCount(),
		Paths:      u.Paths,
		escalation: ev,
	}
}

func (o *Orchestrator) cleanupScope(handle *git.ScopeHandle) {
	if handle == nil {
		return
	}
	if err := o.vcs.DestroyScope(handle); err != nil {
		o.logger.Warn("could not delete scope branch", "branch", handle.Branch, "error", err)
	}
}

// instructions builds the full per-unit prompt from the workflow
// baseline, the aggression ceiling and the unit description.
func (o *Orchestrator) instructions(u *unit.WorkUnit) string {
	var b strings.Builder
	b.WriteString(o.def.Instructions)
	if o.def.Mutating {
		b.WriteString(fmt.Sprintf("\n\nChange aggression ceiling: %s.", o.cfg.Aggression))
	}
	if u.Description != "" && u.Description != o.def.Instructions {
		b.WriteString("\n\n")
		b.WriteString(u.Description)
	}
	return b.String()
}

// skipResumed drops units the progress store already records as
// completed, so a resumed session picks up where the last one stopped
// instead of silently redoing finished work.
func (o *Orchestrator) skipResumed(units []*unit.WorkUnit, report *Report) []*unit.WorkUnit {
	if !o.def.TrackProgress || o.store == nil {
		return units
	}
	state, err := o.store.Load()
	if err != nil {
		o.logger.Warn("progress store unavailable", "error", err)
		return units
	}

	remaining := units[:0]
	for _, u := range units {
		rec, ok := state.Units[u.ID]
		if ok && rec.Status == unit.StatusCompleted {
			u.Status = unit.StatusCompleted
			report.Units = append(report.Units, UnitReport{
				ID:      u.ID,
				Outcome: unit.OutcomeCompleted,
				Reason:  "completed in a previous session",
			})
			o.logger.Info("unit already completed, skipping", "unit", u.ID)
			continue
		}
		remaining = append(remaining, u)
	}
	return remaining
}

// persistProgress writes the unit's durable record for workflows that
// track progress across sessions.
func (o *Orchestrator) persistProgress(u *unit.WorkUnit, res *controller.Result) {
	if !o.def.TrackProgress || o.store == nil {
		return
	}
	o.progMu.Lock()
	defer o.progMu.Unlock()
	state, err := o.store.Load()
	if err != nil {
		o.logger.Warn("progress store unavailable", "error", err)
		return
	}
	rec := o.store.Discover(state, u.ID)
	rec.Status = u.Status
	rec.Attempts = u.AttemptCount()
	if res != nil && res.LastAgent != nil {
		fillRecord(rec, res.LastAgent)
	}
	if err := o.store.Upsert(state, u.ID, rec); err != nil {
		o.logger.Warn("progress write failed", "unit", u.ID, "error", err)
	}
}

// fillRecord extracts metrics, score and notable examples from the
// agent's structured payload.
func fillRecord(rec *progress.Record, res *agent.Result) {
	if res.Summary != "" {
		rec.Notes = append(rec.Notes, res.Summary)
	}
	for _, f := range res.Findings {
		rec.Examples = append(rec.Examples, progress.Example{Detail: f.Detail, Path: f.Path})
	}
	if res.Payload == "" {
		return
	}
	if m := gjson.Get(res.Payload, "metrics"); m.IsObject() {
		if rec.Metrics == nil {
			rec.Metrics = make(map[string]int)
		}
		m.ForEach(func(k, v gjson.Result) bool {
			rec.Metrics[k.String()] = int(v.Int())
			return true
		})
	}
	if s := gjson.Get(res.Payload, "score"); s.Exists() {
		rec.Score = s.Float()
	}
}

// criticalFinding returns the first finding severe enough to require a
// human, or nil.
func criticalFinding(res *agent.Result) *agent.Finding {
	if res == nil {
		return nil
	}
	for i, f := range res.Findings {
		switch strings.ToLower(f.Severity) {
		case "critical", "high":
			return &res.Findings[i]
		}
	}
	return nil
}

func categoryFor(err error) unit.EscalationCategory {
	ae := andonerr.AsAndonError(err)
	if ae == nil {
		return unit.EscalationEnvironment
	}
	switch ae.Code {
	case andonerr.CodeVerifyInfra:
		return unit.EscalationVerificationInfra
	case andonerr.CodeGitMergeConflict:
		return unit.EscalationConflict
	case andonerr.CodeSecurityFinding:
		return unit.EscalationUnresolvedFinding
	default:
		return unit.EscalationEnvironment
	}
}

func (o *Orchestrator) publishTerminal(u *unit.WorkUnit, outcome unit.TerminalOutcome, reason string) {
	o.publisher.Publish(events.NewEvent(events.EventUnitTerminal, u.ID, events.TerminalData{
		Outcome:  string(outcome),
		Reason:   reason,
		Attempts: u.AttemptCount(),
	}))
}

func (o *Orchestrator) record(runID string, u *unit.WorkUnit, ur UnitReport) {
	if o.recorder == nil {
		return
	}
	outcome := ur.Outcome
	if outcome == "" {
		outcome = unit.TerminalOutcome("not_attempted")
	}
	if err := o.recorder.RecordUnit(runID, u, outcome, ur.Reason); err != nil {
		o.logger.Warn("run history write failed", "unit", u.ID, "error", err)
	}
}

func (o *Orchestrator) finishRun(report *Report) {
	outcome := "completed"
	switch {
	case report.Escalation != nil:
		outcome = "escalated"
	case report.Aborted() > 0:
		outcome = "aborted"
	case report.Skipped() > 0:
		outcome = "partial"
	}
	if o.recorder != nil {
		if err := o.recorder.FinishRun(report.RunID, report.Finished, outcome); err != nil {
			o.logger.Warn("run history write failed", "error", err)
		}
	}
	o.publisher.Publish(events.NewEvent(events.EventRunFinished, events.GlobalUnitID, events.TerminalData{
		Outcome: outcome,
	}))
	o.logger.Info("run finished",
		"run", report.RunID,
		"outcome", outcome,
		"completed", report.Completed(),
		"skipped", report.Skipped())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
