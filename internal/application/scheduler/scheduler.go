// Package scheduler detects overdue approval tasks and escalates them.
//
// A tick scans tasks by (due_date, id) in bounded pages. Every task is handled in
// its own transaction so one failure never aborts the batch, and the scans are
// keyed on timestamps so a repeated tick at the same instant changes nothing.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/history"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

// TickResult summarizes one tick
type TickResult struct {
	Overdue   int           `json:"overdue"`
	Escalated int           `json:"escalated"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeSkipped
	outcomeFailed
)

// Scheduler runs the overdue and escalation phases
type Scheduler struct {
	cfg       Config
	tasks     port.TaskRepository
	history   *history.Log
	roles     port.RoleDirectory
	txManager port.TransactionManager
	logger    *zap.Logger

	dispatcher dispatcher.Dispatcher
	metrics    port.Metrics
	clock      port.Clock

	// serializes ticks started by the cron loop and by manual triggers
	tickMu sync.Mutex
}

// Option configures the scheduler
type Option func(*Scheduler)

// WithDispatcher sets the dispatcher notified after each committed change
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(s *Scheduler) {
		s.dispatcher = d
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m port.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithClock sets the clock used by Tick
func WithClock(c port.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// New creates a scheduler
func New(
	cfg Config,
	tasks port.TaskRepository,
	historyLog *history.Log,
	roles port.RoleDirectory,
	txManager port.TransactionManager,
	logger *zap.Logger,
	opts ...Option,
) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}

	s := &Scheduler{
		cfg:       cfg,
		tasks:     tasks,
		history:   historyLog,
		roles:     roles,
		txManager: txManager,
		logger:    logger,
		metrics:   port.NopMetrics{},
		clock:     port.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tick runs one pass at the scheduler clock's current time
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	return s.RunTick(ctx, s.clock.Now())
}

// RunTick runs both phases as of now. It always completes; failures are counted
// and left for the next tick.
func (s *Scheduler) RunTick(ctx context.Context, now time.Time) TickResult {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	began := time.Now()
	var result TickResult

	if !s.cfg.SLAEnabled {
		s.logger.Debug("SLA tracking disabled, skipping tick")
		return result
	}

	s.scan(ctx, "overdue", entity.TaskStatusPending, now, &result, func(ctx context.Context, taskID string) (outcome, error) {
		return s.markOverdue(ctx, taskID, now)
	})

	if s.cfg.EscalationEnabled {
		if s.cfg.EscalationRole == "" {
			s.logger.Warn("Escalation enabled without an escalation role, skipping phase")
		} else {
			s.scan(ctx, "escalation", entity.TaskStatusOverdue, now.Add(-s.cfg.EscalationGrace), &result, func(ctx context.Context, taskID string) (outcome, error) {
				return s.escalate(ctx, taskID, now)
			})
		}
	}

	result.Duration = time.Since(began)
	s.metrics.SchedulerTick(result.Duration, result.Failed)
	s.logger.Info("Scheduler tick completed",
		zap.Time("now", now),
		zap.Int("overdue", result.Overdue),
		zap.Int("escalated", result.Escalated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))
	return result
}

// scan walks every task in status due before the bound, one page at a time
func (s *Scheduler) scan(ctx context.Context, phase, status string, before time.Time, result *TickResult, process func(context.Context, string) (outcome, error)) {
	var (
		mu     sync.Mutex
		cursor *port.TaskCursor
	)

	for ctx.Err() == nil {
		page, err := s.tasks.ListDueBefore(ctx, status, before, cursor, s.cfg.BatchSize)
		if err != nil {
			s.logger.Error("Failed to load task page", zap.String("phase", phase), zap.Error(err))
			result.Failed++
			return
		}
		if len(page) == 0 {
			return
		}

		var g errgroup.Group
		g.SetLimit(s.cfg.Workers)
		for _, task := range page {
			taskID := task.ID
			g.Go(func() error {
				o := s.withRetry(ctx, phase, taskID, process)
				mu.Lock()
				defer mu.Unlock()
				switch o {
				case outcomeDone:
					if phase == "overdue" {
						result.Overdue++
					} else {
						result.Escalated++
					}
				case outcomeSkipped:
					result.Skipped++
				case outcomeFailed:
					result.Failed++
				}
				return nil
			})
		}
		_ = g.Wait()

		if len(page) < s.cfg.BatchSize {
			return
		}
		last := page[len(page)-1]
		cursor = &port.TaskCursor{DueDate: last.DueDate, ID: last.ID}
	}
}

// withRetry reruns a task on version conflicts; any other error fails only this task
func (s *Scheduler) withRetry(ctx context.Context, phase, taskID string, process func(context.Context, string) (outcome, error)) outcome {
	for attempt := 0; ; attempt++ {
		o, err := process(ctx, taskID)
		if err == nil {
			return o
		}
		if errors.Is(err, domainwf.ErrConflict) && attempt < s.cfg.MaxConflictRetries {
			s.logger.Debug("Task changed concurrently, retrying",
				zap.String("phase", phase), zap.String("task_id", taskID), zap.Int("attempt", attempt+1))
			continue
		}
		s.logger.Error("Failed to process task",
			zap.String("phase", phase), zap.String("task_id", taskID), zap.Error(err))
		return outcomeFailed
	}
}

// markOverdue flips a PENDING task past its due date to OVERDUE
func (s *Scheduler) markOverdue(ctx context.Context, taskID string, now time.Time) (outcome, error) {
	var marked *entity.ApprovalTask
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		task, err := s.tasks.GetByID(txCtx, taskID)
		if err != nil {
			return err
		}
		if task == nil || task.Status != entity.TaskStatusPending || !task.DueDate.Before(now) {
			return nil
		}

		machine := domainwf.NewTaskMachine(domainwf.StatePending, false)
		if err := machine.Fire(txCtx, domainwf.TriggerMarkOverdue); err != nil {
			return err
		}
		task.Status = machine.State().String()
		if err := s.tasks.Update(txCtx, task); err != nil {
			return err
		}

		if _, err := s.history.Record(txCtx, history.Record{
			InstanceID: task.InstanceID,
			TaskID:     task.ID,
			ActionCode: entity.HistoryTaskOverdue,
			Details:    fmt.Sprintf("task for %s was due %s", task.AssignedTo, task.DueDate.Format(time.RFC3339)),
			At:         now,
		}); err != nil {
			return err
		}
		marked = task
		return nil
	})
	if err != nil {
		return outcomeFailed, err
	}
	if marked == nil {
		return outcomeSkipped, nil
	}

	s.metrics.TaskMarkedOverdue()
	s.logger.Info("Task marked overdue",
		zap.String("task_id", marked.ID),
		zap.String("instance_id", marked.InstanceID),
		zap.String("assignee", marked.AssignedTo))
	s.emit(ctx, event.NewTaskEvent(event.TypeTaskOverdue, marked, now, marked.InstanceID))
	return outcomeDone, nil
}

// escalate reassigns an OVERDUE task past the grace period to an escalation role holder
func (s *Scheduler) escalate(ctx context.Context, taskID string, now time.Time) (outcome, error) {
	candidates, err := s.roles.CurrentRoleHolders(ctx, s.cfg.EscalationRole)
	if err != nil {
		return outcomeFailed, fmt.Errorf("resolve escalation role: %w", err)
	}

	var (
		escalated *entity.ApprovalTask
		previous  string
		skipped   string
	)
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		task, err := s.tasks.GetByID(txCtx, taskID)
		if err != nil {
			return err
		}
		if task == nil || task.Status != entity.TaskStatusOverdue || !task.DueDate.Before(now.Add(-s.cfg.EscalationGrace)) {
			return nil
		}

		// one open task per approver per step
		stepTasks, err := s.tasks.ListByInstanceStep(txCtx, task.InstanceID, task.StepID)
		if err != nil {
			return err
		}
		exclude := make(map[string]bool, len(stepTasks))
		for _, t := range stepTasks {
			exclude[t.AssignedTo] = true
		}

		assignee, err := s.selectAssignee(txCtx, candidates, exclude)
		if err != nil {
			return err
		}
		if assignee == "" {
			skipped = "no eligible escalation candidate"
			return nil
		}

		machine := domainwf.NewTaskMachine(domainwf.StateOverdue, false)
		if err := machine.Fire(txCtx, domainwf.TriggerEscalate); err != nil {
			return err
		}
		previous = task.AssignedTo
		task.Status = machine.State().String()
		task.AssignedTo = assignee
		task.DueDate = now.Add(s.cfg.EscalationExtension)
		if err := s.tasks.Update(txCtx, task); err != nil {
			return err
		}

		if _, err := s.history.Record(txCtx, history.Record{
			InstanceID: task.InstanceID,
			TaskID:     task.ID,
			ActionCode: entity.HistoryTaskEscalated,
			Details:    fmt.Sprintf("reassigned from %s to %s", previous, assignee),
			At:         now,
		}); err != nil {
			return err
		}
		escalated = task
		return nil
	})
	if err != nil {
		return outcomeFailed, err
	}
	if skipped != "" {
		s.metrics.EscalationSkipped(skipped)
		s.logger.Warn("Escalation skipped",
			zap.String("task_id", taskID),
			zap.String("role", s.cfg.EscalationRole),
			zap.String("reason", skipped))
		return outcomeSkipped, nil
	}
	if escalated == nil {
		return outcomeSkipped, nil
	}

	s.metrics.TaskEscalated()
	s.logger.Info("Task escalated",
		zap.String("task_id", escalated.ID),
		zap.String("from", previous),
		zap.String("to", escalated.AssignedTo))

	// new assignee first, then the previous one
	s.emit(ctx, event.NewTaskEvent(event.TypeTaskAssigned, escalated, now, escalated.InstanceID))
	s.emit(ctx, event.NewTaskEvent(event.TypeTaskEscalated, escalated, now, escalated.InstanceID).
		WithPayload(event.KeyPreviousAssignee, previous))
	return outcomeDone, nil
}

// selectAssignee applies the configured strategy to the candidates not excluded
func (s *Scheduler) selectAssignee(ctx context.Context, candidates []string, exclude map[string]bool) (string, error) {
	eligible := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != "" && !exclude[c] {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return "", nil
	}
	sort.Strings(eligible)

	if s.cfg.Strategy != StrategyLeastLoaded {
		return eligible[0], nil
	}

	load, err := s.tasks.CountOpen(ctx, eligible)
	if err != nil {
		return "", err
	}
	best := eligible[0]
	for _, c := range eligible[1:] {
		if load[c] < load[best] {
			best = c
		}
	}
	return best, nil
}

func (s *Scheduler) emit(ctx context.Context, evt *event.Event) {
	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, evt)
	}
}
