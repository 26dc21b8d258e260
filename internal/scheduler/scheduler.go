// Package scheduler implements the Scheduler (spec §4.9): cron-driven
// periodic actions attached to instances. A single background loop ticks
// once per second, evaluates every registered cron against the wall clock,
// and dispatches due tasks to the Supervisor or the Backup Engine.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/serverforge/serverforge/infrastructure/errors"
	"github.com/serverforge/serverforge/infrastructure/logging"
	"github.com/serverforge/serverforge/infrastructure/metrics"
	"github.com/serverforge/serverforge/internal/backup"
	"github.com/serverforge/serverforge/internal/domain"
)

// tickInterval matches the teacher's polling-trigger scheduler: cheap
// enough to check every second without meaningfully loading the process.
const tickInterval = time.Second

// cronParser accepts either the six-field form (seconds first) or the
// classic five-field form, per spec §4.9.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// InstanceController is the subset of the Supervisor the Scheduler needs to
// dispatch Start/Stop/Restart/Command tasks.
type InstanceController interface {
	Start(ctx context.Context, instanceID uuid.UUID) error
	Stop(ctx context.Context, instanceID uuid.UUID) error
	SendCommand(ctx context.Context, instanceID uuid.UUID, line string) error
}

// BackupCreator is the subset of the Backup Engine the Scheduler needs to
// dispatch Backup tasks.
type BackupCreator interface {
	CreateBackup(ctx context.Context, instanceID uuid.UUID, sourceDir, name string, onProgress backup.ProgressFunc) (domain.BackupInfo, error)
}

// InstanceSource is the subset of the Instance Registry the Scheduler needs
// to rebuild itself at startup and to resolve an instance's path for
// Backup tasks.
type InstanceSource interface {
	List(ctx context.Context) ([]domain.Instance, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Instance, error)
	UpdateScheduleLastRun(ctx context.Context, instanceID, taskID uuid.UUID, runAt time.Time) error
}

type entry struct {
	task     domain.ScheduledTask
	schedule cron.Schedule
}

// Scheduler holds every registered task in an in-memory map keyed by task
// id (spec §4.9). Persistence is piggy-backed on the Instance Registry:
// callers that add or remove a task are responsible for also calling
// registry.AppendSchedule/RemoveSchedule, mirroring how the teacher's
// command layer coordinates its cache and its store as two separate calls.
type Scheduler struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*entry

	registry   InstanceSource
	supervisor InstanceController
	backups    BackupCreator
	logger     *logging.Logger
	metrics    *metrics.Metrics

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Scheduler. Call LoadFromRegistry then Run to start it.
func New(registry InstanceSource, supervisor InstanceController, backups BackupCreator, logger *logging.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		tasks:      make(map[uuid.UUID]*entry),
		registry:   registry,
		supervisor: supervisor,
		backups:    backups,
		logger:     logger,
		metrics:    m,
		stopCh:     make(chan struct{}),
	}
}

// AddTask parses task.Cron and registers it. A cron expression that fails
// to parse yields ErrCodeInvalidSchedule and the task is not registered.
func (s *Scheduler) AddTask(task domain.ScheduledTask) error {
	schedule, err := cronParser.Parse(task.Cron)
	if err != nil {
		return errors.InvalidSchedule(task.Cron, err)
	}

	s.mu.Lock()
	s.tasks[task.ID] = &entry{task: task, schedule: schedule}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ScheduledTasksPending.Set(float64(s.taskCount()))
	}
	return nil
}

// RemoveTask unregisters a task. Removing an unknown id is a no-op.
func (s *Scheduler) RemoveTask(taskID uuid.UUID) {
	s.mu.Lock()
	delete(s.tasks, taskID)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ScheduledTasksPending.Set(float64(s.taskCount()))
	}
}

// ListTasks returns every task registered for instanceID.
func (s *Scheduler) ListTasks(instanceID uuid.UUID) []domain.ScheduledTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ScheduledTask
	for _, e := range s.tasks {
		if e.task.InstanceID == instanceID {
			out = append(out, e.task)
		}
	}
	return out
}

func (s *Scheduler) taskCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// LoadFromRegistry rebuilds the in-memory task map from every instance's
// persisted schedule list (spec §4.9 "the scheduler is rebuilt from all
// instances at process startup"). A task whose stored cron expression no
// longer parses is skipped and logged rather than aborting the rebuild.
func (s *Scheduler) LoadFromRegistry(ctx context.Context) error {
	instances, err := s.registry.List(ctx)
	if err != nil {
		return err
	}
	for _, inst := range instances {
		for _, task := range inst.Schedules {
			if err := s.AddTask(task); err != nil && s.logger != nil {
				s.logger.WithError(err).WithFields(map[string]interface{}{
					"task_id":     task.ID.String(),
					"instance_id": inst.ID.String(),
				}).Warn("dropping unparseable scheduled task on rebuild")
			}
		}
	}
	return nil
}

// Run starts the background dispatch loop. It returns once ctx is
// cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// Stop halts the dispatch loop and waits for in-flight dispatches to
// finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	due := s.dueTasks(now)
	for _, task := range due {
		s.wg.Add(1)
		go func(task domain.ScheduledTask) {
			defer s.wg.Done()
			s.dispatch(ctx, task)
		}(task)
	}
}

// dueTasks finds every task whose schedule has a firing time at or before
// now, since its own last_run, and stamps last_run immediately to avoid
// double-firing within the same minute on the next tick (spec §4.9).
func (s *Scheduler) dueTasks(now time.Time) []domain.ScheduledTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []domain.ScheduledTask
	for _, e := range s.tasks {
		last := epoch
		if e.task.LastRun != nil {
			last = *e.task.LastRun
		}
		if !e.schedule.Next(last).After(now) {
			e.task.LastRun = &now
			due = append(due, e.task)
		}
	}
	return due
}

var epoch = time.Unix(0, 0).UTC()

func (s *Scheduler) dispatch(ctx context.Context, task domain.ScheduledTask) {
	var err error
	switch task.Kind {
	case domain.TaskBackup:
		err = s.dispatchBackup(ctx, task)
	case domain.TaskRestart:
		err = s.dispatchRestart(ctx, task)
	case domain.TaskStop:
		err = s.supervisor.Stop(ctx, task.InstanceID)
	case domain.TaskStart:
		err = s.supervisor.Start(ctx, task.InstanceID)
	case domain.TaskCommand:
		err = s.supervisor.SendCommand(ctx, task.InstanceID, task.Command)
	default:
		err = errors.New(errors.ErrCodeInternal, "unknown scheduled task kind: "+string(task.Kind))
	}

	if s.logger != nil {
		s.logger.LogSchedulerDispatch(ctx, task.ID.String(), task.InstanceID.String(), string(task.Kind), err)
	}
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		s.metrics.ScheduledDispatchTotal.WithLabelValues(string(task.Kind), status).Inc()
	}

	if persistErr := s.registry.UpdateScheduleLastRun(ctx, task.InstanceID, task.ID, *task.LastRun); persistErr != nil && s.logger != nil {
		s.logger.WithError(persistErr).Warn("failed to persist scheduled task last_run")
	}
}

func (s *Scheduler) dispatchBackup(ctx context.Context, task domain.ScheduledTask) error {
	inst, err := s.registry.GetByID(ctx, task.InstanceID)
	if err != nil {
		return err
	}
	_, err = s.backups.CreateBackup(ctx, task.InstanceID, inst.Path, "scheduled", nil)
	return err
}

func (s *Scheduler) dispatchRestart(ctx context.Context, task domain.ScheduledTask) error {
	if err := s.supervisor.Stop(ctx, task.InstanceID); err != nil {
		return err
	}
	return s.supervisor.Start(ctx, task.InstanceID)
}
