package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"docarc/internal/archive"
)

// Status is a task's position in its lifecycle. Completed and Failed are
// terminal; a task never leaves a terminal status.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one tracked unit of background work, identified externally by
// its Subject (the external id being worked on).
type Task struct {
	ID        string
	Subject   string
	Status    Status
	Progress  float64
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Runner performs the actual work for one subject, reporting progress in
// [0,100] through the callback. The callback must not block.
type Runner func(ctx context.Context, subject string, progress func(float64)) error

// ErrAlreadyInProgress is returned by Submit while a non-terminal task for
// the same subject exists.
var ErrAlreadyInProgress = errors.New("task already in progress for this subject")

// ErrShuttingDown is returned by Submit after Shutdown has begun.
var ErrShuttingDown = errors.New("task manager shutting down")

// DefaultWorkers is the worker pool size used when the configuration does
// not set one.
const DefaultWorkers = 3

type progressEvent struct {
	id      string
	percent float64
}

// Manager runs submitted subjects through a fixed pool of workers and keeps
// an in-memory record of every task for the life of the process. Tasks run
// in submission order; at most `workers` tasks are in StatusDownloading at
// any moment.
type Manager struct {
	run    Runner
	logger archive.Logger
	idgen  archive.IDGenerator
	clock  archive.Clock

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	tasks     map[string]*Task
	active    map[string]string // subject -> task id, non-terminal only
	queue     []string          // task ids, FIFO
	closed    bool
	wake      chan struct{}
	events    chan progressEvent
	workersWG sync.WaitGroup
	updaterWG sync.WaitGroup
}

// NewManager starts a Manager with the given pool size. workers <= 0 uses
// DefaultWorkers. logger, idgen, and clock may be nil.
func NewManager(workers int, run Runner, logger archive.Logger, idgen archive.IDGenerator, clock archive.Clock) *Manager {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = archive.NewNopLogger()
	}
	if idgen == nil {
		idgen = archive.UUIDGenerator{}
	}
	if clock == nil {
		clock = archive.RealClock{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		run:    run,
		logger: logger,
		idgen:  idgen,
		clock:  clock,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*Task),
		active: make(map[string]string),
		wake:   make(chan struct{}, 1),
		events: make(chan progressEvent, 256),
	}

	m.updaterWG.Add(1)
	go m.updateLoop()
	for i := 0; i < workers; i++ {
		m.workersWG.Add(1)
		go m.workLoop()
	}
	return m
}

// Submit queues work for a subject. Returns the new task, or
// ErrAlreadyInProgress if a queued or running task for the same subject
// exists. Once a subject's task reaches a terminal status it may be
// submitted again.
func (m *Manager) Submit(subject string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrShuttingDown
	}
	if _, busy := m.active[subject]; busy {
		return nil, ErrAlreadyInProgress
	}

	now := m.clock.Now()
	t := &Task{
		ID:        m.idgen.New(),
		Subject:   subject,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.tasks[t.ID] = t
	m.active[subject] = t.ID
	m.queue = append(m.queue, t.ID)

	select {
	case m.wake <- struct{}{}:
	default:
	}
	m.logger.Debug("task queued", "task_id", t.ID, "subject", subject)
	return snapshot(t), nil
}

// Get returns a copy of the task with the given id, or nil.
func (m *Manager) Get(id string) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil
	}
	return snapshot(t)
}

// GetBySubject returns a copy of the most recent non-terminal task for the
// subject, or nil.
func (m *Manager) GetBySubject(subject string) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.active[subject]
	if !ok {
		return nil
	}
	return snapshot(m.tasks[id])
}

// List returns copies of all tasks ordered by creation time.
func (m *Manager) List() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, snapshot(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Shutdown stops intake, cancels running work, and waits for the workers
// to exit, up to ctx's deadline. Queued tasks that never started are
// marked failed.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for _, id := range m.queue {
		m.finishLocked(id, StatusFailed, "shutdown before start")
	}
	m.queue = nil
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(m.events)
		m.updaterWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) workLoop() {
	defer m.workersWG.Done()
	for {
		t := m.next()
		if t == nil {
			return
		}
		m.runOne(t)
	}
}

// next blocks until a task is available or the manager is shutting down.
func (m *Manager) next() *Task {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			id := m.queue[0]
			m.queue = m.queue[1:]
			t := m.tasks[id]
			t.Status = StatusDownloading
			t.UpdatedAt = m.clock.Now()
			m.mu.Unlock()
			return t
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return nil
		}
		select {
		case <-m.wake:
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *Manager) runOne(t *Task) {
	m.logger.Info("task started", "task_id", t.ID, "subject", t.Subject)
	progress := func(pct float64) {
		// Drop rather than block; the next report supersedes this one.
		select {
		case m.events <- progressEvent{id: t.ID, percent: pct}:
		default:
		}
	}

	err := m.run(m.ctx, t.Subject, progress)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.finishLocked(t.ID, StatusFailed, err.Error())
		m.logger.Error("task failed", "task_id", t.ID, "subject", t.Subject, "error", err)
		return
	}
	m.finishLocked(t.ID, StatusCompleted, "")
	m.logger.Info("task completed", "task_id", t.ID, "subject", t.Subject)
}

// finishLocked moves a task to a terminal status and frees its subject for
// resubmission. Caller holds mu.
func (m *Manager) finishLocked(id string, st Status, msg string) {
	t, ok := m.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	t.Status = st
	t.Message = msg
	if st == StatusCompleted {
		t.Progress = 100
	}
	t.UpdatedAt = m.clock.Now()
	if m.active[t.Subject] == id {
		delete(m.active, t.Subject)
	}
}

// updateLoop is the single writer of task progress, serializing callback
// reports from all workers.
func (m *Manager) updateLoop() {
	defer m.updaterWG.Done()
	for ev := range m.events {
		m.mu.Lock()
		if t, ok := m.tasks[ev.id]; ok && !t.Status.Terminal() {
			t.Progress = ev.percent
			t.UpdatedAt = m.clock.Now()
		}
		m.mu.Unlock()
	}
}

func snapshot(t *Task) *Task {
	c := *t
	return &c
}
