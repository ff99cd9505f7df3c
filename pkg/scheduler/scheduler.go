// Copyright 2026 © The Avatar Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler manages the controller's periodic tasks: registration
// by name, creation, frequency and started state. The timer itself belongs
// to the runtime loop, which asks the scheduler which tasks are due.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jllopis/avatar/pkg/errors"
)

// Task is a unit of periodic work.
type Task interface {
	Run(ctx context.Context, cycle uint64) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context, cycle uint64) error

// Run calls f.
func (f TaskFunc) Run(ctx context.Context, cycle uint64) error {
	return f(ctx, cycle)
}

// Factory builds a task instance.
type Factory func() Task

// Handle is a created task.
type Handle struct {
	id        string
	name      string
	task      Task
	frequency int
	started   bool
}

// ID returns the handle identifier.
func (h *Handle) ID() string { return h.id }

// Name returns the registered task name.
func (h *Handle) Name() string { return h.name }

// Task returns the task instance.
func (h *Handle) Task() Task { return h.task }

// Frequency returns the task period in cycles.
func (h *Handle) Frequency() int { return h.frequency }

// Started reports whether the task is scheduled.
func (h *Handle) Started() bool { return h.started }

// Scheduler holds registered factories and created handles.
type Scheduler struct {
	mu        sync.Mutex
	factories map[string]Factory
	handles   map[string]*Handle
	running   []*Handle
	logger    *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		factories: make(map[string]Factory),
		handles:   make(map[string]*Handle),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register makes name available to Create. Registering a name twice
// replaces its factory.
func (s *Scheduler) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return errors.New(errors.CodeInvalidInput, "task name and factory are required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[name] = factory
	return nil
}

// Create builds a stopped task of the registered name with frequency 1.
func (s *Scheduler) Create(name string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	factory, ok := s.factories[name]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, "create task", errors.ErrNotRegistered).
			WithContext("task", name)
	}
	h := &Handle{
		id:        uuid.NewString(),
		name:      name,
		task:      factory(),
		frequency: 1,
	}
	s.handles[h.id] = h
	s.logger.Debug("scheduler.task.create", slog.String("task", name), slog.String("handle", h.id))
	return h, nil
}

// SetFrequency sets the task period in cycles.
func (s *Scheduler) SetFrequency(h *Handle, cycles int) error {
	if cycles < 1 {
		return errors.New(errors.CodeInvalidInput, fmt.Sprintf("frequency must be positive, got %d", cycles), nil).
			WithContext("task", h.name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.owned(h); err != nil {
		return err
	}
	h.frequency = cycles
	return nil
}

// Start schedules h. Starting a started task does not schedule it again.
func (s *Scheduler) Start(h *Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.owned(h); err != nil {
		return err
	}
	if h.started {
		s.logger.Info("scheduler.task.restart",
			slog.String("task", h.name),
			slog.Int("frequency", h.frequency),
		)
		return nil
	}
	h.started = true
	s.running = append(s.running, h)
	s.logger.Info("scheduler.task.start",
		slog.String("task", h.name),
		slog.Int("frequency", h.frequency),
	)
	return nil
}

// Stop unschedules h.
func (s *Scheduler) Stop(h *Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.owned(h); err != nil {
		return err
	}
	if !h.started {
		return nil
	}
	h.started = false
	for i, r := range s.running {
		if r == h {
			s.running = append(s.running[:i], s.running[i+1:]...)
			break
		}
	}
	s.logger.Info("scheduler.task.stop", slog.String("task", h.name))
	return nil
}

// StopAll unschedules every task.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.running {
		h.started = false
	}
	s.running = nil
}

// Started returns the scheduled tasks in start order.
func (s *Scheduler) Started() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Handle(nil), s.running...)
}

// Due returns the scheduled tasks whose frequency divides cycle, in start
// order.
func (s *Scheduler) Due(cycle uint64) []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*Handle
	for _, h := range s.running {
		if cycle%uint64(h.frequency) == 0 {
			due = append(due, h)
		}
	}
	return due
}

func (s *Scheduler) owned(h *Handle) error {
	if h == nil || s.handles[h.id] != h {
		return errors.New(errors.CodeNotFound, "unknown task handle", nil)
	}
	return nil
}
