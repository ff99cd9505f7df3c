// Copyright 2026 © The Avatar Authors
// SPDX-License-Identifier: Apache-2.0

// Package rules implements the behavior rule engine: it keeps the set of
// learned schemas, selects the next action from a queue or from
// precondition rules, and hands the selected schema to the procedure
// interpreter.
package rules

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/jllopis/avatar/pkg/errors"
	"github.com/jllopis/avatar/pkg/procedure"
)

// PreconditionSuffix marks a procedure as the precondition of the schema
// named by the rest of its name.
const PreconditionSuffix = "_precondition"

// Runner executes procedures.
type Runner interface {
	Run(ctx context.Context, p procedure.Procedure, args []any) (any, error)
	Enqueue(p procedure.Procedure, args []any, done func(any, error))
}

// Lookup resolves procedures by name.
type Lookup interface {
	Get(name string) (procedure.Procedure, bool)
}

// Rule selects Schema when Precondition evaluates truthy. An empty
// precondition always matches.
type Rule struct {
	Precondition string
	Schema       string
}

// Engine is the rule engine. It is not safe for concurrent use.
type Engine struct {
	procs   Lookup
	runner  Runner
	rules   []Rule
	learned map[string]struct{}
	queue   []string
	current string
	running bool
	last    string
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine that resolves schemas in procs and runs them with
// runner.
func New(procs Lookup, runner Runner, opts ...Option) *Engine {
	e := &Engine{
		procs:   procs,
		runner:  runner,
		learned: make(map[string]struct{}),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddRule appends a selection rule. Rules are evaluated in insertion order.
func (e *Engine) AddRule(r Rule) {
	e.rules = append(e.rules, r)
}

// DeriveRules adds a rule for every "<schema>_precondition" procedure whose
// schema exists in names. It returns the number of rules added.
func (e *Engine) DeriveRules(names []string) int {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	added := 0
	for _, n := range names {
		schema, ok := strings.CutSuffix(n, PreconditionSuffix)
		if !ok || schema == "" || !known[schema] {
			continue
		}
		e.AddRule(Rule{Precondition: n, Schema: schema})
		added++
	}
	return added
}

// Rules returns a copy of the selection rules.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// AddLearnedSchema records name as a learned behavior.
func (e *Engine) AddLearnedSchema(name string) {
	e.learned[name] = struct{}{}
}

// IsLearned reports whether name is a learned behavior.
func (e *Engine) IsLearned(name string) bool {
	_, ok := e.learned[name]
	return ok
}

// Learned returns the learned schema names in sorted order.
func (e *Engine) Learned() []string {
	out := make([]string, 0, len(e.learned))
	for name := range e.learned {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TryExecuteSchema requests an execution attempt of name ahead of any
// queued action.
func (e *Engine) TryExecuteSchema(_ context.Context, name string) error {
	if _, ok := e.procs.Get(name); !ok {
		return errors.New(errors.CodeNotFound, "schema not found", nil).
			WithContext("schema", name)
	}
	e.queue = append([]string{name}, e.queue...)
	e.logger.Info("rules.schema.try", slog.String("schema", name))
	return nil
}

// Enqueue appends name to the action queue.
func (e *Engine) Enqueue(name string) {
	e.queue = append(e.queue, name)
}

// Queued returns the pending action queue.
func (e *Engine) Queued() []string {
	return append([]string(nil), e.queue...)
}

// Current returns the selected action, if any.
func (e *Engine) Current() string {
	return e.current
}

// LastCompleted returns the last action whose execution finished.
func (e *Engine) LastCompleted() string {
	return e.last
}

// ProcessNextAction selects the next action when none is in progress. The
// queue is served first; otherwise the first rule whose precondition holds
// wins.
func (e *Engine) ProcessNextAction(ctx context.Context) error {
	if e.current != "" {
		return nil
	}
	if len(e.queue) > 0 {
		e.current = e.queue[0]
		e.queue = e.queue[1:]
		e.logger.Debug("rules.action.selected", slog.String("schema", e.current), slog.String("source", "queue"))
		return nil
	}
	for _, r := range e.rules {
		if r.Precondition != "" {
			pre, ok := e.procs.Get(r.Precondition)
			if !ok {
				continue
			}
			v, err := e.runner.Run(ctx, pre, nil)
			if err != nil {
				e.logger.Warn("rules.precondition.error",
					slog.String("precondition", r.Precondition),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !procedure.Truthy(v) {
				continue
			}
		}
		e.current = r.Schema
		e.logger.Debug("rules.action.selected", slog.String("schema", e.current), slog.String("source", "rule"))
		return nil
	}
	return nil
}

// RunSchemaForCurrentAction hands the selected action to the interpreter.
// The action is cleared once the interpreter reports completion.
func (e *Engine) RunSchemaForCurrentAction(_ context.Context) error {
	if e.current == "" || e.running {
		return nil
	}
	name := e.current
	p, ok := e.procs.Get(name)
	if !ok {
		e.current = ""
		return errors.New(errors.CodeNotFound, "schema not found", nil).
			WithContext("schema", name)
	}
	e.running = true
	e.runner.Enqueue(p, nil, func(result any, err error) {
		e.running = false
		e.current = ""
		e.last = name
		if err != nil {
			e.logger.Warn("rules.action.failed", slog.String("schema", name), slog.String("error", err.Error()))
			return
		}
		e.logger.Debug("rules.action.done", slog.String("schema", name), slog.Any("result", result))
	})
	return nil
}
