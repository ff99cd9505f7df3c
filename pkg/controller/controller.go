// Copyright 2026 © The Avatar Authors
// SPDX-License-Identifier: Apache-2.0

// Package controller is the control core of an agent: it owns every
// collaborator, routes inbound messages, wires the periodic tasks and runs
// the save-and-exit lifecycle.
//
// The controller is not safe for concurrent use. Dispatch, the scheduled
// task bodies and Shutdown must be serialized by the caller; the runtime
// package does this with a single mutex.
package controller

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/avatar/pkg/agent"
	"github.com/jllopis/avatar/pkg/config"
	"github.com/jllopis/avatar/pkg/core"
	"github.com/jllopis/avatar/pkg/errors"
	"github.com/jllopis/avatar/pkg/ingest"
	"github.com/jllopis/avatar/pkg/knowledge"
	"github.com/jllopis/avatar/pkg/perception"
	"github.com/jllopis/avatar/pkg/persistence"
	"github.com/jllopis/avatar/pkg/procedure"
	"github.com/jllopis/avatar/pkg/rules"
	"github.com/jllopis/avatar/pkg/scheduler"
	"github.com/jllopis/avatar/pkg/telemetry"
)

var (
	_ core.KnowledgeStore       = (*knowledge.Store)(nil)
	_ core.PerceptionBridge     = (*perception.Bridge)(nil)
	_ core.PredicatesUpdater    = (*perception.PredicatesUpdater)(nil)
	_ core.ProcedureRepository  = (*procedure.Repository)(nil)
	_ core.ProcedureInterpreter = (*procedure.Interpreter)(nil)
	_ core.RuleEngine           = (*rules.Engine)(nil)
	_ core.HealthChecker        = (*Controller)(nil)
)

// Controller drives a single agent.
type Controller struct {
	cfg       *config.Config
	roles     core.Roles
	transport core.Transport

	record     *agent.Record
	store      *knowledge.Store
	procs      *procedure.Repository
	interp     *procedure.Interpreter
	bridge     *perception.Bridge
	predicates *perception.PredicatesUpdater
	rules      *rules.Engine
	mode       core.ModeHandler
	ingester   *ingest.Ingester
	persist    *persistence.Manager
	sched      *scheduler.Scheduler
	handles    map[string]*scheduler.Handle

	teardown []teardownStep
	state    State
	logger   *slog.Logger
	tracer   trace.Tracer
}

type teardownStep struct {
	name string
	fn   func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the base logger. Collaborators get a component logger
// derived from it.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds the controller and its collaborators. Collaborators are
// constructed in dependency order and torn down in reverse by Close.
func New(cfg *config.Config, transport core.Transport, opts ...Option) (*Controller, error) {
	c := &Controller{
		cfg:       cfg,
		transport: transport,
		roles: core.NewRoles(core.Identities{
			Proxy:      cfg.Identities.Proxy,
			Supervisor: cfg.Identities.Supervisor,
			Shell:      cfg.Identities.Shell,
			Learner:    cfg.Identities.Learner,
		}),
		handles: make(map[string]*scheduler.Handle),
		logger:  slog.Default(),
		tracer:  otel.Tracer("avatar/controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	log := func(name string) *slog.Logger { return telemetry.Component(c.logger, name) }
	c.record = c.freshRecord()

	c.store = knowledge.NewStore(
		knowledge.WithDecay(cfg.Knowledge.DecayAmount, cfg.Knowledge.MinImportance),
		knowledge.WithLogger(log("knowledge")),
	)
	c.onTeardown("knowledge", c.store.Reset)

	c.procs = procedure.NewRepository()
	c.interp = procedure.NewInterpreter(c.procs, procedure.WithInterpreterLogger(log("procedure")))
	c.onTeardown("procedure", c.interp.Clear)

	c.bridge = perception.NewBridge(c.store, transport, cfg.Agent.ID, cfg.Agent.PetID, cfg.Identities.Proxy,
		perception.WithLogger(log("perception")),
	)
	c.interp.SetActionSink(c.bridge)
	c.predicates = perception.NewPredicatesUpdater(c.store, c.bridge, cfg.Agent.PetID)
	c.onTeardown("perception", func() { c.interp.SetActionSink(nil) })

	c.rules = rules.New(c.procs, c.interp, rules.WithLogger(log("rules")))
	c.mode = &modeHandler{c: c}
	c.ingester = ingest.New(c.procs, c.rules, recordRef{c}, cfg.Procedures.TypeCheck, ingest.WithLogger(log("ingest")))
	c.registerBuiltins()

	c.persist = persistence.NewManager(cfg.Persistence.DatabaseDir,
		[]persistence.Repository{c.procs, c.store, c.rules},
		persistence.WithFileNames(cfg.Persistence.MetadataFile, cfg.Persistence.SnapshotFile),
		persistence.WithBootstrap(c.bootstrapSources()...),
		persistence.WithColdStart(func(rec *agent.Record) {
			c.store.InitAgent(cfg.Agent.PetID, rec.OwnerID, rec.Traits)
		}),
		persistence.WithLogger(log("persistence")),
	)

	c.sched = scheduler.New(scheduler.WithLogger(log("scheduler")))
	c.onTeardown("scheduler", c.sched.StopAll)
	if err := c.registerTasks(c.periodicTasks()); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Controller) onTeardown(name string, fn func()) {
	c.teardown = append(c.teardown, teardownStep{name: name, fn: fn})
}

func (c *Controller) freshRecord() *agent.Record {
	a := c.cfg.Agent
	return agent.NewRecord(a.PetID, a.Name, a.Type, a.DefaultType, a.Traits, a.OwnerID)
}

func (c *Controller) bootstrapSources() []persistence.Source {
	typeCheck := c.cfg.Procedures.TypeCheck
	defs := func(r io.Reader) (int, error) {
		return procedure.LoadDefinitions(c.procs, r, typeCheck)
	}
	selects := func(r io.Reader) (int, error) {
		return procedure.LoadSelectDefinitions(c.procs, r, typeCheck)
	}
	b := c.cfg.Bootstrap
	var sources []persistence.Source
	for _, src := range []persistence.Source{
		{Name: "stdlib", Path: b.Stdlib, Load: defs},
		{Name: "rules_preconditions", Path: b.RulesPreconditions, Load: defs},
		{Name: "select_preconditions", Path: b.SelectPreconditions, Load: selects},
		{Name: "action_schemata", Path: b.ActionSchemata, Load: defs},
	} {
		if src.Path == "" {
			c.logger.Debug("controller.bootstrap.skip", slog.String("source", src.Name))
			continue
		}
		sources = append(sources, src)
	}
	return sources
}

// Start restores the agent, schedules the enabled tasks and acknowledges
// the load to the proxy. A failed acknowledgment is fatal.
func (c *Controller) Start(ctx context.Context) error {
	if c.state != StateIdle {
		return errors.New(errors.CodeInvalidInput, "controller already started", nil)
	}
	res, err := c.persist.Load(ctx, c.cfg.Agent.PetID, c.freshRecord)
	if err != nil {
		return err
	}
	c.record = res.Record
	if n := c.rules.DeriveRules(c.procs.Names()); n > 0 {
		c.logger.Info("controller.rules.derived", slog.Int("rules", n))
	}
	if err := c.wireTasks(); err != nil {
		return err
	}
	c.state = StateRunning

	ack := fmt.Sprintf("SUCCESS LOAD %s %s", c.cfg.Agent.ID, c.cfg.Agent.ExternalAgentID())
	if err := c.send(ctx, core.RoleProxy, ack); err != nil {
		return errors.New(errors.CodeTransport, "send load acknowledgment", err).
			WithContext("to", c.roles.Identity(core.RoleProxy))
	}
	c.logger.Info("controller.start",
		slog.String("pet_id", c.cfg.Agent.PetID),
		slog.String("mode", string(c.record.Mode)),
		slog.Bool("metadata_restored", res.MetadataRestored),
		slog.Bool("snapshot_restored", res.SnapshotRestored),
		slog.Int("procedures", c.procs.Len()),
	)
	return nil
}

// Close releases the collaborators in reverse construction order.
func (c *Controller) Close() {
	for i := len(c.teardown) - 1; i >= 0; i-- {
		step := c.teardown[i]
		step.fn()
		c.logger.Debug("controller.close", slog.String("component", step.name))
	}
	c.teardown = nil
}

func (c *Controller) send(ctx context.Context, role core.SenderRole, payload string) error {
	return c.transport.Send(ctx, core.NewMessage(c.cfg.Agent.ID, c.roles.Identity(role), payload))
}

// Record returns the agent record.
func (c *Controller) Record() *agent.Record { return c.record }

// Store returns the knowledge store.
func (c *Controller) Store() *knowledge.Store { return c.store }

// Procedures returns the procedure repository.
func (c *Controller) Procedures() *procedure.Repository { return c.procs }

// Rules returns the rule engine.
func (c *Controller) Rules() *rules.Engine { return c.rules }

// Scheduler returns the task scheduler.
func (c *Controller) Scheduler() *scheduler.Scheduler { return c.sched }

// Check reports the lifecycle state as a health result.
func (c *Controller) Check(_ context.Context) core.HealthResult {
	result := core.HealthResult{Message: c.state.String()}
	switch c.state {
	case StateRunning:
		result.Status = core.HealthHealthy
	case StateAdjusting, StateSaving:
		result.Status = core.HealthDegraded
	default:
		result.Status = core.HealthUnhealthy
	}
	return result
}

// recordRef lets collaborators update the current record, which Start
// replaces after loading.
type recordRef struct{ c *Controller }

func (r recordRef) SetTriedSchema(name string) {
	r.c.record.SetTriedSchema(name)
}
