package controller

import (
	"context"
	"log/slog"

	"github.com/jllopis/avatar/pkg/config"
	"github.com/jllopis/avatar/pkg/errors"
	"github.com/jllopis/avatar/pkg/scheduler"
)

// Periodic task names, in creation order.
const (
	TaskProcedureInterpreter = "procedure_interpreter"
	TaskActionSelection      = "action_selection"
	TaskImportanceDecay      = "importance_decay"
	TaskEntityExperience     = "entity_experience"
)

func (c *Controller) periodicTasks() map[string]scheduler.TaskFunc {
	return map[string]scheduler.TaskFunc{
		TaskProcedureInterpreter: func(ctx context.Context, _ uint64) error {
			return c.interp.RunCycle(ctx)
		},
		TaskActionSelection: func(ctx context.Context, _ uint64) error {
			return c.SchemaSelection(ctx)
		},
		TaskImportanceDecay: func(ctx context.Context, _ uint64) error {
			c.DecayShortTermImportance(ctx)
			return nil
		},
		TaskEntityExperience: func(ctx context.Context, _ uint64) error {
			c.store.RecordEntityExperience(ctx, c.bridge.LatestTimestamp())
			return nil
		},
	}
}

func (c *Controller) registerTasks(tasks map[string]scheduler.TaskFunc) error {
	for name, fn := range tasks {
		if err := c.sched.Register(name, func() scheduler.Task { return fn }); err != nil {
			return errors.New(errors.CodeInternal, "register task", err).WithContext("task", name)
		}
	}
	return nil
}

// wireTasks creates and starts the enabled tasks. Later tasks rely on the
// earlier ones: action selection hands schemas to the interpreter task.
func (c *Controller) wireTasks() error {
	t := c.cfg.Tasks
	for _, task := range []struct {
		name string
		cfg  config.TaskConfig
	}{
		{TaskProcedureInterpreter, t.ProcedureInterpreter},
		{TaskActionSelection, t.ActionSelection},
		{TaskImportanceDecay, t.ImportanceDecay},
		{TaskEntityExperience, t.EntityExperience},
	} {
		if !task.cfg.Enabled {
			c.logger.Info("controller.task.disabled", slog.String("task", task.name))
			continue
		}
		h, err := c.sched.Create(task.name)
		if err != nil {
			return err
		}
		if err := c.sched.SetFrequency(h, task.cfg.Frequency); err != nil {
			return err
		}
		if err := c.sched.Start(h); err != nil {
			return err
		}
		c.handles[task.name] = h
	}
	return nil
}

// Task returns the handle of a started periodic task.
func (c *Controller) Task(name string) (*scheduler.Handle, bool) {
	h, ok := c.handles[name]
	return h, ok
}

// SchemaSelection advances the mode handler, selects the next action and
// hands it to the interpreter.
func (c *Controller) SchemaSelection(ctx context.Context) error {
	if err := c.mode.Update(ctx, c.bridge.LatestTimestamp()); err != nil {
		return err
	}
	if err := c.rules.ProcessNextAction(ctx); err != nil {
		return err
	}
	return c.rules.RunSchemaForCurrentAction(ctx)
}

// DecayShortTermImportance decays the importance of every stored entity.
func (c *Controller) DecayShortTermImportance(ctx context.Context) int {
	changed := c.store.DecayShortTermImportance(ctx)
	c.logger.DebugContext(ctx, "controller.decay", slog.Int("changed", changed))
	return changed
}
