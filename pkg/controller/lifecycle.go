package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jllopis/avatar/pkg/core"
	"github.com/jllopis/avatar/pkg/errors"
)

// State is the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateAdjusting
	StateSaving
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateAdjusting:
		return "ADJUSTING"
	case StateSaving:
		return "SAVING"
	case StateLoggedOut:
		return "LOGGED_OUT"
	default:
		return "IDLE"
	}
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// Shutdown runs the save-and-exit sequence. When the save fails the
// sequence stops in SAVING and no unload acknowledgment is sent.
func (c *Controller) Shutdown(ctx context.Context) error {
	if c.state != StateRunning {
		return errors.New(errors.CodeInvalidInput, "shutdown requires a running controller", nil).
			WithContext("state", c.state.String())
	}
	ctx, span := c.tracer.Start(ctx, "Controller.Shutdown")
	defer span.End()

	c.state = StateAdjusting
	c.adjust(ctx)

	c.state = StateSaving
	if err := c.persist.Save(ctx, c.cfg.Agent.PetID, c.record); err != nil {
		span.RecordError(err)
		return err
	}
	c.sched.StopAll()

	ack := fmt.Sprintf("SUCCESS UNLOAD %s %s", c.cfg.Agent.ID, c.cfg.Agent.ExternalAgentID())
	if err := c.send(ctx, core.RoleProxy, ack); err != nil {
		c.logger.ErrorContext(ctx, "controller.unload.ack_error", slog.String("error", err.Error()))
	}
	if err := c.transport.Deregister(ctx); err != nil {
		c.logger.ErrorContext(ctx, "controller.deregister.error", slog.String("error", err.Error()))
	}
	c.state = StateLoggedOut
	c.logger.InfoContext(ctx, "controller.logged_out", slog.String("pet_id", c.cfg.Agent.PetID))
	return nil
}

// adjust drops the grabbed object and leaves LEARNING mode so the saved
// state is at rest.
func (c *Controller) adjust(ctx context.Context) {
	ts := c.bridge.LatestTimestamp()
	if c.record.HasGrabbedObject() {
		obj := c.record.GrabbedObject
		if err := c.store.SetHoldingObject(ctx, c.cfg.Agent.PetID, "", ts); err != nil {
			c.logger.ErrorContext(ctx, "controller.adjust.drop_error", slog.String("error", err.Error()))
		}
		c.record.SetGrabbedObject("")
		c.logger.InfoContext(ctx, "controller.adjust.drop", slog.String("object", obj))
	}
	if c.record.IsLearning() {
		c.stopLearning(ctx, ts)
	}
}

func (c *Controller) stopLearning(ctx context.Context, ts uint64) {
	schema, ok := c.record.StopLearning(ts)
	if !ok {
		return
	}
	if err := c.send(ctx, core.RoleLearner, fmt.Sprintf("STOP_LEARNING %s %d", schema, ts)); err != nil {
		c.logger.ErrorContext(ctx, "controller.learning.notify_error",
			slog.String("schema", schema),
			slog.String("error", err.Error()),
		)
	}
	c.logger.InfoContext(ctx, "controller.learning.stop",
		slog.String("schema", schema),
		slog.Uint64("timestamp", ts),
	)
}
