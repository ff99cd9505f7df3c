package controller

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/avatar/pkg/core"
	"github.com/jllopis/avatar/pkg/procedure"
	"github.com/jllopis/avatar/pkg/telemetry"
)

// CommandSaveAndExit is the supervisor command that triggers shutdown.
const CommandSaveAndExit = "SAVE_AND_EXIT"

// Dispatch routes one inbound message and reports whether the caller
// should keep running. Handler failures are logged and never escape.
func (c *Controller) Dispatch(ctx context.Context, msg core.Message) core.Outcome {
	role := c.roles.Resolve(msg.From)
	ctx, span := c.tracer.Start(ctx, "Controller.Dispatch", trace.WithAttributes(
		telemetry.DispatchAttributes(msg.ID, msg.From, role.String())...,
	))
	defer span.End()

	outcome := core.Continue
	if msg.To != c.cfg.Agent.ID {
		c.logger.WarnContext(ctx, "controller.dispatch.reject",
			slog.String("message_id", msg.ID),
			slog.String("from", msg.From),
			slog.String("to", msg.To),
		)
	} else {
		switch role {
		case core.RoleProxy:
			c.handlePerception(ctx, msg)
		case core.RoleSupervisor:
			outcome = c.handleCommand(ctx, msg)
		case core.RoleShell:
			c.handleShell(ctx, msg)
		case core.RoleLearner:
			c.handleLearner(ctx, msg)
		default:
			c.logger.DebugContext(ctx, "controller.dispatch.unknown_sender",
				slog.String("message_id", msg.ID),
				slog.String("from", msg.From),
			)
		}
	}

	span.SetAttributes(attribute.String(telemetry.AttrOutcome, outcome.String()))
	telemetry.Metrics().RecordDispatch(ctx, role.String(), outcome.String())
	return outcome
}

// handlePerception relays a world update to the bridge and then propagates
// predicates for the touched entities.
func (c *Controller) handlePerception(ctx context.Context, msg core.Message) {
	handles, err := c.bridge.ProcessMessage(ctx, msg.Payload)
	if err != nil {
		telemetry.Metrics().RecordError(ctx, err, "perception")
		c.logger.ErrorContext(ctx, "controller.perception.error",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if obj, ok := c.store.HoldingObject(c.cfg.Agent.PetID); ok {
		c.record.SetGrabbedObject(obj)
	} else {
		c.record.SetGrabbedObject("")
	}
	if err := c.predicates.Update(ctx, handles, c.bridge.LatestTimestamp()); err != nil {
		c.logger.ErrorContext(ctx, "controller.predicates.error",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Controller) handleCommand(ctx context.Context, msg core.Message) core.Outcome {
	command := strings.TrimSpace(msg.Payload)
	if command != CommandSaveAndExit {
		c.logger.WarnContext(ctx, "controller.command.unknown",
			slog.String("message_id", msg.ID),
			slog.String("command", command),
		)
		return core.Continue
	}
	if err := c.Shutdown(ctx); err != nil {
		c.logger.ErrorContext(ctx, "controller.shutdown.error",
			slog.String("state", c.state.String()),
			slog.String("error", err.Error()),
		)
		return core.Continue
	}
	return core.Terminate
}

// handleShell runs the payload as an anonymous procedure. The result is
// discarded.
func (c *Controller) handleShell(ctx context.Context, msg core.Message) {
	if strings.TrimSpace(msg.Payload) == "" {
		c.logger.DebugContext(ctx, "controller.shell.empty", slog.String("message_id", msg.ID))
		return
	}
	tree, err := procedure.Parse(msg.Payload)
	if err != nil {
		c.logger.WarnContext(ctx, "controller.shell.parse_error",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if _, err := c.interp.Run(ctx, procedure.Anonymous(tree), nil); err != nil {
		c.logger.WarnContext(ctx, "controller.shell.run_error",
			slog.String("message_id", msg.ID),
			slog.String("procedure", tree.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Controller) handleLearner(ctx context.Context, msg core.Message) {
	if err := c.ingester.HandlePayload(ctx, msg.Payload); err != nil {
		telemetry.Metrics().RecordError(ctx, err, "ingest")
	}
}
