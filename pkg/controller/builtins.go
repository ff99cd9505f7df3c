package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jllopis/avatar/pkg/core"
)

// registerBuiltins exposes agent state to procedures, mostly for the
// interactive shell.
func (c *Controller) registerBuiltins() {
	c.interp.Register("start_learning", func(ctx context.Context, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("start_learning: want 1 argument, got %d", len(args))
		}
		schema := fmt.Sprint(args[0])
		c.record.StartLearning(schema)
		if err := c.send(ctx, core.RoleLearner, "START_LEARNING "+schema); err != nil {
			c.logger.ErrorContext(ctx, "controller.learning.notify_error",
				slog.String("schema", schema),
				slog.String("error", err.Error()),
			)
		}
		return true, nil
	})
	c.interp.Register("stop_learning", func(ctx context.Context, _ []any) (any, error) {
		if !c.record.IsLearning() {
			return false, nil
		}
		c.stopLearning(ctx, c.bridge.LatestTimestamp())
		return true, nil
	})
	c.interp.Register("holding", func(context.Context, []any) (any, error) {
		if !c.record.HasGrabbedObject() {
			return false, nil
		}
		return c.record.GrabbedObject, nil
	})
	c.interp.Register("mode", func(context.Context, []any) (any, error) {
		return string(c.record.Mode), nil
	})
	c.interp.Register("is_learned", func(_ context.Context, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("is_learned: want 1 argument, got %d", len(args))
		}
		return c.rules.IsLearned(fmt.Sprint(args[0])), nil
	})
}
