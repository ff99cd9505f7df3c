package controller

import (
	"context"
	"log/slog"

	"github.com/jllopis/avatar/pkg/agent"
)

// modeHandler keeps the record in step with the store before each action
// selection and reports mode changes.
type modeHandler struct {
	c    *Controller
	last agent.Mode
}

func (m *modeHandler) Update(ctx context.Context, ts uint64) error {
	c := m.c
	obj, _ := c.store.HoldingObject(c.cfg.Agent.PetID)
	c.record.SetGrabbedObject(obj)

	if c.record.Mode != m.last {
		c.logger.InfoContext(ctx, "controller.mode.change",
			slog.String("from", string(m.last)),
			slog.String("to", string(c.record.Mode)),
			slog.Uint64("timestamp", ts),
		)
		m.last = c.record.Mode
	}
	return nil
}
