// Copyright 2026 © The Avatar Authors
// SPDX-License-Identifier: Apache-2.0

// Package perception is the perception-action bridge: it folds world
// simulation messages into the knowledge store and sends the agent's
// actions back to the simulation proxy.
package perception

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/jllopis/avatar/pkg/core"
	"github.com/jllopis/avatar/pkg/errors"
	"github.com/jllopis/avatar/pkg/knowledge"
)

// DefaultActions are the world actions the bridge forwards to the proxy.
var DefaultActions = []string{
	"goto_obj", "grab", "drop", "bark", "sit", "wag_tail", "sniff", "jump", "look_at", "lick",
}

// Entity is a perceived world entity.
type Entity struct {
	ID         string            `json:"id"`
	Type       string            `json:"type,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Perception is a world simulation update.
type Perception struct {
	Timestamp uint64   `json:"timestamp"`
	Entities  []Entity `json:"entities"`
	Holding   *string  `json:"holding,omitempty"`
}

// ActionPlan is sent to the proxy for every world action.
type ActionPlan struct {
	Agent  string `json:"agent"`
	Action string `json:"action"`
	Args   []any  `json:"args,omitempty"`
}

// Bridge implements core.PerceptionBridge and procedure.ActionSink.
type Bridge struct {
	store      *knowledge.Store
	transport  core.Transport
	agentID    string
	petID      string
	proxyID    string
	actions    map[string]bool
	latest     uint64
	properties map[core.Handle]map[string]string
	sent       int
	logger     *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithActions replaces the set of forwarded world actions.
func WithActions(names ...string) Option {
	return func(b *Bridge) {
		b.actions = make(map[string]bool, len(names))
		for _, n := range names {
			b.actions[n] = true
		}
	}
}

// WithLogger sets the bridge logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBridge creates a bridge for the agent petID whose network identity is
// agentID. Actions are sent to proxyID through transport.
func NewBridge(store *knowledge.Store, transport core.Transport, agentID, petID, proxyID string, opts ...Option) *Bridge {
	b := &Bridge{
		store:      store,
		transport:  transport,
		agentID:    agentID,
		petID:      petID,
		proxyID:    proxyID,
		properties: make(map[core.Handle]map[string]string),
		logger:     slog.Default(),
	}
	WithActions(DefaultActions...)(b)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ProcessMessage applies a perception payload and returns the handles it
// touched in a stable order.
func (b *Bridge) ProcessMessage(ctx context.Context, payload string) ([]core.Handle, error) {
	var p Perception
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, errors.New(errors.CodeProtocol, "malformed perception message", err)
	}
	if p.Timestamp > b.latest {
		b.latest = p.Timestamp
	}

	touched := make(map[core.Handle]struct{}, len(p.Entities)+1)
	b.properties = make(map[core.Handle]map[string]string, len(p.Entities))
	for _, e := range p.Entities {
		if e.ID == "" {
			continue
		}
		typ := e.Type
		if typ == "" {
			typ = knowledge.TypeObject
		}
		h := b.store.AddNode(typ, e.ID, p.Timestamp)
		touched[h] = struct{}{}
		if len(e.Properties) > 0 {
			b.properties[h] = e.Properties
		}
	}
	if p.Holding != nil {
		if err := b.store.SetHoldingObject(ctx, b.petID, *p.Holding, p.Timestamp); err != nil {
			return nil, err
		}
		if h, ok := b.store.Lookup(knowledge.TypeAvatar, b.petID); ok {
			touched[h] = struct{}{}
		}
	}

	handles := make([]core.Handle, 0, len(touched))
	for h := range touched {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	b.logger.Debug("perception.update",
		slog.Uint64("timestamp", p.Timestamp),
		slog.Int("entities", len(handles)),
	)
	return handles, nil
}

// LatestTimestamp returns the newest world timestamp seen.
func (b *Bridge) LatestTimestamp() uint64 {
	return b.latest
}

// Properties returns the properties reported for h by the last message.
func (b *Bridge) Properties(h core.Handle) map[string]string {
	return b.properties[h]
}

// Sent returns the number of action plans sent.
func (b *Bridge) Sent() int {
	return b.sent
}

// Act forwards a world action to the proxy. Names outside the action set
// are not handled.
func (b *Bridge) Act(ctx context.Context, name string, args []any) (bool, error) {
	if !b.actions[name] {
		return false, nil
	}
	plan := ActionPlan{Agent: b.petID, Action: name, Args: args}
	data, err := json.Marshal(plan)
	if err != nil {
		return true, err
	}
	if err := b.transport.Send(ctx, core.NewMessage(b.agentID, b.proxyID, string(data))); err != nil {
		return true, errors.New(errors.CodeTransport, "send action plan", err).
			WithContext("action", name).
			WithRecoverable(true)
	}
	b.sent++
	b.logger.Debug("perception.action.sent", slog.String("action", name), slog.Int("args", len(args)))
	return true, nil
}
