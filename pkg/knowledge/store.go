// Copyright 2026 © The Avatar Authors
// SPDX-License-Identifier: Apache-2.0

// Package knowledge implements the agent's fact store: typed nodes carrying
// short-term importance and experience counters, plus timestamped
// predicates over those nodes.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jllopis/avatar/pkg/core"
)

// Handle identifies a node in the store.
type Handle = core.Handle

// Node types used by the controller.
const (
	TypeAgent  = "agent"
	TypeAvatar = "avatar"
	TypeObject = "object"
	TypeTrait  = "trait"
)

// Predicate names maintained by the controller.
const (
	PredHolding   = "holding"
	PredPerceived = "perceived"
	PredOwner     = "owner"
	PredHasTrait  = "has_trait"
)

const defaultImportance = 100

// Node is a typed, named entity.
type Node struct {
	Handle     Handle
	Type       string
	Name       string
	Importance int
	Experience int
	UpdatedAt  uint64
}

// Fact is a predicate instance over node handles.
type Fact struct {
	Predicate string
	Args      []Handle
	Value     string
	Timestamp uint64
}

// Store is an in-memory knowledge store. It is not safe for concurrent
// use; the controller serializes access.
type Store struct {
	nodes   map[Handle]*Node
	byName  map[string]Handle
	facts   map[string]Fact
	next    Handle
	decay   int
	floor   int
	lastExp uint64
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithDecay sets the per-tick importance decay and its floor.
func WithDecay(amount, floor int) Option {
	return func(s *Store) {
		s.decay = amount
		s.floor = floor
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		nodes:  make(map[Handle]*Node),
		byName: make(map[string]Handle),
		facts:  make(map[string]Fact),
		decay:  1,
		floor:  -100,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func nodeKey(typ, name string) string {
	return typ + "\x00" + name
}

func factKey(pred string, args []Handle) string {
	var b strings.Builder
	b.WriteString(pred)
	for _, a := range args {
		fmt.Fprintf(&b, ":%d", a)
	}
	return b.String()
}

// AddNode returns the handle of the (typ, name) node, creating it if needed.
// Touching a node restores its importance.
func (s *Store) AddNode(typ, name string, ts uint64) Handle {
	key := nodeKey(typ, name)
	if h, ok := s.byName[key]; ok {
		n := s.nodes[h]
		n.Importance = defaultImportance
		if ts > n.UpdatedAt {
			n.UpdatedAt = ts
		}
		return h
	}
	s.next++
	h := s.next
	s.nodes[h] = &Node{Handle: h, Type: typ, Name: name, Importance: defaultImportance, UpdatedAt: ts}
	s.byName[key] = h
	return h
}

// Lookup returns the handle of the (typ, name) node.
func (s *Store) Lookup(typ, name string) (Handle, bool) {
	h, ok := s.byName[nodeKey(typ, name)]
	return h, ok
}

// Node returns a copy of the node with handle h.
func (s *Store) Node(h Handle) (Node, bool) {
	n, ok := s.nodes[h]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	return len(s.nodes)
}

// SetPredicate records pred(args...) = value at ts. An empty value removes
// the fact.
func (s *Store) SetPredicate(pred, value string, ts uint64, args ...Handle) {
	key := factKey(pred, args)
	if value == "" {
		delete(s.facts, key)
		return
	}
	s.facts[key] = Fact{Predicate: pred, Args: append([]Handle(nil), args...), Value: value, Timestamp: ts}
}

// Predicate returns the fact pred(args...).
func (s *Store) Predicate(pred string, args ...Handle) (Fact, bool) {
	f, ok := s.facts[factKey(pred, args)]
	return f, ok
}

// Facts returns all facts for pred sorted by key.
func (s *Store) Facts(pred string) []Fact {
	var keys []string
	for k, f := range s.facts {
		if f.Predicate == pred {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]Fact, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.facts[k])
	}
	return out
}

// SetHoldingObject records that agentID holds objectID. An empty objectID
// clears whatever the agent was holding.
func (s *Store) SetHoldingObject(_ context.Context, agentID, objectID string, ts uint64) error {
	agent := s.AddNode(TypeAvatar, agentID, ts)
	for key, f := range s.facts {
		if f.Predicate == PredHolding && len(f.Args) == 2 && f.Args[0] == agent {
			delete(s.facts, key)
		}
	}
	if objectID == "" {
		return nil
	}
	obj := s.AddNode(TypeObject, objectID, ts)
	s.SetPredicate(PredHolding, "true", ts, agent, obj)
	return nil
}

// HoldingObject returns the object agentID holds, if any.
func (s *Store) HoldingObject(agentID string) (string, bool) {
	agent, ok := s.Lookup(TypeAvatar, agentID)
	if !ok {
		return "", false
	}
	for _, f := range s.facts {
		if f.Predicate == PredHolding && len(f.Args) == 2 && f.Args[0] == agent {
			if n, ok := s.nodes[f.Args[1]]; ok {
				return n.Name, true
			}
		}
	}
	return "", false
}

// DecayShortTermImportance lowers every node's importance by the configured
// amount, stopping at the floor. It returns the number of nodes changed.
func (s *Store) DecayShortTermImportance(_ context.Context) int {
	changed := 0
	for _, n := range s.nodes {
		if n.Importance <= s.floor {
			continue
		}
		n.Importance -= s.decay
		if n.Importance < s.floor {
			n.Importance = s.floor
		}
		changed++
	}
	return changed
}

// RecordEntityExperience increments the experience of every entity updated
// since the previous call and returns how many were credited.
func (s *Store) RecordEntityExperience(_ context.Context, ts uint64) int {
	credited := 0
	for _, n := range s.nodes {
		if n.Type != TypeObject && n.Type != TypeAvatar {
			continue
		}
		if n.UpdatedAt > s.lastExp {
			n.Experience++
			credited++
		}
	}
	if ts > s.lastExp {
		s.lastExp = ts
	}
	return credited
}

// InitAgent registers the agent, its owner and its traits. It is used on a
// cold start when no snapshot exists.
func (s *Store) InitAgent(agentID, ownerID, traits string) {
	agent := s.AddNode(TypeAvatar, agentID, 0)
	if ownerID != "" {
		owner := s.AddNode(TypeAvatar, ownerID, 0)
		s.SetPredicate(PredOwner, "true", 0, owner, agent)
	}
	for _, trait := range strings.FieldsFunc(traits, func(r rune) bool { return r == ',' || r == ' ' }) {
		t := s.AddNode(TypeTrait, trait, 0)
		s.SetPredicate(PredHasTrait, "true", 0, agent, t)
	}
	s.logger.Debug("knowledge.agent.init",
		slog.String("agent", agentID),
		slog.String("owner", ownerID),
		slog.String("traits", traits),
	)
}

// Reset drops all content.
func (s *Store) Reset() {
	s.nodes = make(map[Handle]*Node)
	s.byName = make(map[string]Handle)
	s.facts = make(map[string]Fact)
	s.next = 0
	s.lastExp = 0
}
