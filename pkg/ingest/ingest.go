// Copyright 2026 © The Avatar Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest accepts procedures learned by the external learning
// subsystem and installs them in the running procedure repository.
package ingest

import (
	"context"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/avatar/pkg/core"
	"github.com/jllopis/avatar/pkg/errors"
	"github.com/jllopis/avatar/pkg/procedure"
	"github.com/jllopis/avatar/pkg/telemetry"
)

// Kind tells how far a submitted schema has been vetted.
type Kind string

const (
	KindSchema          Kind = "SCHEMA"
	KindCandidateSchema Kind = "CANDIDATE_SCHEMA"
)

// Schema is a learner submission. Body holds a procedure tree literal.
type Schema struct {
	Name string `yaml:"name" json:"name"`
	Body string `yaml:"body" json:"body"`
	Kind Kind   `yaml:"kind" json:"kind"`
}

// Decode parses a schema record. JSON payloads are accepted as YAML.
func Decode(payload string) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal([]byte(payload), &s); err != nil {
		return Schema{}, errors.New(errors.CodeProtocol, "malformed schema record", err)
	}
	s.Name = strings.TrimSpace(s.Name)
	s.Kind = Kind(strings.ToUpper(strings.TrimSpace(string(s.Kind))))
	if s.Name == "" {
		return Schema{}, errors.New(errors.CodeProtocol, "schema name is required", nil)
	}
	return s, nil
}

// TriedSchemaSetter records the candidate schema being tried.
type TriedSchemaSetter interface {
	SetTriedSchema(name string)
}

// Ingester installs learned schemas.
type Ingester struct {
	repo      core.ProcedureRepository
	rules     core.RuleEngine
	tried     TriedSchemaSetter
	typeCheck bool
	logger    *slog.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the ingester logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingester) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New creates an ingester. typeCheck is applied to every installed
// procedure.
func New(repo core.ProcedureRepository, rules core.RuleEngine, tried TriedSchemaSetter, typeCheck bool, opts ...Option) *Ingester {
	i := &Ingester{
		repo:      repo,
		rules:     rules,
		tried:     tried,
		typeCheck: typeCheck,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// HandlePayload decodes and ingests a learner message.
func (i *Ingester) HandlePayload(ctx context.Context, payload string) error {
	s, err := Decode(payload)
	if err != nil {
		i.logger.WarnContext(ctx, "ingest.decode.error", slog.String("error", err.Error()))
		return err
	}
	return i.Ingest(ctx, s.Name, s.Body, s.Kind)
}

// Ingest installs body under name, replacing any procedure of that name,
// and records it with the rule engine according to kind. Unknown kinds are
// rejected before the repository is touched.
func (i *Ingester) Ingest(ctx context.Context, name, body string, kind Kind) error {
	if strings.TrimSpace(body) == "" {
		i.logger.WarnContext(ctx, "ingest.rejected.empty", slog.String("schema", name))
		return errors.New(errors.CodeProtocol, "ingest schema", errors.ErrEmptyProcedure).
			WithContext("schema", name)
	}
	if kind != KindSchema && kind != KindCandidateSchema {
		i.logger.ErrorContext(ctx, "ingest.rejected.kind",
			slog.String("schema", name),
			slog.String("kind", string(kind)),
		)
		return errors.New(errors.CodeProtocol, "ingest schema", errors.ErrUnknownKind).
			WithContext("schema", name).
			WithContext("kind", string(kind))
	}
	tree, err := procedure.Parse(body)
	if err != nil {
		i.logger.WarnContext(ctx, "ingest.rejected.parse",
			slog.String("schema", name),
			slog.String("error", err.Error()),
		)
		return errors.New(errors.CodeProtocol, "parse schema body", err).
			WithContext("schema", name)
	}

	if i.repo.Remove(name) {
		i.logger.InfoContext(ctx, "ingest.replace", slog.String("schema", name))
	}
	p := procedure.New(name, tree, i.typeCheck)
	if err := i.repo.Add(p); err != nil {
		return errors.New(errors.CodeInvalidInput, "install schema", err).
			WithContext("schema", name)
	}

	i.rules.AddLearnedSchema(name)
	if kind == KindCandidateSchema {
		i.tried.SetTriedSchema(name)
		if err := i.rules.TryExecuteSchema(ctx, name); err != nil {
			i.logger.WarnContext(ctx, "ingest.try.error",
				slog.String("schema", name),
				slog.String("error", err.Error()),
			)
		}
	}
	telemetry.Metrics().RecordIngest(ctx, string(kind))
	i.logger.InfoContext(ctx, "ingest.installed",
		slog.String("schema", name),
		slog.String("kind", string(kind)),
		slog.Int("arity", p.Arity),
	)
	return nil
}
