// Copyright 2026 © The Avatar Authors
// SPDX-License-Identifier: Apache-2.0

// Package persistence saves and restores an agent across process restarts.
// Each agent owns a directory holding two artifacts: a YAML metadata file
// with the agent record and a SQLite snapshot of the knowledge repositories.
package persistence

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/jllopis/avatar/pkg/agent"
	"github.com/jllopis/avatar/pkg/errors"
	"github.com/jllopis/avatar/pkg/telemetry"
)

// Default artifact names.
const (
	DefaultMetadataFile = "agent.yaml"
	DefaultSnapshotFile = "knowledge.db"
)

// Repository is a component whose content is part of the snapshot.
type Repository interface {
	RepositoryName() string
	SaveRepository(ctx context.Context, tx *sql.Tx) error
	LoadRepository(ctx context.Context, tx *sql.Tx) error
}

// Source is a bootstrap definition file used when no snapshot exists.
type Source struct {
	Name string
	Path string
	Load func(r io.Reader) (int, error)
}

// LoadResult describes what Load found on disk.
type LoadResult struct {
	Record           *agent.Record
	MetadataRestored bool
	SnapshotRestored bool
	BootstrapErrors  int
}

// Manager reads and writes the per-agent artifacts.
type Manager struct {
	dir          string
	metadataFile string
	snapshotFile string
	repos        []Repository
	sources      []Source
	coldStart    func(rec *agent.Record)
	logger       *slog.Logger
	tracer       trace.Tracer
}

// Option configures a Manager.
type Option func(*Manager)

// WithFileNames overrides the metadata and snapshot file names.
func WithFileNames(metadata, snapshot string) Option {
	return func(m *Manager) {
		if metadata != "" {
			m.metadataFile = metadata
		}
		if snapshot != "" {
			m.snapshotFile = snapshot
		}
	}
}

// WithBootstrap sets the definition sources read, in order, when no
// snapshot exists.
func WithBootstrap(sources ...Source) Option {
	return func(m *Manager) {
		m.sources = append([]Source(nil), sources...)
	}
}

// WithColdStart sets a hook run after bootstrap when no snapshot exists.
func WithColdStart(fn func(rec *agent.Record)) Option {
	return func(m *Manager) {
		m.coldStart = fn
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager rooted at dir that snapshots repos in the
// given order.
func NewManager(dir string, repos []Repository, opts ...Option) *Manager {
	m := &Manager{
		dir:          dir,
		metadataFile: DefaultMetadataFile,
		snapshotFile: DefaultSnapshotFile,
		repos:        repos,
		logger:       slog.Default(),
		tracer:       otel.Tracer("avatar/persistence"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AgentDir returns the directory holding the artifacts of petID.
func (m *Manager) AgentDir(petID string) string {
	return filepath.Join(m.dir, "agent_"+petID)
}

// MetadataPath returns the metadata file path of petID.
func (m *Manager) MetadataPath(petID string) string {
	return filepath.Join(m.AgentDir(petID), m.metadataFile)
}

// SnapshotPath returns the snapshot file path of petID.
func (m *Manager) SnapshotPath(petID string) string {
	return filepath.Join(m.AgentDir(petID), m.snapshotFile)
}

// Save writes the snapshot and then the metadata of petID. A failure to
// create the agent directory aborts before anything is written.
func (m *Manager) Save(ctx context.Context, petID string, rec *agent.Record) error {
	ctx, span := m.tracer.Start(ctx, "Persistence.Save", trace.WithAttributes(
		attribute.String(telemetry.AttrPetID, petID),
		attribute.String(telemetry.AttrPath, m.AgentDir(petID)),
	))
	defer span.End()
	start := time.Now()

	err := m.save(ctx, petID, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.Metrics().RecordError(ctx, err, "persistence")
		m.logger.ErrorContext(ctx, "persistence.save.error",
			slog.String("pet_id", petID),
			slog.String("error", err.Error()),
		)
		return err
	}
	telemetry.Metrics().RecordSave(ctx, time.Since(start))
	m.logger.InfoContext(ctx, "persistence.save.complete",
		slog.String("pet_id", petID),
		slog.Int("repositories", len(m.repos)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (m *Manager) save(ctx context.Context, petID string, rec *agent.Record) error {
	dir := m.AgentDir(petID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(errors.CodePersistence, "create agent directory", err).
			WithContext("path", dir)
	}

	snapshot := m.SnapshotPath(petID)
	if err := os.Remove(snapshot); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return errors.New(errors.CodePersistence, "remove previous snapshot", err).
			WithContext("path", snapshot)
	}
	if err := m.writeSnapshot(ctx, snapshot); err != nil {
		return errors.New(errors.CodePersistence, "write snapshot", err).
			WithContext("path", snapshot)
	}

	metadata := m.MetadataPath(petID)
	if err := writeMetadata(metadata, rec); err != nil {
		return errors.New(errors.CodePersistence, "write metadata", err).
			WithContext("path", metadata)
	}
	return nil
}

func (m *Manager) writeSnapshot(ctx context.Context, path string) error {
	return withTx(ctx, path, func(tx *sql.Tx) error {
		for _, repo := range m.repos {
			if err := repo.SaveRepository(ctx, tx); err != nil {
				return fmt.Errorf("%s: %w", repo.RepositoryName(), err)
			}
		}
		return nil
	})
}

func writeMetadata(path string, rec *agent.Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".agent-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load restores petID. Metadata and snapshot are handled independently: a
// missing metadata file yields fresh() and a missing snapshot triggers the
// bootstrap sources followed by the cold start hook.
func (m *Manager) Load(ctx context.Context, petID string, fresh func() *agent.Record) (LoadResult, error) {
	ctx, span := m.tracer.Start(ctx, "Persistence.Load", trace.WithAttributes(
		attribute.String(telemetry.AttrPetID, petID),
		attribute.String(telemetry.AttrPath, m.AgentDir(petID)),
	))
	defer span.End()

	result, err := m.load(ctx, petID, fresh)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.ErrorContext(ctx, "persistence.load.error",
			slog.String("pet_id", petID),
			slog.String("error", err.Error()),
		)
		return result, err
	}
	span.SetAttributes(
		attribute.Bool("avatar.persistence.metadata_restored", result.MetadataRestored),
		attribute.Bool("avatar.persistence.snapshot_restored", result.SnapshotRestored),
	)
	m.logger.InfoContext(ctx, "persistence.load.complete",
		slog.String("pet_id", petID),
		slog.Bool("metadata_restored", result.MetadataRestored),
		slog.Bool("snapshot_restored", result.SnapshotRestored),
		slog.Int("bootstrap_errors", result.BootstrapErrors),
	)
	return result, nil
}

func (m *Manager) load(ctx context.Context, petID string, fresh func() *agent.Record) (LoadResult, error) {
	var result LoadResult

	metadata := m.MetadataPath(petID)
	data, err := os.ReadFile(metadata)
	switch {
	case err == nil:
		rec := &agent.Record{}
		if err := yaml.Unmarshal(data, rec); err != nil {
			return result, errors.New(errors.CodePersistence, "decode metadata", err).
				WithContext("path", metadata)
		}
		result.Record = rec
		result.MetadataRestored = true
	case stderrors.Is(err, os.ErrNotExist):
		result.Record = fresh()
	default:
		return result, errors.New(errors.CodePersistence, "read metadata", err).
			WithContext("path", metadata)
	}

	snapshot := m.SnapshotPath(petID)
	if _, err := os.Stat(snapshot); err == nil {
		if err := m.readSnapshot(ctx, snapshot); err != nil {
			return result, errors.New(errors.CodePersistence, "restore snapshot", err).
				WithContext("path", snapshot)
		}
		result.SnapshotRestored = true
		return result, nil
	}

	result.BootstrapErrors = m.bootstrap(ctx)
	if m.coldStart != nil {
		m.coldStart(result.Record)
	}
	return result, nil
}

func (m *Manager) readSnapshot(ctx context.Context, path string) error {
	return withTx(ctx, path, func(tx *sql.Tx) error {
		for _, repo := range m.repos {
			if err := repo.LoadRepository(ctx, tx); err != nil {
				return fmt.Errorf("%s: %w", repo.RepositoryName(), err)
			}
		}
		return nil
	})
}

// bootstrap reads every source in order. A source that cannot be read or
// parsed is logged and the remaining sources are still processed.
func (m *Manager) bootstrap(ctx context.Context) int {
	failures := 0
	for _, src := range m.sources {
		count, err := loadSource(src)
		if err != nil {
			failures++
			err = errors.New(errors.CodeBootstrap, "load bootstrap source", err).
				WithContext("source", src.Name).
				WithContext("path", src.Path).
				WithRecoverable(true)
			telemetry.Metrics().RecordError(ctx, err, "bootstrap")
			m.logger.ErrorContext(ctx, "persistence.bootstrap.error",
				slog.String("source", src.Name),
				slog.String("path", src.Path),
				slog.Int("loaded", count),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.logger.InfoContext(ctx, "persistence.bootstrap.source",
			slog.String("source", src.Name),
			slog.String("path", src.Path),
			slog.Int("loaded", count),
		)
	}
	return failures
}

func loadSource(src Source) (int, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return src.Load(f)
}

func withTx(ctx context.Context, path string, fn func(tx *sql.Tx) error) (err error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
