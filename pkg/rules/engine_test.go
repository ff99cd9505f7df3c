package rules

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jllopis/avatar/pkg/errors"
	"github.com/jllopis/avatar/pkg/procedure"
	_ "modernc.org/sqlite"
)

func newEngine(t *testing.T, defs string) (*Engine, *procedure.Interpreter, *procedure.Repository) {
	t.Helper()
	repo := procedure.NewRepository()
	for _, line := range []string{defs} {
		if line == "" {
			continue
		}
		if _, err := procedure.LoadDefinitions(repo, strings.NewReader(line), false); err != nil {
			t.Fatalf("load definitions: %v", err)
		}
	}
	interp := procedure.NewInterpreter(repo)
	return New(repo, interp), interp, repo
}

func TestTryExecuteSchemaJumpsQueue(t *testing.T) {
	ctx := context.Background()
	e, interp, _ := newEngine(t, "wander := true\nfetch-ball := true\n")
	e.Enqueue("wander")

	if err := e.TryExecuteSchema(ctx, "fetch-ball"); err != nil {
		t.Fatalf("try: %v", err)
	}
	if diff := cmp.Diff([]string{"fetch-ball", "wander"}, e.Queued()); diff != "" {
		t.Fatalf("queue (-want +got):\n%s", diff)
	}

	if err := e.ProcessNextAction(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if e.Current() != "fetch-ball" {
		t.Fatalf("expected fetch-ball selected, got %q", e.Current())
	}
	if err := e.RunSchemaForCurrentAction(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if interp.Pending() != 1 {
		t.Fatalf("expected schema queued on interpreter, got %d", interp.Pending())
	}
	// A second run before completion must not enqueue twice.
	_ = e.RunSchemaForCurrentAction(ctx)
	if interp.Pending() != 1 {
		t.Fatalf("expected a single pending run, got %d", interp.Pending())
	}
	if err := interp.RunCycle(ctx); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if e.Current() != "" || e.LastCompleted() != "fetch-ball" {
		t.Fatalf("expected completion, current=%q last=%q", e.Current(), e.LastCompleted())
	}
}

func TestTryExecuteUnknownSchema(t *testing.T) {
	e, _, _ := newEngine(t, "")
	err := e.TryExecuteSchema(context.Background(), "missing")
	if !errors.HasCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRuleSelection(t *testing.T) {
	ctx := context.Background()
	e, _, repo := newEngine(t, "sleep := true\nsleep_precondition := false\nplay := true\nplay_precondition := not(false)\n")

	if n := e.DeriveRules(repo.Names()); n != 2 {
		t.Fatalf("expected 2 rules, got %d", n)
	}
	if err := e.ProcessNextAction(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	if e.Current() != "play" {
		t.Fatalf("expected play selected, got %q", e.Current())
	}
}

func TestLearnedSnapshot(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "rules.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	src, _, _ := newEngine(t, "")
	src.AddLearnedSchema("fetch-ball")
	src.AddLearnedSchema("sit")
	tx, _ := db.BeginTx(ctx, nil)
	if err := src.SaveRepository(ctx, tx); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = tx.Commit()

	dst, _, _ := newEngine(t, "")
	dst.AddLearnedSchema("stale")
	tx, _ = db.BeginTx(ctx, nil)
	if err := dst.LoadRepository(ctx, tx); err != nil {
		t.Fatalf("load: %v", err)
	}
	_ = tx.Commit()
	if diff := cmp.Diff(src.Learned(), dst.Learned()); diff != "" {
		t.Fatalf("learned (-want +got):\n%s", diff)
	}
}
