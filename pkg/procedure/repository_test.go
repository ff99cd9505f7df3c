package procedure

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func TestRepositoryUniqueNames(t *testing.T) {
	repo := NewRepository()
	if err := repo.Add(New("fetch", MustParse("goto_obj(ball)"), false)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := repo.Add(New("fetch", MustParse("grab(ball)"), false)); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
	if !repo.Remove("fetch") {
		t.Fatal("expected remove to report existing procedure")
	}
	if repo.Remove("fetch") {
		t.Fatal("expected second remove to report missing procedure")
	}
	if err := repo.Add(New("fetch", MustParse("grab(ball)"), false)); err != nil {
		t.Fatalf("add after remove: %v", err)
	}
	p, _ := repo.Get("fetch")
	if p.Body.String() != "grab(ball)" {
		t.Fatalf("unexpected body %s", p.Body)
	}
}

func TestRepositoryTypeCheck(t *testing.T) {
	repo := NewRepository()
	p := Procedure{Name: "follow", Arity: 0, Body: MustParse("goto_obj($2)"), TypeChecked: true}
	if err := repo.Add(p); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, _ := repo.Get("follow")
	if got.Arity != 2 {
		t.Fatalf("expected type check to recompute arity 2, got %d", got.Arity)
	}
	if err := repo.Add(Procedure{Name: "bad", Body: MustParse("f($0)"), TypeChecked: true}); err == nil {
		t.Fatal("expected $0 to fail type check")
	}
}

func TestRepositorySnapshot(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "snap.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	src := NewRepository()
	_ = src.Add(New("fetch", MustParse(`and_seq(goto_obj($1) say("got it"))`), true))
	_ = src.Add(New("sit", MustParse("sit"), false))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := src.SaveRepository(ctx, tx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	dst := NewRepository()
	tx, err = db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := dst.LoadRepository(ctx, tx); err != nil {
		t.Fatalf("load: %v", err)
	}
	_ = tx.Commit()

	if strings.Join(dst.Names(), ",") != "fetch,sit" {
		t.Fatalf("unexpected names %v", dst.Names())
	}
	fetch, _ := dst.Get("fetch")
	if fetch.Arity != 1 || !fetch.TypeChecked {
		t.Fatalf("unexpected restored procedure %+v", fetch)
	}
	if fetch.Body.String() != `and_seq(goto_obj($1) say("got it"))` {
		t.Fatalf("unexpected restored body %s", fetch.Body)
	}
}

func TestLoadDefinitions(t *testing.T) {
	repo := NewRepository()
	src := strings.NewReader(`
# base vocabulary
fetch := and_seq(goto_obj($1) grab($1))
sit := sit_down
broken := f(
 := nothing
`)
	n, err := LoadDefinitions(repo, src, false)
	if n != 2 {
		t.Fatalf("expected 2 definitions, got %d", n)
	}
	if err == nil {
		t.Fatal("expected malformed lines to be reported")
	}
	if !repo.Contains("fetch") || !repo.Contains("sit") {
		t.Fatalf("missing definitions: %v", repo.Names())
	}
}

func TestLoadSelectDefinitions(t *testing.T) {
	repo := NewRepository()
	n, err := LoadSelectDefinitions(repo, strings.NewReader("pick_rule := is_hungry | is_bored | true\n"), false)
	if err != nil || n != 1 {
		t.Fatalf("load select: n=%d err=%v", n, err)
	}
	p, _ := repo.Get("pick_rule")
	if p.Body.String() != "select(is_hungry is_bored true)" {
		t.Fatalf("unexpected select body %s", p.Body)
	}
}
