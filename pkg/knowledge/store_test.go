package knowledge

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"
)

func TestHoldingObject(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	if err := s.SetHoldingObject(ctx, "1", "ball_99", 10); err != nil {
		t.Fatalf("set holding: %v", err)
	}
	if obj, ok := s.HoldingObject("1"); !ok || obj != "ball_99" {
		t.Fatalf("expected ball_99 held, got %q %v", obj, ok)
	}
	if err := s.SetHoldingObject(ctx, "1", "", 11); err != nil {
		t.Fatalf("clear holding: %v", err)
	}
	if _, ok := s.HoldingObject("1"); ok {
		t.Fatal("expected holding to be cleared")
	}
}

func TestDecayShortTermImportance(t *testing.T) {
	s := NewStore(WithDecay(60, -10))
	h := s.AddNode(TypeObject, "stick", 1)

	if got := s.DecayShortTermImportance(context.Background()); got != 1 {
		t.Fatalf("expected 1 changed node, got %d", got)
	}
	s.DecayShortTermImportance(context.Background())
	s.DecayShortTermImportance(context.Background())
	n, _ := s.Node(h)
	if n.Importance != -10 {
		t.Fatalf("expected importance clamped at floor -10, got %d", n.Importance)
	}
	if got := s.DecayShortTermImportance(context.Background()); got != 0 {
		t.Fatalf("expected no change at floor, got %d", got)
	}

	s.AddNode(TypeObject, "stick", 2)
	n, _ = s.Node(h)
	if n.Importance != defaultImportance {
		t.Fatalf("expected touch to restore importance, got %d", n.Importance)
	}
}

func TestRecordEntityExperience(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	ball := s.AddNode(TypeObject, "ball", 5)
	s.AddNode(TypeTrait, "playful", 5)

	if got := s.RecordEntityExperience(ctx, 5); got != 1 {
		t.Fatalf("expected only the object to be credited, got %d", got)
	}
	if got := s.RecordEntityExperience(ctx, 6); got != 0 {
		t.Fatalf("expected nothing new, got %d", got)
	}
	s.AddNode(TypeObject, "ball", 7)
	s.RecordEntityExperience(ctx, 7)
	n, _ := s.Node(ball)
	if n.Experience != 2 {
		t.Fatalf("expected experience 2, got %d", n.Experience)
	}
}

func TestInitAgent(t *testing.T) {
	s := NewStore()
	s.InitAgent("1", "owner_7", "playful, curious")
	agent, ok := s.Lookup(TypeAvatar, "1")
	if !ok {
		t.Fatal("expected agent node")
	}
	owner, _ := s.Lookup(TypeAvatar, "owner_7")
	if _, ok := s.Predicate(PredOwner, owner, agent); !ok {
		t.Fatal("expected owner fact")
	}
	if got := len(s.Facts(PredHasTrait)); got != 2 {
		t.Fatalf("expected 2 traits, got %d", got)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "knowledge.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	src := NewStore()
	src.InitAgent("1", "owner_7", "playful")
	_ = src.SetHoldingObject(ctx, "1", "ball", 42)
	src.RecordEntityExperience(ctx, 42)

	tx, _ := db.BeginTx(ctx, nil)
	if err := src.SaveRepository(ctx, tx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	dst := NewStore()
	dst.AddNode(TypeObject, "stale", 1)
	tx, _ = db.BeginTx(ctx, nil)
	if err := dst.LoadRepository(ctx, tx); err != nil {
		t.Fatalf("load: %v", err)
	}
	_ = tx.Commit()

	if diff := cmp.Diff(src.nodes, dst.nodes); diff != "" {
		t.Fatalf("nodes differ (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(src.facts, dst.facts); diff != "" {
		t.Fatalf("facts differ (-want +got):\n%s", diff)
	}
	if _, ok := dst.Lookup(TypeObject, "stale"); ok {
		t.Fatal("expected load to replace previous content")
	}
	if h := dst.AddNode(TypeObject, "new", 50); h <= src.next {
		t.Fatalf("expected fresh handle after %d, got %d", src.next, h)
	}
}
