package procedure

import (
	"context"
	"errors"
	"testing"
)

type recordingSink struct {
	known map[string]bool
	calls []string
}

func (s *recordingSink) Act(_ context.Context, name string, args []any) (bool, error) {
	if !s.known[name] {
		return false, nil
	}
	s.calls = append(s.calls, name)
	return true, nil
}

func TestInterpreterRunsStoredProcedures(t *testing.T) {
	repo := NewRepository()
	_ = repo.Add(New("fetch", MustParse("and_seq(goto_obj($1) grab($1))"), false))
	sink := &recordingSink{known: map[string]bool{"goto_obj": true, "grab": true}}
	interp := NewInterpreter(repo, WithActionSink(sink))

	result, err := interp.Run(context.Background(), Anonymous(MustParse("fetch(ball)")), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result != true {
		t.Fatalf("expected true, got %v", result)
	}
	if len(sink.calls) != 2 || sink.calls[0] != "goto_obj" || sink.calls[1] != "grab" {
		t.Fatalf("unexpected action calls %v", sink.calls)
	}
}

func TestInterpreterLiteralsAndBuiltins(t *testing.T) {
	interp := NewInterpreter(NewRepository())
	ctx := context.Background()

	tests := []struct {
		src  string
		want any
	}{
		{src: "not(false)", want: true},
		{src: `equal("a" "a")`, want: true},
		{src: "equal(1 2)", want: false},
		{src: "or_seq(false 0 true)", want: true},
		{src: "select(false ball)", want: "ball"},
		{src: "3.5", want: 3.5},
	}
	for _, tt := range tests {
		got, err := interp.Run(ctx, Anonymous(MustParse(tt.src)), nil)
		if err != nil {
			t.Fatalf("%s: %v", tt.src, err)
		}
		if got != tt.want {
			t.Errorf("%s = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestInterpreterUnknownFunction(t *testing.T) {
	interp := NewInterpreter(NewRepository())
	_, err := interp.Run(context.Background(), Anonymous(MustParse("fly(sky)")), nil)
	if !errors.Is(err, ErrUnknownFunction) {
		t.Fatalf("expected ErrUnknownFunction, got %v", err)
	}
}

func TestInterpreterArity(t *testing.T) {
	interp := NewInterpreter(NewRepository())
	p := New("follow", MustParse("equal($1 $2)"), false)
	if _, err := interp.Run(context.Background(), p, []any{"a"}); err == nil {
		t.Fatal("expected missing argument error")
	}
}

func TestInterpreterRecursionLimit(t *testing.T) {
	repo := NewRepository()
	_ = repo.Add(New("loop", MustParse("not(loop)"), false))
	interp := NewInterpreter(repo)
	if _, err := interp.Run(context.Background(), Anonymous(MustParse("loop")), nil); err == nil {
		t.Fatal("expected depth error")
	}
}

func TestInterpreterQueue(t *testing.T) {
	interp := NewInterpreter(NewRepository())
	var results []any
	done := func(v any, err error) { results = append(results, v) }
	interp.Enqueue(Anonymous(MustParse("not(true)")), nil, done)
	interp.Enqueue(Anonymous(MustParse("missing(x)")), nil, done)
	if interp.Pending() != 2 {
		t.Fatalf("expected 2 pending, got %d", interp.Pending())
	}
	if err := interp.RunCycle(context.Background()); err == nil {
		t.Fatal("expected failing procedure to be reported")
	}
	if interp.Pending() != 0 {
		t.Fatalf("expected empty queue")
	}
	if len(results) != 2 || results[0] != false {
		t.Fatalf("unexpected results %v", results)
	}
}
