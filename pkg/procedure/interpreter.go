package procedure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
)

const maxDepth = 256

// ErrUnknownFunction is returned when a called name is neither a builtin, a
// stored procedure nor accepted by the action sink.
var ErrUnknownFunction = errors.New("procedure: unknown function")

// Builtin is a natively implemented function.
type Builtin func(ctx context.Context, args []any) (any, error)

// ActionSink executes world actions. Act reports whether it recognized name.
type ActionSink interface {
	Act(ctx context.Context, name string, args []any) (handled bool, err error)
}

// Interpreter evaluates procedures against a repository.
type Interpreter struct {
	repo     *Repository
	builtins map[string]Builtin
	actions  ActionSink
	queue    []queued
	logger   *slog.Logger
}

type queued struct {
	proc Procedure
	args []any
	done func(any, error)
}

// InterpreterOption configures an Interpreter.
type InterpreterOption func(*Interpreter)

// WithActionSink routes unknown calls to sink.
func WithActionSink(sink ActionSink) InterpreterOption {
	return func(i *Interpreter) {
		i.actions = sink
	}
}

// WithInterpreterLogger sets the interpreter logger.
func WithInterpreterLogger(logger *slog.Logger) InterpreterOption {
	return func(i *Interpreter) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewInterpreter creates an interpreter with the default builtins.
func NewInterpreter(repo *Repository, opts ...InterpreterOption) *Interpreter {
	i := &Interpreter{
		repo:     repo,
		builtins: make(map[string]Builtin),
		logger:   slog.Default(),
	}
	i.builtins["not"] = func(_ context.Context, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("not: want 1 argument, got %d", len(args))
		}
		return !Truthy(args[0]), nil
	}
	i.builtins["equal"] = func(_ context.Context, args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("equal: want 2 arguments, got %d", len(args))
		}
		return args[0] == args[1], nil
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Register adds or replaces a builtin.
func (i *Interpreter) Register(name string, fn Builtin) {
	i.builtins[name] = fn
}

// SetActionSink sets the sink used for world actions.
func (i *Interpreter) SetActionSink(sink ActionSink) {
	i.actions = sink
}

// Run evaluates p synchronously with args bound to $1..$N.
func (i *Interpreter) Run(ctx context.Context, p Procedure, args []any) (any, error) {
	if p.Body == nil {
		return nil, fmt.Errorf("procedure %q has no body", p.Name)
	}
	if len(args) < p.Arity {
		return nil, fmt.Errorf("procedure %q: want %d arguments, got %d", p.Name, p.Arity, len(args))
	}
	return i.eval(ctx, p.Body, args, 0)
}

// Enqueue schedules p for the next RunCycle. done, if not nil, receives the
// result.
func (i *Interpreter) Enqueue(p Procedure, args []any, done func(any, error)) {
	i.queue = append(i.queue, queued{proc: p, args: args, done: done})
}

// Pending returns the number of queued procedures.
func (i *Interpreter) Pending() int {
	return len(i.queue)
}

// Clear drops every queued procedure without running it.
func (i *Interpreter) Clear() {
	i.queue = nil
}

// RunCycle runs every procedure queued before the call.
func (i *Interpreter) RunCycle(ctx context.Context) error {
	batch := i.queue
	i.queue = nil
	var errs []error
	for _, q := range batch {
		result, err := i.Run(ctx, q.proc, q.args)
		if err != nil {
			i.logger.Warn("procedure.run.error",
				slog.String("procedure", q.proc.Name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
		}
		if q.done != nil {
			q.done(result, err)
		}
	}
	return errors.Join(errs...)
}

func (i *Interpreter) eval(ctx context.Context, t *Tree, args []any, depth int) (any, error) {
	if depth > maxDepth {
		return nil, errors.New("procedure: maximum call depth exceeded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.IsLeaf() {
		return i.leaf(ctx, t, args, depth)
	}

	switch t.Label {
	case "and_seq":
		for _, c := range t.Children {
			v, err := i.eval(ctx, c, args, depth+1)
			if err != nil {
				return nil, err
			}
			if !Truthy(v) {
				return false, nil
			}
		}
		return true, nil
	case "or_seq":
		for _, c := range t.Children {
			v, err := i.eval(ctx, c, args, depth+1)
			if err != nil {
				return nil, err
			}
			if Truthy(v) {
				return true, nil
			}
		}
		return false, nil
	case "select":
		for _, c := range t.Children {
			v, err := i.eval(ctx, c, args, depth+1)
			if err != nil {
				return nil, err
			}
			if Truthy(v) {
				return v, nil
			}
		}
		return false, nil
	}

	values := make([]any, 0, len(t.Children))
	for _, c := range t.Children {
		v, err := i.eval(ctx, c, args, depth+1)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return i.call(ctx, t.Label, values, depth)
}

func (i *Interpreter) leaf(ctx context.Context, t *Tree, args []any, depth int) (any, error) {
	label := t.Label
	if n, ok := t.Argument(); ok {
		if n < 1 || n > len(args) {
			return nil, fmt.Errorf("procedure: argument $%d out of range", n)
		}
		return args[n-1], nil
	}
	switch label {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if label[0] == '"' {
		s, err := strconv.Unquote(label)
		if err != nil {
			return nil, fmt.Errorf("procedure: bad string literal %s", label)
		}
		return s, nil
	}
	if f, err := strconv.ParseFloat(label, 64); err == nil {
		return f, nil
	}
	if _, ok := i.builtins[label]; ok {
		return i.call(ctx, label, nil, depth)
	}
	if p, ok := i.repo.Get(label); ok && p.Arity == 0 {
		return i.call(ctx, label, nil, depth)
	}
	return label, nil
}

func (i *Interpreter) call(ctx context.Context, name string, args []any, depth int) (any, error) {
	if fn, ok := i.builtins[name]; ok {
		return fn(ctx, args)
	}
	if p, ok := i.repo.Get(name); ok {
		if len(args) < p.Arity {
			return nil, fmt.Errorf("procedure %q: want %d arguments, got %d", name, p.Arity, len(args))
		}
		return i.eval(ctx, p.Body, args, depth+1)
	}
	if i.actions != nil {
		handled, err := i.actions.Act(ctx, name, args)
		if err != nil {
			return false, err
		}
		if handled {
			return true, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
}

// Truthy reports whether v counts as true in a procedure condition.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}
