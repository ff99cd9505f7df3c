package procedure

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// Procedure is a named, executable expression tree.
type Procedure struct {
	Name        string
	Arity       int
	Body        *Tree
	TypeChecked bool
}

// New builds a procedure whose arity is inferred from body.
func New(name string, body *Tree, typeCheck bool) Procedure {
	return Procedure{
		Name:        name,
		Arity:       InferArity(body),
		Body:        body,
		TypeChecked: typeCheck,
	}
}

// Anonymous wraps an expression as an unnamed zero-argument procedure.
func Anonymous(body *Tree) Procedure {
	return Procedure{Body: body}
}

// Repository stores procedures keyed by name. At most one procedure exists
// per name. It is not safe for concurrent use; the controller serializes
// access.
type Repository struct {
	procs map[string]Procedure
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{procs: make(map[string]Procedure)}
}

// Contains reports whether a procedure named name exists.
func (r *Repository) Contains(name string) bool {
	_, ok := r.procs[name]
	return ok
}

// Get returns the procedure named name.
func (r *Repository) Get(name string) (Procedure, bool) {
	p, ok := r.procs[name]
	return p, ok
}

// Add installs p. Adding a name that already exists is an error; callers
// replacing a procedure must Remove it first. Type-checked procedures have
// their argument references validated and their arity recomputed.
func (r *Repository) Add(p Procedure) error {
	if p.Name == "" {
		return fmt.Errorf("procedure: name is required")
	}
	if p.Body == nil {
		return fmt.Errorf("procedure %q: body is required", p.Name)
	}
	if _, exists := r.procs[p.Name]; exists {
		return fmt.Errorf("procedure %q already exists", p.Name)
	}
	if p.TypeChecked {
		if err := checkArguments(p.Body); err != nil {
			return fmt.Errorf("procedure %q: %w", p.Name, err)
		}
		p.Arity = InferArity(p.Body)
	}
	r.procs[p.Name] = p
	return nil
}

// Remove deletes the procedure named name and reports whether it existed.
func (r *Repository) Remove(name string) bool {
	if _, ok := r.procs[name]; !ok {
		return false
	}
	delete(r.procs, name)
	return true
}

// Names returns the stored procedure names in sorted order.
func (r *Repository) Names() []string {
	names := make([]string, 0, len(r.procs))
	for name := range r.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of stored procedures.
func (r *Repository) Len() int {
	return len(r.procs)
}

func checkArguments(t *Tree) error {
	if t.IsLeaf() && len(t.Label) > 0 && t.Label[0] == '$' {
		n, ok := t.Argument()
		if !ok || n < 1 {
			return fmt.Errorf("invalid argument reference %q", t.Label)
		}
	}
	for _, c := range t.Children {
		if err := checkArguments(c); err != nil {
			return err
		}
	}
	return nil
}

const procedureSchema = `
	CREATE TABLE IF NOT EXISTS procedures (
		name TEXT PRIMARY KEY,
		arity INTEGER NOT NULL,
		body TEXT NOT NULL,
		type_checked INTEGER NOT NULL
	)
`

// RepositoryName implements persistence.Repository.
func (r *Repository) RepositoryName() string {
	return "procedures"
}

// SaveRepository writes every procedure into the snapshot transaction.
func (r *Repository) SaveRepository(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, procedureSchema); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO procedures (name, arity, body, type_checked) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, name := range r.Names() {
		p := r.procs[name]
		if _, err := stmt.ExecContext(ctx, p.Name, p.Arity, p.Body.String(), p.TypeChecked); err != nil {
			return err
		}
	}
	return nil
}

// LoadRepository replaces the repository content with the snapshot's.
func (r *Repository) LoadRepository(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, procedureSchema); err != nil {
		return err
	}
	rows, err := tx.QueryContext(ctx, "SELECT name, arity, body, type_checked FROM procedures")
	if err != nil {
		return err
	}
	defer rows.Close()

	procs := make(map[string]Procedure)
	for rows.Next() {
		var (
			p    Procedure
			body string
		)
		if err := rows.Scan(&p.Name, &p.Arity, &body, &p.TypeChecked); err != nil {
			return err
		}
		if p.Body, err = Parse(body); err != nil {
			return fmt.Errorf("procedure %q: %w", p.Name, err)
		}
		procs[p.Name] = p
	}
	if err := rows.Err(); err != nil {
		return err
	}
	r.procs = procs
	return nil
}
