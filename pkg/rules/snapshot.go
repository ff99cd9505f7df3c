package rules

import (
	"context"
	"database/sql"
)

const learnedSchema = `
	CREATE TABLE IF NOT EXISTS learned_schemas (
		name TEXT PRIMARY KEY
	)
`

// RepositoryName implements persistence.Repository.
func (e *Engine) RepositoryName() string {
	return "rules"
}

// SaveRepository writes the learned schema set.
func (e *Engine) SaveRepository(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, learnedSchema); err != nil {
		return err
	}
	for _, name := range e.Learned() {
		if _, err := tx.ExecContext(ctx, "INSERT INTO learned_schemas (name) VALUES (?)", name); err != nil {
			return err
		}
	}
	return nil
}

// LoadRepository replaces the learned schema set with the snapshot's.
func (e *Engine) LoadRepository(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, learnedSchema); err != nil {
		return err
	}
	rows, err := tx.QueryContext(ctx, "SELECT name FROM learned_schemas")
	if err != nil {
		return err
	}
	defer rows.Close()
	learned := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		learned[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	e.learned = learned
	return nil
}
