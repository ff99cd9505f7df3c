package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

const knowledgeSchema = `
	CREATE TABLE IF NOT EXISTS nodes (
		handle INTEGER PRIMARY KEY,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		importance INTEGER NOT NULL,
		experience INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS facts (
		predicate TEXT NOT NULL,
		args TEXT NOT NULL,
		value TEXT NOT NULL,
		ts INTEGER NOT NULL,
		PRIMARY KEY (predicate, args)
	);
	CREATE TABLE IF NOT EXISTS knowledge_meta (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
`

// RepositoryName implements persistence.Repository.
func (s *Store) RepositoryName() string {
	return "knowledge"
}

// SaveRepository writes nodes and facts into the snapshot transaction.
func (s *Store) SaveRepository(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, knowledgeSchema); err != nil {
		return err
	}
	for _, n := range s.nodes {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO nodes (handle, type, name, importance, experience, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			int64(n.Handle), n.Type, n.Name, n.Importance, n.Experience, int64(n.UpdatedAt),
		); err != nil {
			return err
		}
	}
	for _, f := range s.facts {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO facts (predicate, args, value, ts) VALUES (?, ?, ?, ?)",
			f.Predicate, encodeArgs(f.Args), f.Value, int64(f.Timestamp),
		); err != nil {
			return err
		}
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO knowledge_meta (key, value) VALUES ('next_handle', ?), ('last_experience', ?)",
		int64(s.next), int64(s.lastExp),
	)
	return err
}

// LoadRepository replaces the store content with the snapshot's.
func (s *Store) LoadRepository(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, knowledgeSchema); err != nil {
		return err
	}
	s.Reset()

	rows, err := tx.QueryContext(ctx, "SELECT handle, type, name, importance, experience, updated_at FROM nodes")
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			n         Node
			handle    int64
			updatedAt int64
		)
		if err := rows.Scan(&handle, &n.Type, &n.Name, &n.Importance, &n.Experience, &updatedAt); err != nil {
			rows.Close()
			return err
		}
		n.Handle = Handle(handle)
		n.UpdatedAt = uint64(updatedAt)
		s.nodes[n.Handle] = &n
		s.byName[nodeKey(n.Type, n.Name)] = n.Handle
		if n.Handle > s.next {
			s.next = n.Handle
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = tx.QueryContext(ctx, "SELECT predicate, args, value, ts FROM facts")
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			f    Fact
			args string
			ts   int64
		)
		if err := rows.Scan(&f.Predicate, &args, &f.Value, &ts); err != nil {
			rows.Close()
			return err
		}
		if f.Args, err = decodeArgs(args); err != nil {
			rows.Close()
			return fmt.Errorf("fact %s: %w", f.Predicate, err)
		}
		f.Timestamp = uint64(ts)
		s.facts[factKey(f.Predicate, f.Args)] = f
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var next, lastExp sql.NullInt64
	_ = tx.QueryRowContext(ctx, "SELECT value FROM knowledge_meta WHERE key = 'next_handle'").Scan(&next)
	_ = tx.QueryRowContext(ctx, "SELECT value FROM knowledge_meta WHERE key = 'last_experience'").Scan(&lastExp)
	if next.Valid && Handle(next.Int64) > s.next {
		s.next = Handle(next.Int64)
	}
	if lastExp.Valid {
		s.lastExp = uint64(lastExp.Int64)
	}
	return nil
}

func encodeArgs(args []Handle) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = strconv.FormatUint(uint64(a), 10)
	}
	return strings.Join(parts, ",")
}

func decodeArgs(s string) ([]Handle, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]Handle, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = Handle(v)
	}
	return out, nil
}
