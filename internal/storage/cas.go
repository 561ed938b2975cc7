// README: Compare-and-swap primitive over Postgres rows (conditional single-row update).
package storage

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Cond is a precondition on the current value of a column.
type Cond struct {
	Column string
	Value  any
	Null   bool
}

func Eq(column string, v any) Cond {
	return Cond{Column: column, Value: v}
}

func IsNull(column string) Cond {
	return Cond{Column: column, Null: true}
}

// Swap describes a write that is applied only while every precondition still holds.
// Set values may be squirrel expressions (sq.Expr) to reference current column values.
type Swap struct {
	Table string
	Key   string
	ID    any
	Set   map[string]any
	When  []Cond
}

// CompareAndSwap applies s atomically. It reports false, with no error, when the row
// is missing or any precondition no longer matches; nothing is written in that case.
func CompareAndSwap(ctx context.Context, db Execer, s Swap) (bool, error) {
	if len(s.Set) == 0 {
		return false, fmt.Errorf("compare-and-swap on %s: empty set", s.Table)
	}
	q := sq.Update(s.Table).
		SetMap(s.Set).
		Where(sq.Eq{s.Key: s.ID}).
		PlaceholderFormat(sq.Dollar)
	for _, c := range s.When {
		if c.Null {
			q = q.Where(sq.Eq{c.Column: nil})
			continue
		}
		q = q.Where(sq.Eq{c.Column: c.Value})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build compare-and-swap on %s: %w", s.Table, err)
	}
	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("compare-and-swap on %s: %w", s.Table, err)
	}
	return tag.RowsAffected() == 1, nil
}
