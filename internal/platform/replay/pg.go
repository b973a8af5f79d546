package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Writer applies single rows.
type Writer interface {
	Insert(ctx context.Context, t Table, row map[string]any) error
	// Update overwrites the columns in set on the row whose key equals key.
	// It reports whether such a row exists.
	Update(ctx context.Context, t Table, key any, set map[string]any) (bool, error)
}

// Session is a transaction. Begin on a Session opens a savepoint.
type Session interface {
	Writer
	Begin(ctx context.Context) (Session, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Database opens replay transactions.
type Database interface {
	Begin(ctx context.Context) (Session, error)
}

// PG runs replay through a pgx pool.
type PG struct {
	pool *pgxpool.Pool
}

func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

func (p *PG) Begin(ctx context.Context) (Session, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgSession{tx: tx}, nil
}

type pgSession struct {
	tx pgx.Tx
}

func (s *pgSession) Begin(ctx context.Context) (Session, error) {
	sp, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgSession{tx: sp}, nil
}

func (s *pgSession) Commit(ctx context.Context) error   { return s.tx.Commit(ctx) }
func (s *pgSession) Rollback(ctx context.Context) error { return s.tx.Rollback(ctx) }

func (s *pgSession) Insert(ctx context.Context, t Table, row map[string]any) error {
	query, args, err := insertSQL(t, row)
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", t.Name, err)
	}
	return nil
}

func (s *pgSession) Update(ctx context.Context, t Table, key any, set map[string]any) (bool, error) {
	if len(set) == 0 {
		query, args, err := existsSQL(t, key)
		if err != nil {
			return false, fmt.Errorf("build lookup: %w", err)
		}
		var one int
		err = s.tx.QueryRow(ctx, query, args...).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("lookup %s: %w", t.Name, err)
		}
		return true, nil
	}

	query, args, err := updateSQL(t, key, set)
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}
	tag, err := s.tx.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", t.Name, err)
	}
	return tag.RowsAffected() > 0, nil
}
