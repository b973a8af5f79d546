package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhp/rhp/internal/platform/db"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// -- Unit Repository --

type unitRepoPG struct {
	pool *pgxpool.Pool
}

func NewUnitRepo(pool *pgxpool.Pool) UnitRepository {
	return &unitRepoPG{pool: pool}
}

func (r *unitRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const unitColumns = `id_unidade, nome_unidade, descricao_unid`

func (r *unitRepoPG) Create(ctx context.Context, u *Unit) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO unidade (nome_unidade, descricao_unid)
		VALUES ($1, $2)
		RETURNING id_unidade`,
		u.Name, u.Description,
	).Scan(&u.ID)
}

func (r *unitRepoPG) GetByID(ctx context.Context, id int) (*Unit, error) {
	return scanUnit(r.conn(ctx).QueryRow(ctx, `SELECT `+unitColumns+` FROM unidade WHERE id_unidade = $1`, id))
}

func (r *unitRepoPG) Update(ctx context.Context, id int, fields map[string]any) (*Unit, error) {
	query, args, err := db.PartialUpdate("unidade", "id_unidade", id, fields, unitColumns)
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	return scanUnit(r.conn(ctx).QueryRow(ctx, query, args...))
}

func (r *unitRepoPG) Delete(ctx context.Context, id int) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM unidade WHERE id_unidade = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *unitRepoPG) List(ctx context.Context, limit, offset int) ([]*Unit, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM unidade`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+unitColumns+` FROM unidade ORDER BY id_unidade LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var units []*Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, 0, err
		}
		units = append(units, u)
	}
	return units, total, rows.Err()
}

func scanUnit(row rowScanner) (*Unit, error) {
	var u Unit
	if err := row.Scan(&u.ID, &u.Name, &u.Description); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// -- Bed Repository --

type bedRepoPG struct {
	pool *pgxpool.Pool
}

func NewBedRepo(pool *pgxpool.Pool) BedRepository {
	return &bedRepoPG{pool: pool}
}

func (r *bedRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const bedColumns = `id_leito, id_unidade, unidade_internacao`

func (r *bedRepoPG) Create(ctx context.Context, b *Bed) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO leito (id_unidade, unidade_internacao)
		VALUES ($1, $2)
		RETURNING id_leito`,
		b.UnitID, b.Ward,
	).Scan(&b.ID)
}

func (r *bedRepoPG) GetByID(ctx context.Context, id int) (*Bed, error) {
	return scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedColumns+` FROM leito WHERE id_leito = $1`, id))
}

func (r *bedRepoPG) Update(ctx context.Context, id int, fields map[string]any) (*Bed, error) {
	query, args, err := db.PartialUpdate("leito", "id_leito", id, fields, bedColumns)
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	return scanBed(r.conn(ctx).QueryRow(ctx, query, args...))
}

func (r *bedRepoPG) Delete(ctx context.Context, id int) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM leito WHERE id_leito = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// List filters by unit when unitID > 0.
func (r *bedRepoPG) List(ctx context.Context, unitID, limit, offset int) ([]*Bed, int, error) {
	where := ``
	args := []any{}
	if unitID > 0 {
		where = ` WHERE id_unidade = $1`
		args = append(args, unitID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM leito`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM leito%s ORDER BY id_leito LIMIT $%d OFFSET $%d`, bedColumns, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var beds []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, 0, err
		}
		beds = append(beds, b)
	}
	return beds, total, rows.Err()
}

func scanBed(row rowScanner) (*Bed, error) {
	var b Bed
	if err := row.Scan(&b.ID, &b.UnitID, &b.Ward); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}
