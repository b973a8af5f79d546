package encounter

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

type querier func(ctx context.Context) db.Querier

func connFor(pool *pgxpool.Pool) querier {
	return func(ctx context.Context) db.Querier {
		if tx := db.TxFromContext(ctx); tx != nil {
			return tx
		}
		return pool
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return db.ErrNotFound
	}
	return err
}

func deleteRow(ctx context.Context, q db.Querier, table, key string, id int) error {
	tag, err := q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, key), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// listRows pages through table ordered by key, optionally restricted to one
// patient CPF.
func listRows[T any](ctx context.Context, q db.Querier, table, key, columns, cpf string, limit, offset int,
	scan func(rowScanner) (*T, error)) ([]*T, int, error) {
	where := ``
	args := []any{}
	if cpf != "" {
		where = ` WHERE cpf = $1`
		args = append(args, cpf)
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY %s DESC LIMIT $%d OFFSET $%d`,
		columns, table, where, key, n+1, n+2)
	rows, err := q.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// -- Encounter Repository --

type encounterRepoPG struct {
	conn querier
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &encounterRepoPG{conn: connFor(pool)}
}

const encounterColumns = `id_atendimento, data_hora, tipo, origem, convenio, cpf, id_profissional`

func (r *encounterRepoPG) Create(ctx context.Context, e *Encounter) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO atendimento (data_hora, tipo, origem, convenio, cpf, id_profissional)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id_atendimento`,
		e.Time, e.Type, e.Origin, e.Insurance, e.CPF, e.ProfessionalID,
	).Scan(&e.ID)
}

func (r *encounterRepoPG) GetByID(ctx context.Context, id int) (*Encounter, error) {
	return scanEncounter(r.conn(ctx).QueryRow(ctx,
		`SELECT `+encounterColumns+` FROM atendimento WHERE id_atendimento = $1`, id))
}

func (r *encounterRepoPG) Update(ctx context.Context, id int, fields map[string]any) (*Encounter, error) {
	query, args, err := db.PartialUpdate("atendimento", "id_atendimento", id, fields, encounterColumns)
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	return scanEncounter(r.conn(ctx).QueryRow(ctx, query, args...))
}

func (r *encounterRepoPG) Delete(ctx context.Context, id int) error {
	return deleteRow(ctx, r.conn(ctx), "atendimento", "id_atendimento", id)
}

func (r *encounterRepoPG) List(ctx context.Context, cpf string, limit, offset int) ([]*Encounter, int, error) {
	return listRows(ctx, r.conn(ctx), "atendimento", "id_atendimento", encounterColumns, cpf, limit, offset, scanEncounter)
}

func scanEncounter(row rowScanner) (*Encounter, error) {
	var e Encounter
	if err := row.Scan(&e.ID, &e.Time, &e.Type, &e.Origin, &e.Insurance, &e.CPF, &e.ProfessionalID); err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// -- Transfer Repository --

type transferRepoPG struct {
	conn querier
}

func NewTransferRepo(pool *pgxpool.Pool) TransferRepository {
	return &transferRepoPG{conn: connFor(pool)}
}

const transferColumns = `id_transferencia, cpf, codigo_leito_origem, codigo_leito_destino,
	datahora_transferencia, motivo`

func (r *transferRepoPG) Create(ctx context.Context, t *Transfer) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO transferencia (cpf, codigo_leito_origem, codigo_leito_destino, datahora_transferencia, motivo)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id_transferencia`,
		t.CPF, t.FromBedID, t.ToBedID, t.Time, t.Reason,
	).Scan(&t.ID)
}

func (r *transferRepoPG) GetByID(ctx context.Context, id int) (*Transfer, error) {
	return scanTransfer(r.conn(ctx).QueryRow(ctx,
		`SELECT `+transferColumns+` FROM transferencia WHERE id_transferencia = $1`, id))
}

func (r *transferRepoPG) Update(ctx context.Context, id int, fields map[string]any) (*Transfer, error) {
	query, args, err := db.PartialUpdate("transferencia", "id_transferencia", id, fields, transferColumns)
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	return scanTransfer(r.conn(ctx).QueryRow(ctx, query, args...))
}

func (r *transferRepoPG) Delete(ctx context.Context, id int) error {
	return deleteRow(ctx, r.conn(ctx), "transferencia", "id_transferencia", id)
}

func (r *transferRepoPG) List(ctx context.Context, cpf string, limit, offset int) ([]*Transfer, int, error) {
	return listRows(ctx, r.conn(ctx), "transferencia", "id_transferencia", transferColumns, cpf, limit, offset, scanTransfer)
}

func scanTransfer(row rowScanner) (*Transfer, error) {
	var t Transfer
	if err := row.Scan(&t.ID, &t.CPF, &t.FromBedID, &t.ToBedID, &t.Time, &t.Reason); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// -- Discharge Repository --

type dischargeRepoPG struct {
	conn querier
}

func NewDischargeRepo(pool *pgxpool.Pool) DischargeRepository {
	return &dischargeRepoPG{conn: connFor(pool)}
}

const dischargeColumns = `id_alta, data_hora_alta, motivo_alta, cpf`

func (r *dischargeRepoPG) Create(ctx context.Context, d *Discharge) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO alta (data_hora_alta, motivo_alta, cpf)
		VALUES ($1, $2, $3)
		RETURNING id_alta`,
		d.Time, d.Reason, d.CPF,
	).Scan(&d.ID)
}

func (r *dischargeRepoPG) GetByID(ctx context.Context, id int) (*Discharge, error) {
	return scanDischarge(r.conn(ctx).QueryRow(ctx, `SELECT `+dischargeColumns+` FROM alta WHERE id_alta = $1`, id))
}

func (r *dischargeRepoPG) Update(ctx context.Context, id int, fields map[string]any) (*Discharge, error) {
	query, args, err := db.PartialUpdate("alta", "id_alta", id, fields, dischargeColumns)
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	return scanDischarge(r.conn(ctx).QueryRow(ctx, query, args...))
}

func (r *dischargeRepoPG) Delete(ctx context.Context, id int) error {
	return deleteRow(ctx, r.conn(ctx), "alta", "id_alta", id)
}

func (r *dischargeRepoPG) List(ctx context.Context, cpf string, limit, offset int) ([]*Discharge, int, error) {
	return listRows(ctx, r.conn(ctx), "alta", "id_alta", dischargeColumns, cpf, limit, offset, scanDischarge)
}

func scanDischarge(row rowScanner) (*Discharge, error) {
	var d Discharge
	if err := row.Scan(&d.ID, &d.Time, &d.Reason, &d.CPF); err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}
