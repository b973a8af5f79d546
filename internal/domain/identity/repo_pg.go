package identity

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

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientColumns = `id_paciente, cpf, nome, to_char(data_nascimento, 'YYYY-MM-DD'),
	endereco, cep, nome_mae, telefone, email, id_leito`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO paciente (cpf, nome, data_nascimento, endereco, cep, nome_mae, telefone, email, id_leito)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id_paciente`,
		p.CPF, p.Name, p.BirthDate, p.Address, p.ZIP, p.MotherName, p.Phone, p.Email, p.BedID,
	).Scan(&p.ID)
}

func (r *patientRepoPG) GetByCPF(ctx context.Context, cpf string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientColumns+` FROM paciente WHERE cpf = $1`, cpf))
}

func (r *patientRepoPG) Update(ctx context.Context, cpf string, fields map[string]any) (*Patient, error) {
	query, args, err := db.PartialUpdate("paciente", "cpf", cpf, fields, patientColumns)
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	return scanPatient(r.conn(ctx).QueryRow(ctx, query, args...))
}

func (r *patientRepoPG) Delete(ctx context.Context, cpf string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM paciente WHERE cpf = $1`, cpf)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

// List filters by a case-insensitive name fragment when name is not empty.
func (r *patientRepoPG) List(ctx context.Context, name string, limit, offset int) ([]*Patient, int, error) {
	where := ``
	args := []any{}
	if name != "" {
		where = ` WHERE nome ILIKE $1`
		args = append(args, "%"+name+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM paciente`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM paciente%s ORDER BY nome, id_paciente LIMIT $%d OFFSET $%d`, patientColumns, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func scanPatient(row rowScanner) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.CPF, &p.Name, &p.BirthDate,
		&p.Address, &p.ZIP, &p.MotherName, &p.Phone, &p.Email, &p.BedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// -- Professional Repository --

type professionalRepoPG struct {
	pool *pgxpool.Pool
}

func NewProfessionalRepo(pool *pgxpool.Pool) ProfessionalRepository {
	return &professionalRepoPG{pool: pool}
}

func (r *professionalRepoPG) conn(ctx context.Context) db.Querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const professionalColumns = `id_profissional, cpf, nome, especialidade, registro_profissional,
	setor, funcao, telefone, email`

func (r *professionalRepoPG) Create(ctx context.Context, p *Professional) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO profissional (cpf, nome, especialidade, registro_profissional, setor, funcao, telefone, email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id_profissional`,
		p.CPF, p.Name, p.Specialty, p.License, p.Sector, p.Role, p.Phone, p.Email,
	).Scan(&p.ID)
}

func (r *professionalRepoPG) GetByCPF(ctx context.Context, cpf string) (*Professional, error) {
	return scanProfessional(r.conn(ctx).QueryRow(ctx,
		`SELECT `+professionalColumns+` FROM profissional WHERE cpf = $1`, cpf))
}

func (r *professionalRepoPG) Update(ctx context.Context, cpf string, fields map[string]any) (*Professional, error) {
	query, args, err := db.PartialUpdate("profissional", "cpf", cpf, fields, professionalColumns)
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	return scanProfessional(r.conn(ctx).QueryRow(ctx, query, args...))
}

func (r *professionalRepoPG) Delete(ctx context.Context, cpf string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM profissional WHERE cpf = $1`, cpf)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *professionalRepoPG) List(ctx context.Context, limit, offset int) ([]*Professional, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM profissional`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+professionalColumns+` FROM profissional ORDER BY nome, id_profissional LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Professional
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func scanProfessional(row rowScanner) (*Professional, error) {
	var p Professional
	err := row.Scan(&p.ID, &p.CPF, &p.Name, &p.Specialty, &p.License,
		&p.Sector, &p.Role, &p.Phone, &p.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
