// Package replay applies staged writes to the primary database.
package replay

import "github.com/rhp/rhp/internal/platform/staging"

// Table describes how one staging partition maps onto a database table.
type Table struct {
	Entity  string
	Name    string
	Key     string
	Columns []string
}

// KeyColumn returns the column replayed updates are matched on: id_<entity>,
// except patients and professionals which are matched on cpf.
func KeyColumn(entity string) string {
	switch entity {
	case staging.EntityPatient, staging.EntityProfessional:
		return "cpf"
	default:
		return "id_" + entity
	}
}

// HasColumn reports whether c belongs to the table. A table with no column
// list accepts every column.
func (t Table) HasColumn(c string) bool {
	if len(t.Columns) == 0 {
		return true
	}
	for _, col := range t.Columns {
		if col == c {
			return true
		}
	}
	return false
}

func newTable(entity string, columns ...string) Table {
	return Table{Entity: entity, Name: entity, Key: KeyColumn(entity), Columns: columns}
}

// DefaultTables lists the hospital tables in foreign-key order, so a pass
// creates parents before children.
func DefaultTables() []Table {
	return []Table{
		newTable(staging.EntityUnit, "id_unidade", "nome_unidade", "descricao_unid"),
		newTable(staging.EntityBed, "id_leito", "id_unidade", "unidade_internacao"),
		newTable(staging.EntityPatient, "id_paciente", "cpf", "nome", "data_nascimento",
			"endereco", "cep", "nome_mae", "telefone", "email", "id_leito"),
		newTable(staging.EntityProfessional, "id_profissional", "cpf", "nome", "especialidade",
			"registro_profissional", "setor", "funcao", "telefone", "email"),
		newTable(staging.EntityEncounter, "id_atendimento", "data_hora", "tipo", "origem",
			"convenio", "cpf", "id_profissional"),
		newTable(staging.EntityTransfer, "id_transferencia", "cpf", "codigo_leito_origem",
			"codigo_leito_destino", "datahora_transferencia", "motivo"),
		newTable(staging.EntityDischarge, "id_alta", "data_hora_alta", "motivo_alta", "cpf"),
	}
}
