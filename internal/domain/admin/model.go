package admin

import (
	"strings"

	"github.com/rhp/rhp/internal/platform/httperr"
)

// Unit is a hospital unit (unidade). JSON names match the column names so a
// staged payload can be replayed directly.
type Unit struct {
	ID          int     `json:"id_unidade"`
	Name        string  `json:"nome_unidade"`
	Description *string `json:"descricao_unid,omitempty"`
}

func (u *Unit) Validate() error {
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		return httperr.Invalid("nome_unidade", "is required")
	}
	return nil
}

// Columns returns the row as column/value pairs, leaving out the generated
// id and unset optional columns.
func (u *Unit) Columns() map[string]any {
	m := map[string]any{"nome_unidade": u.Name}
	if u.ID != 0 {
		m["id_unidade"] = u.ID
	}
	if u.Description != nil {
		m["descricao_unid"] = *u.Description
	}
	return m
}

// UnitPatch carries the fields of a partial update; nil means unchanged.
type UnitPatch struct {
	Name        *string `json:"nome_unidade"`
	Description *string `json:"descricao_unid"`
}

func (p *UnitPatch) Fields() (map[string]any, error) {
	m := map[string]any{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, httperr.Invalid("nome_unidade", "must not be empty")
		}
		m["nome_unidade"] = name
	}
	if p.Description != nil {
		m["descricao_unid"] = *p.Description
	}
	if len(m) == 0 {
		return nil, httperr.Invalid("", "no fields to update")
	}
	return m, nil
}

// Bed is a bed (leito) belonging to a unit.
type Bed struct {
	ID     int     `json:"id_leito"`
	UnitID int     `json:"id_unidade"`
	Ward   *string `json:"unidade_internacao,omitempty"`
}

func (b *Bed) Validate() error {
	if b.UnitID <= 0 {
		return httperr.Invalid("id_unidade", "is required")
	}
	return nil
}

func (b *Bed) Columns() map[string]any {
	m := map[string]any{"id_unidade": b.UnitID}
	if b.ID != 0 {
		m["id_leito"] = b.ID
	}
	if b.Ward != nil {
		m["unidade_internacao"] = *b.Ward
	}
	return m
}

type BedPatch struct {
	UnitID *int    `json:"id_unidade"`
	Ward   *string `json:"unidade_internacao"`
}

func (p *BedPatch) Fields() (map[string]any, error) {
	m := map[string]any{}
	if p.UnitID != nil {
		if *p.UnitID <= 0 {
			return nil, httperr.Invalid("id_unidade", "must be positive")
		}
		m["id_unidade"] = *p.UnitID
	}
	if p.Ward != nil {
		m["unidade_internacao"] = *p.Ward
	}
	if len(m) == 0 {
		return nil, httperr.Invalid("", "no fields to update")
	}
	return m, nil
}
