package encounter

import (
	"time"

	"github.com/rhp/rhp/internal/domain/identity"
	"github.com/rhp/rhp/internal/platform/httperr"
)

func checkCPF(cpf string) error {
	if !identity.ValidCPF(cpf) {
		return httperr.Invalid("cpf", "must be 11 digits")
	}
	return nil
}

func checkRef(field string, id *int) error {
	if id != nil && *id <= 0 {
		return httperr.Invalid(field, "must be positive")
	}
	return nil
}

func set[T any](m map[string]any, col string, v *T) {
	if v != nil {
		m[col] = *v
	}
}

// Encounter is a patient encounter (atendimento). Timestamps travel as
// RFC 3339 strings.
type Encounter struct {
	ID             int        `json:"id_atendimento"`
	Time           *time.Time `json:"data_hora,omitempty"`
	Type           *string    `json:"tipo,omitempty"`
	Origin         *string    `json:"origem,omitempty"`
	Insurance      *string    `json:"convenio,omitempty"`
	CPF            string     `json:"cpf"`
	ProfessionalID *int       `json:"id_profissional,omitempty"`
}

func (e *Encounter) Validate() error {
	if err := checkCPF(e.CPF); err != nil {
		return err
	}
	return checkRef("id_profissional", e.ProfessionalID)
}

func (e *Encounter) Columns() map[string]any {
	m := map[string]any{"cpf": e.CPF}
	if e.ID != 0 {
		m["id_atendimento"] = e.ID
	}
	set(m, "data_hora", e.Time)
	set(m, "tipo", e.Type)
	set(m, "origem", e.Origin)
	set(m, "convenio", e.Insurance)
	set(m, "id_profissional", e.ProfessionalID)
	return m
}

type EncounterPatch struct {
	Time           *time.Time `json:"data_hora"`
	Type           *string    `json:"tipo"`
	Origin         *string    `json:"origem"`
	Insurance      *string    `json:"convenio"`
	CPF            *string    `json:"cpf"`
	ProfessionalID *int       `json:"id_profissional"`
}

func (p *EncounterPatch) Fields() (map[string]any, error) {
	if p.CPF != nil {
		if err := checkCPF(*p.CPF); err != nil {
			return nil, err
		}
	}
	if err := checkRef("id_profissional", p.ProfessionalID); err != nil {
		return nil, err
	}
	m := map[string]any{}
	set(m, "data_hora", p.Time)
	set(m, "tipo", p.Type)
	set(m, "origem", p.Origin)
	set(m, "convenio", p.Insurance)
	set(m, "cpf", p.CPF)
	set(m, "id_profissional", p.ProfessionalID)
	if len(m) == 0 {
		return nil, httperr.Invalid("", "no fields to update")
	}
	return m, nil
}

// Transfer moves a patient between beds (transferencia).
type Transfer struct {
	ID        int        `json:"id_transferencia"`
	CPF       string     `json:"cpf"`
	FromBedID *int       `json:"codigo_leito_origem,omitempty"`
	ToBedID   *int       `json:"codigo_leito_destino,omitempty"`
	Time      *time.Time `json:"datahora_transferencia,omitempty"`
	Reason    *string    `json:"motivo,omitempty"`
}

func (t *Transfer) Validate() error {
	if err := checkCPF(t.CPF); err != nil {
		return err
	}
	if t.ToBedID == nil {
		return httperr.Invalid("codigo_leito_destino", "is required")
	}
	if err := checkRef("codigo_leito_origem", t.FromBedID); err != nil {
		return err
	}
	if err := checkRef("codigo_leito_destino", t.ToBedID); err != nil {
		return err
	}
	if t.FromBedID != nil && *t.FromBedID == *t.ToBedID {
		return httperr.Invalid("codigo_leito_destino", "must differ from the origin bed")
	}
	return nil
}

func (t *Transfer) Columns() map[string]any {
	m := map[string]any{"cpf": t.CPF}
	if t.ID != 0 {
		m["id_transferencia"] = t.ID
	}
	set(m, "codigo_leito_origem", t.FromBedID)
	set(m, "codigo_leito_destino", t.ToBedID)
	set(m, "datahora_transferencia", t.Time)
	set(m, "motivo", t.Reason)
	return m
}

type TransferPatch struct {
	CPF       *string    `json:"cpf"`
	FromBedID *int       `json:"codigo_leito_origem"`
	ToBedID   *int       `json:"codigo_leito_destino"`
	Time      *time.Time `json:"datahora_transferencia"`
	Reason    *string    `json:"motivo"`
}

func (p *TransferPatch) Fields() (map[string]any, error) {
	if p.CPF != nil {
		if err := checkCPF(*p.CPF); err != nil {
			return nil, err
		}
	}
	if err := checkRef("codigo_leito_origem", p.FromBedID); err != nil {
		return nil, err
	}
	if err := checkRef("codigo_leito_destino", p.ToBedID); err != nil {
		return nil, err
	}
	m := map[string]any{}
	set(m, "cpf", p.CPF)
	set(m, "codigo_leito_origem", p.FromBedID)
	set(m, "codigo_leito_destino", p.ToBedID)
	set(m, "datahora_transferencia", p.Time)
	set(m, "motivo", p.Reason)
	if len(m) == 0 {
		return nil, httperr.Invalid("", "no fields to update")
	}
	return m, nil
}

// Discharge is a patient discharge (alta).
type Discharge struct {
	ID     int        `json:"id_alta"`
	Time   *time.Time `json:"data_hora_alta,omitempty"`
	Reason *string    `json:"motivo_alta,omitempty"`
	CPF    string     `json:"cpf"`
}

func (d *Discharge) Validate() error {
	return checkCPF(d.CPF)
}

func (d *Discharge) Columns() map[string]any {
	m := map[string]any{"cpf": d.CPF}
	if d.ID != 0 {
		m["id_alta"] = d.ID
	}
	set(m, "data_hora_alta", d.Time)
	set(m, "motivo_alta", d.Reason)
	return m
}

type DischargePatch struct {
	Time   *time.Time `json:"data_hora_alta"`
	Reason *string    `json:"motivo_alta"`
	CPF    *string    `json:"cpf"`
}

func (p *DischargePatch) Fields() (map[string]any, error) {
	if p.CPF != nil {
		if err := checkCPF(*p.CPF); err != nil {
			return nil, err
		}
	}
	m := map[string]any{}
	set(m, "data_hora_alta", p.Time)
	set(m, "motivo_alta", p.Reason)
	set(m, "cpf", p.CPF)
	if len(m) == 0 {
		return nil, httperr.Invalid("", "no fields to update")
	}
	return m, nil
}
