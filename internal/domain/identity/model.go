package identity

import (
	"strings"
	"time"

	"github.com/rhp/rhp/internal/platform/httperr"
)

const dateLayout = "2006-01-02"

// ValidCPF reports whether s is a CPF written as exactly 11 digits.
func ValidCPF(s string) bool {
	if len(s) != 11 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func validDate(field string, s *string) error {
	if s == nil {
		return nil
	}
	if _, err := time.Parse(dateLayout, *s); err != nil {
		return httperr.Invalid(field, "must be a date in YYYY-MM-DD format")
	}
	return nil
}

func checkCPF(cpf string) error {
	if !ValidCPF(cpf) {
		return httperr.Invalid("cpf", "must be 11 digits")
	}
	return nil
}

func setString(m map[string]any, col string, v *string) {
	if v != nil {
		m[col] = *v
	}
}

// Patient is a patient (paciente), identified by CPF.
type Patient struct {
	ID         int     `json:"id_paciente"`
	CPF        string  `json:"cpf"`
	Name       string  `json:"nome"`
	BirthDate  *string `json:"data_nascimento,omitempty"`
	Address    *string `json:"endereco,omitempty"`
	ZIP        *string `json:"cep,omitempty"`
	MotherName *string `json:"nome_mae,omitempty"`
	Phone      *string `json:"telefone,omitempty"`
	Email      *string `json:"email,omitempty"`
	BedID      *int    `json:"id_leito,omitempty"`
}

func (p *Patient) Validate() error {
	if err := checkCPF(p.CPF); err != nil {
		return err
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return httperr.Invalid("nome", "is required")
	}
	if p.BedID != nil && *p.BedID <= 0 {
		return httperr.Invalid("id_leito", "must be positive")
	}
	return validDate("data_nascimento", p.BirthDate)
}

// Columns returns the row as column/value pairs, leaving out the generated
// id and unset optional columns.
func (p *Patient) Columns() map[string]any {
	m := map[string]any{"cpf": p.CPF, "nome": p.Name}
	if p.ID != 0 {
		m["id_paciente"] = p.ID
	}
	setString(m, "data_nascimento", p.BirthDate)
	setString(m, "endereco", p.Address)
	setString(m, "cep", p.ZIP)
	setString(m, "nome_mae", p.MotherName)
	setString(m, "telefone", p.Phone)
	setString(m, "email", p.Email)
	if p.BedID != nil {
		m["id_leito"] = *p.BedID
	}
	return m
}

// PatientPatch carries the fields of a partial update. The CPF is the key
// and cannot be changed.
type PatientPatch struct {
	Name       *string `json:"nome"`
	BirthDate  *string `json:"data_nascimento"`
	Address    *string `json:"endereco"`
	ZIP        *string `json:"cep"`
	MotherName *string `json:"nome_mae"`
	Phone      *string `json:"telefone"`
	Email      *string `json:"email"`
	BedID      *int    `json:"id_leito"`
}

func (p *PatientPatch) Fields() (map[string]any, error) {
	m := map[string]any{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, httperr.Invalid("nome", "must not be empty")
		}
		m["nome"] = name
	}
	if err := validDate("data_nascimento", p.BirthDate); err != nil {
		return nil, err
	}
	setString(m, "data_nascimento", p.BirthDate)
	setString(m, "endereco", p.Address)
	setString(m, "cep", p.ZIP)
	setString(m, "nome_mae", p.MotherName)
	setString(m, "telefone", p.Phone)
	setString(m, "email", p.Email)
	if p.BedID != nil {
		if *p.BedID <= 0 {
			return nil, httperr.Invalid("id_leito", "must be positive")
		}
		m["id_leito"] = *p.BedID
	}
	if len(m) == 0 {
		return nil, httperr.Invalid("", "no fields to update")
	}
	return m, nil
}

// Professional is a healthcare professional (profissional), identified by CPF.
type Professional struct {
	ID        int     `json:"id_profissional"`
	CPF       string  `json:"cpf"`
	Name      string  `json:"nome"`
	Specialty *string `json:"especialidade,omitempty"`
	License   *string `json:"registro_profissional,omitempty"`
	Sector    *string `json:"setor,omitempty"`
	Role      *string `json:"funcao,omitempty"`
	Phone     *string `json:"telefone,omitempty"`
	Email     *string `json:"email,omitempty"`
}

func (p *Professional) Validate() error {
	if err := checkCPF(p.CPF); err != nil {
		return err
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return httperr.Invalid("nome", "is required")
	}
	return nil
}

func (p *Professional) Columns() map[string]any {
	m := map[string]any{"cpf": p.CPF, "nome": p.Name}
	if p.ID != 0 {
		m["id_profissional"] = p.ID
	}
	setString(m, "especialidade", p.Specialty)
	setString(m, "registro_profissional", p.License)
	setString(m, "setor", p.Sector)
	setString(m, "funcao", p.Role)
	setString(m, "telefone", p.Phone)
	setString(m, "email", p.Email)
	return m
}

type ProfessionalPatch struct {
	Name      *string `json:"nome"`
	Specialty *string `json:"especialidade"`
	License   *string `json:"registro_profissional"`
	Sector    *string `json:"setor"`
	Role      *string `json:"funcao"`
	Phone     *string `json:"telefone"`
	Email     *string `json:"email"`
}

func (p *ProfessionalPatch) Fields() (map[string]any, error) {
	m := map[string]any{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, httperr.Invalid("nome", "must not be empty")
		}
		m["nome"] = name
	}
	setString(m, "especialidade", p.Specialty)
	setString(m, "registro_profissional", p.License)
	setString(m, "setor", p.Sector)
	setString(m, "funcao", p.Role)
	setString(m, "telefone", p.Phone)
	setString(m, "email", p.Email)
	if len(m) == 0 {
		return nil, httperr.Invalid("", "no fields to update")
	}
	return m, nil
}
