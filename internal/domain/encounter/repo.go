package encounter

import "context"

// Repository defines the persistence interface for encounters. List filters
// by patient CPF when cpf is not empty.
type Repository interface {
	Create(ctx context.Context, e *Encounter) error
	GetByID(ctx context.Context, id int) (*Encounter, error)
	Update(ctx context.Context, id int, fields map[string]any) (*Encounter, error)
	Delete(ctx context.Context, id int) error
	List(ctx context.Context, cpf string, limit, offset int) ([]*Encounter, int, error)
}

type TransferRepository interface {
	Create(ctx context.Context, t *Transfer) error
	GetByID(ctx context.Context, id int) (*Transfer, error)
	Update(ctx context.Context, id int, fields map[string]any) (*Transfer, error)
	Delete(ctx context.Context, id int) error
	List(ctx context.Context, cpf string, limit, offset int) ([]*Transfer, int, error)
}

type DischargeRepository interface {
	Create(ctx context.Context, d *Discharge) error
	GetByID(ctx context.Context, id int) (*Discharge, error)
	Update(ctx context.Context, id int, fields map[string]any) (*Discharge, error)
	Delete(ctx context.Context, id int) error
	List(ctx context.Context, cpf string, limit, offset int) ([]*Discharge, int, error)
}
