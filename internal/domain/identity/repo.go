package identity

import "context"

// PatientRepository defines the persistence interface for patients.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByCPF(ctx context.Context, cpf string) (*Patient, error)
	Update(ctx context.Context, cpf string, fields map[string]any) (*Patient, error)
	Delete(ctx context.Context, cpf string) error
	List(ctx context.Context, name string, limit, offset int) ([]*Patient, int, error)
}

// ProfessionalRepository defines the persistence interface for professionals.
type ProfessionalRepository interface {
	Create(ctx context.Context, p *Professional) error
	GetByCPF(ctx context.Context, cpf string) (*Professional, error)
	Update(ctx context.Context, cpf string, fields map[string]any) (*Professional, error)
	Delete(ctx context.Context, cpf string) error
	List(ctx context.Context, limit, offset int) ([]*Professional, int, error)
}
