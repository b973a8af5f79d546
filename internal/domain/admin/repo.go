package admin

import "context"

// UnitRepository defines the persistence interface for units.
type UnitRepository interface {
	Create(ctx context.Context, u *Unit) error
	GetByID(ctx context.Context, id int) (*Unit, error)
	Update(ctx context.Context, id int, fields map[string]any) (*Unit, error)
	Delete(ctx context.Context, id int) error
	List(ctx context.Context, limit, offset int) ([]*Unit, int, error)
}

// BedRepository defines the persistence interface for beds.
type BedRepository interface {
	Create(ctx context.Context, b *Bed) error
	GetByID(ctx context.Context, id int) (*Bed, error)
	Update(ctx context.Context, id int, fields map[string]any) (*Bed, error)
	Delete(ctx context.Context, id int) error
	List(ctx context.Context, unitID, limit, offset int) ([]*Bed, int, error)
}
