package admin

import (
	"context"

	"github.com/rhp/rhp/internal/platform/staging"
)

type Service struct {
	units    UnitRepository
	beds     BedRepository
	fallback *staging.Fallback
}

// NewService wires the repositories. fallback may be nil, in which case
// writes go straight to the database without staging.
func NewService(units UnitRepository, beds BedRepository, fallback *staging.Fallback) *Service {
	return &Service{units: units, beds: beds, fallback: fallback}
}

// -- Unit --

func (s *Service) CreateUnit(ctx context.Context, u *Unit) error {
	if err := u.Validate(); err != nil {
		return err
	}
	return s.fallback.Write(ctx, staging.EntityUnit, staging.ActionCreate, u.Columns,
		func(ctx context.Context) error { return s.units.Create(ctx, u) })
}

func (s *Service) GetUnit(ctx context.Context, id int) (*Unit, error) {
	return s.units.GetByID(ctx, id)
}

func (s *Service) UpdateUnit(ctx context.Context, id int, p *UnitPatch) (*Unit, error) {
	fields, err := p.Fields()
	if err != nil {
		return nil, err
	}
	var out *Unit
	err = s.fallback.Write(ctx, staging.EntityUnit, staging.ActionUpdate,
		func() map[string]any { return staging.Keyed(fields, "id_unidade", id) },
		func(ctx context.Context) error {
			var err error
			out, err = s.units.Update(ctx, id, fields)
			return err
		})
	return out, err
}

func (s *Service) DeleteUnit(ctx context.Context, id int) error {
	return s.units.Delete(ctx, id)
}

func (s *Service) ListUnits(ctx context.Context, limit, offset int) ([]*Unit, int, error) {
	return s.units.List(ctx, limit, offset)
}

// -- Bed --

func (s *Service) CreateBed(ctx context.Context, b *Bed) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return s.fallback.Write(ctx, staging.EntityBed, staging.ActionCreate, b.Columns,
		func(ctx context.Context) error { return s.beds.Create(ctx, b) })
}

func (s *Service) GetBed(ctx context.Context, id int) (*Bed, error) {
	return s.beds.GetByID(ctx, id)
}

func (s *Service) UpdateBed(ctx context.Context, id int, p *BedPatch) (*Bed, error) {
	fields, err := p.Fields()
	if err != nil {
		return nil, err
	}
	var out *Bed
	err = s.fallback.Write(ctx, staging.EntityBed, staging.ActionUpdate,
		func() map[string]any { return staging.Keyed(fields, "id_leito", id) },
		func(ctx context.Context) error {
			var err error
			out, err = s.beds.Update(ctx, id, fields)
			return err
		})
	return out, err
}

func (s *Service) DeleteBed(ctx context.Context, id int) error {
	return s.beds.Delete(ctx, id)
}

func (s *Service) ListBeds(ctx context.Context, unitID, limit, offset int) ([]*Bed, int, error) {
	return s.beds.List(ctx, unitID, limit, offset)
}
