package encounter

import (
	"context"
	"time"

	"github.com/rhp/rhp/internal/platform/staging"
)

type Service struct {
	encounters Repository
	transfers  TransferRepository
	discharges DischargeRepository
	fallback   *staging.Fallback
	now        func() time.Time
}

func NewService(encounters Repository, transfers TransferRepository, discharges DischargeRepository, fallback *staging.Fallback) *Service {
	return &Service{
		encounters: encounters,
		transfers:  transfers,
		discharges: discharges,
		fallback:   fallback,
		now:        time.Now,
	}
}

// stamp fills an unset event time with the current time, so a staged record
// keeps the moment it happened rather than the moment it is replayed.
func (s *Service) stamp(t **time.Time) {
	if *t == nil {
		now := s.now().UTC().Truncate(time.Microsecond)
		*t = &now
	}
}

// -- Encounter --

func (s *Service) CreateEncounter(ctx context.Context, e *Encounter) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.stamp(&e.Time)
	return s.fallback.Write(ctx, staging.EntityEncounter, staging.ActionCreate, e.Columns,
		func(ctx context.Context) error { return s.encounters.Create(ctx, e) })
}

func (s *Service) GetEncounter(ctx context.Context, id int) (*Encounter, error) {
	return s.encounters.GetByID(ctx, id)
}

func (s *Service) UpdateEncounter(ctx context.Context, id int, p *EncounterPatch) (*Encounter, error) {
	fields, err := p.Fields()
	if err != nil {
		return nil, err
	}
	var out *Encounter
	err = s.fallback.Write(ctx, staging.EntityEncounter, staging.ActionUpdate,
		func() map[string]any { return staging.Keyed(fields, "id_atendimento", id) },
		func(ctx context.Context) error {
			var err error
			out, err = s.encounters.Update(ctx, id, fields)
			return err
		})
	return out, err
}

func (s *Service) DeleteEncounter(ctx context.Context, id int) error {
	return s.encounters.Delete(ctx, id)
}

func (s *Service) ListEncounters(ctx context.Context, cpf string, limit, offset int) ([]*Encounter, int, error) {
	if cpf != "" {
		if err := checkCPF(cpf); err != nil {
			return nil, 0, err
		}
	}
	return s.encounters.List(ctx, cpf, limit, offset)
}

// -- Transfer --

func (s *Service) CreateTransfer(ctx context.Context, t *Transfer) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.stamp(&t.Time)
	return s.fallback.Write(ctx, staging.EntityTransfer, staging.ActionCreate, t.Columns,
		func(ctx context.Context) error { return s.transfers.Create(ctx, t) })
}

func (s *Service) GetTransfer(ctx context.Context, id int) (*Transfer, error) {
	return s.transfers.GetByID(ctx, id)
}

func (s *Service) UpdateTransfer(ctx context.Context, id int, p *TransferPatch) (*Transfer, error) {
	fields, err := p.Fields()
	if err != nil {
		return nil, err
	}
	var out *Transfer
	err = s.fallback.Write(ctx, staging.EntityTransfer, staging.ActionUpdate,
		func() map[string]any { return staging.Keyed(fields, "id_transferencia", id) },
		func(ctx context.Context) error {
			var err error
			out, err = s.transfers.Update(ctx, id, fields)
			return err
		})
	return out, err
}

func (s *Service) DeleteTransfer(ctx context.Context, id int) error {
	return s.transfers.Delete(ctx, id)
}

func (s *Service) ListTransfers(ctx context.Context, cpf string, limit, offset int) ([]*Transfer, int, error) {
	if cpf != "" {
		if err := checkCPF(cpf); err != nil {
			return nil, 0, err
		}
	}
	return s.transfers.List(ctx, cpf, limit, offset)
}

// -- Discharge --

func (s *Service) CreateDischarge(ctx context.Context, d *Discharge) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.stamp(&d.Time)
	return s.fallback.Write(ctx, staging.EntityDischarge, staging.ActionCreate, d.Columns,
		func(ctx context.Context) error { return s.discharges.Create(ctx, d) })
}

func (s *Service) GetDischarge(ctx context.Context, id int) (*Discharge, error) {
	return s.discharges.GetByID(ctx, id)
}

func (s *Service) UpdateDischarge(ctx context.Context, id int, p *DischargePatch) (*Discharge, error) {
	fields, err := p.Fields()
	if err != nil {
		return nil, err
	}
	var out *Discharge
	err = s.fallback.Write(ctx, staging.EntityDischarge, staging.ActionUpdate,
		func() map[string]any { return staging.Keyed(fields, "id_alta", id) },
		func(ctx context.Context) error {
			var err error
			out, err = s.discharges.Update(ctx, id, fields)
			return err
		})
	return out, err
}

func (s *Service) DeleteDischarge(ctx context.Context, id int) error {
	return s.discharges.Delete(ctx, id)
}

func (s *Service) ListDischarges(ctx context.Context, cpf string, limit, offset int) ([]*Discharge, int, error) {
	if cpf != "" {
		if err := checkCPF(cpf); err != nil {
			return nil, 0, err
		}
	}
	return s.discharges.List(ctx, cpf, limit, offset)
}
