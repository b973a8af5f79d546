package identity

import (
	"context"
	"strings"

	"github.com/rhp/rhp/internal/platform/staging"
)

type Service struct {
	patients      PatientRepository
	professionals ProfessionalRepository
	fallback      *staging.Fallback
}

func NewService(patients PatientRepository, professionals ProfessionalRepository, fallback *staging.Fallback) *Service {
	return &Service{patients: patients, professionals: professionals, fallback: fallback}
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.fallback.Write(ctx, staging.EntityPatient, staging.ActionCreate, p.Columns,
		func(ctx context.Context) error { return s.patients.Create(ctx, p) })
}

func (s *Service) GetPatient(ctx context.Context, cpf string) (*Patient, error) {
	if err := checkCPF(cpf); err != nil {
		return nil, err
	}
	return s.patients.GetByCPF(ctx, cpf)
}

func (s *Service) UpdatePatient(ctx context.Context, cpf string, p *PatientPatch) (*Patient, error) {
	if err := checkCPF(cpf); err != nil {
		return nil, err
	}
	fields, err := p.Fields()
	if err != nil {
		return nil, err
	}
	var out *Patient
	err = s.fallback.Write(ctx, staging.EntityPatient, staging.ActionUpdate,
		func() map[string]any { return staging.Keyed(fields, "cpf", cpf) },
		func(ctx context.Context) error {
			var err error
			out, err = s.patients.Update(ctx, cpf, fields)
			return err
		})
	return out, err
}

func (s *Service) DeletePatient(ctx context.Context, cpf string) error {
	if err := checkCPF(cpf); err != nil {
		return err
	}
	return s.patients.Delete(ctx, cpf)
}

func (s *Service) ListPatients(ctx context.Context, name string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, strings.TrimSpace(name), limit, offset)
}

// -- Professional --

func (s *Service) CreateProfessional(ctx context.Context, p *Professional) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.fallback.Write(ctx, staging.EntityProfessional, staging.ActionCreate, p.Columns,
		func(ctx context.Context) error { return s.professionals.Create(ctx, p) })
}

func (s *Service) GetProfessional(ctx context.Context, cpf string) (*Professional, error) {
	if err := checkCPF(cpf); err != nil {
		return nil, err
	}
	return s.professionals.GetByCPF(ctx, cpf)
}

func (s *Service) UpdateProfessional(ctx context.Context, cpf string, p *ProfessionalPatch) (*Professional, error) {
	if err := checkCPF(cpf); err != nil {
		return nil, err
	}
	fields, err := p.Fields()
	if err != nil {
		return nil, err
	}
	var out *Professional
	err = s.fallback.Write(ctx, staging.EntityProfessional, staging.ActionUpdate,
		func() map[string]any { return staging.Keyed(fields, "cpf", cpf) },
		func(ctx context.Context) error {
			var err error
			out, err = s.professionals.Update(ctx, cpf, fields)
			return err
		})
	return out, err
}

func (s *Service) DeleteProfessional(ctx context.Context, cpf string) error {
	if err := checkCPF(cpf); err != nil {
		return err
	}
	return s.professionals.Delete(ctx, cpf)
}

func (s *Service) ListProfessionals(ctx context.Context, limit, offset int) ([]*Professional, int, error) {
	return s.professionals.List(ctx, limit, offset)
}
