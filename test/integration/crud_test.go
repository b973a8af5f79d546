//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rhp/rhp/internal/domain/admin"
	"github.com/rhp/rhp/internal/domain/encounter"
	"github.com/rhp/rhp/internal/domain/identity"
	"github.com/rhp/rhp/internal/platform/db"
)

func TestUnitAndBedCRUD(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)

	units := admin.NewUnitRepo(globalPool)
	beds := admin.NewBedRepo(globalPool)

	u := &admin.Unit{Name: "UTI Adulto", Description: ptrStr("terapia intensiva")}
	if err := units.Create(ctx, u); err != nil {
		t.Fatalf("create unit: %v", err)
	}
	if u.ID == 0 {
		t.Fatal("expected generated id")
	}

	b := &admin.Bed{UnitID: u.ID, Ward: ptrStr("ala norte")}
	if err := beds.Create(ctx, b); err != nil {
		t.Fatalf("create bed: %v", err)
	}

	updated, err := units.Update(ctx, u.ID, map[string]any{"nome_unidade": "UTI"})
	if err != nil {
		t.Fatalf("update unit: %v", err)
	}
	if updated.Name != "UTI" || updated.Description == nil || *updated.Description != "terapia intensiva" {
		t.Errorf("partial update changed other columns: %+v", updated)
	}

	list, total, err := beds.List(ctx, u.ID, 10, 0)
	if err != nil || total != 1 || len(list) != 1 {
		t.Fatalf("list beds: %v, %d, %v", list, total, err)
	}

	err = beds.Create(ctx, &admin.Bed{UnitID: 9999})
	if db.Classify(err) != db.KindConflict {
		t.Errorf("expected foreign-key conflict, got %v", err)
	}

	if err := beds.Delete(ctx, b.ID); err != nil {
		t.Fatalf("delete bed: %v", err)
	}
	if _, err := beds.GetByID(ctx, b.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPatientCRUD(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)

	repo := identity.NewPatientRepo(globalPool)
	p := &identity.Patient{CPF: "12345678901", Name: "Maria da Silva", BirthDate: ptrStr("1980-02-29")}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByCPF(ctx, "12345678901")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BirthDate == nil || *got.BirthDate != "1980-02-29" {
		t.Errorf("birth date round trip: %v", got.BirthDate)
	}

	got, err = repo.Update(ctx, "12345678901", map[string]any{"telefone": "11999990000"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Phone == nil || *got.Phone != "11999990000" || got.Name != "Maria da Silva" {
		t.Errorf("unexpected patient after update: %+v", got)
	}

	list, total, err := repo.List(ctx, "silva", 10, 0)
	if err != nil || total != 1 || len(list) != 1 {
		t.Errorf("name search: %v, %d, %v", list, total, err)
	}

	err = repo.Create(ctx, &identity.Patient{CPF: "12345678901", Name: "Outra"})
	if db.Classify(err) != db.KindConflict {
		t.Errorf("expected unique conflict, got %v", err)
	}
}

func TestEncounterCRUD(t *testing.T) {
	ctx := context.Background()
	resetTables(t, ctx)

	if err := identity.NewPatientRepo(globalPool).Create(ctx, &identity.Patient{CPF: "12345678901", Name: "Maria"}); err != nil {
		t.Fatal(err)
	}
	prof := &identity.Professional{CPF: "98765432100", Name: "Paulo"}
	if err := identity.NewProfessionalRepo(globalPool).Create(ctx, prof); err != nil {
		t.Fatal(err)
	}

	repo := encounter.NewRepo(globalPool)
	at := time.Date(2024, 5, 10, 11, 15, 0, 0, time.UTC)
	e := &encounter.Encounter{CPF: "12345678901", Time: &at, Type: ptrStr("consulta"), ProfessionalID: &prof.ID}
	if err := repo.Create(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByID(ctx, e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Time == nil || !got.Time.Equal(at) {
		t.Errorf("time round trip: %v", got.Time)
	}

	list, total, err := repo.List(ctx, "12345678901", 10, 0)
	if err != nil || total != 1 || len(list) != 1 {
		t.Errorf("list by cpf: %d, %v", total, err)
	}

	err = encounter.NewDischargeRepo(globalPool).Create(ctx, &encounter.Discharge{CPF: "00000000000"})
	if db.Classify(err) != db.KindConflict {
		t.Errorf("expected foreign-key conflict, got %v", err)
	}
}
