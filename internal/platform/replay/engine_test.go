package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/rhp/rhp/internal/platform/staging"
)

func tableFor(t *testing.T, entity string) Table {
	t.Helper()
	for _, tb := range DefaultTables() {
		if tb.Entity == entity {
			return tb
		}
	}
	t.Fatalf("no table for %s", entity)
	return Table{}
}

func recs(payloads ...map[string]any) []staging.Record {
	out := make([]staging.Record, len(payloads))
	for i, p := range payloads {
		out[i] = staging.Record{Payload: p, Path: "test", Timestamp: int64(i)}
	}
	return out
}

func newTestEngine(db Database, policy CommitPolicy) *Engine {
	return NewEngine(db, nil, Config{Policy: policy}, zerolog.Nop(), nil)
}

func TestKeyColumn(t *testing.T) {
	tests := map[string]string{
		"paciente":      "cpf",
		"profissional":  "cpf",
		"leito":         "id_leito",
		"unidade":       "id_unidade",
		"transferencia": "id_transferencia",
	}
	for entity, want := range tests {
		if got := KeyColumn(entity); got != want {
			t.Errorf("KeyColumn(%q) = %q, want %q", entity, got, want)
		}
	}
}

func TestParseCommitPolicy(t *testing.T) {
	if p, err := ParseCommitPolicy(""); err != nil || p != CommitBatch {
		t.Errorf("empty: got %q, %v", p, err)
	}
	if p, err := ParseCommitPolicy("RECORD"); err != nil || p != CommitRecord {
		t.Errorf("RECORD: got %q, %v", p, err)
	}
	if _, err := ParseCommitPolicy("never"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	in := recs(
		map[string]any{"nome_unidade": "UTI", "descricao_unid": "x"},
		map[string]any{"nome_unidade": "PS"},
		map[string]any{"descricao_unid": "x", "nome_unidade": "UTI"},
	)
	unique, dups := Dedupe(in)
	if len(unique) != 2 || len(dups) != 1 {
		t.Fatalf("expected 2 unique and 1 duplicate, got %d and %d", len(unique), len(dups))
	}
	if unique[0].Timestamp != 0 || unique[1].Timestamp != 1 || dups[0].Timestamp != 2 {
		t.Errorf("unexpected order: %+v / %+v", unique, dups)
	}
}

func TestApplyCreateInsertsEachUniqueRecord(t *testing.T) {
	db := newFakeDB()
	e := newTestEngine(db, CommitBatch)

	res, err := e.Apply(context.Background(), recs(
		map[string]any{"nome_unidade": "UTI"},
		map[string]any{"nome_unidade": "PS"},
		map[string]any{"nome_unidade": "UTI"},
	), tableFor(t, "unidade"), staging.ActionCreate)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Inserted != 2 || res.Duplicates != 1 {
		t.Errorf("expected 2 inserts and 1 duplicate, got %+v", res)
	}
	if n := len(db.rows("unidade")); n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
}

func TestApplyUpdateTouchesOnlyPresentColumns(t *testing.T) {
	db := newFakeDB()
	db.seed("paciente", map[string]any{"cpf": "12345678901", "nome": "Ana", "endereco": "Rua 1", "telefone": "555"})
	e := newTestEngine(db, CommitBatch)

	res, err := e.Apply(context.Background(), recs(
		map[string]any{"cpf": "12345678901", "nome": "Ana Maria"},
	), tableFor(t, "paciente"), staging.ActionUpdate)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Updated != 1 {
		t.Errorf("expected 1 update, got %+v", res)
	}
	row := db.rows("paciente")[0]
	if row["nome"] != "Ana Maria" || row["endereco"] != "Rua 1" || row["telefone"] != "555" {
		t.Errorf("unexpected row %v", row)
	}
}

func TestApplyUpdateUnmatchedInserts(t *testing.T) {
	db := newFakeDB()
	e := newTestEngine(db, CommitBatch)

	res, err := e.Apply(context.Background(), recs(
		map[string]any{"id_leito": int64(9), "id_unidade": int64(1), "unidade_internacao": "UTI"},
	), tableFor(t, "leito"), staging.ActionUpdate)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Inserted != 1 {
		t.Errorf("expected upsert insert, got %+v", res)
	}
	rows := db.rows("leito")
	if len(rows) != 1 || rows[0]["id_leito"] != int64(9) || rows[0]["unidade_internacao"] != "UTI" {
		t.Errorf("unexpected rows %v", rows)
	}
}

func TestApplyOrderedUpdatesAccumulate(t *testing.T) {
	db := newFakeDB()
	db.seed("paciente", map[string]any{"cpf": "98765432100", "nome": "old", "endereco": "old"})
	e := newTestEngine(db, CommitBatch)

	_, err := e.Apply(context.Background(), recs(
		map[string]any{"cpf": "98765432100", "nome": "Carla"},
		map[string]any{"cpf": "98765432100", "endereco": "Av. Brasil 100"},
	), tableFor(t, "paciente"), staging.ActionUpdate)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	row := db.rows("paciente")[0]
	if row["nome"] != "Carla" || row["endereco"] != "Av. Brasil 100" {
		t.Errorf("expected both updates applied, got %v", row)
	}
}

func TestApplyBatchPolicyIsAllOrNothing(t *testing.T) {
	db := newFakeDB()
	db.failInsert = func(table string, row map[string]any) error {
		if row["nome_unidade"] == "bad" {
			return &pgconn.PgError{Code: "23502"}
		}
		return nil
	}
	e := newTestEngine(db, CommitBatch)

	in := recs(
		map[string]any{"nome_unidade": "UTI"},
		map[string]any{"nome_unidade": "bad"},
		map[string]any{"nome_unidade": "PS"},
	)
	res, err := e.Apply(context.Background(), in, tableFor(t, "unidade"), staging.ActionCreate)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(res.Failed) != 3 {
		t.Errorf("expected every record failed, got %d", len(res.Failed))
	}
	if n := len(db.rows("unidade")); n != 0 {
		t.Errorf("expected no committed rows, got %d", n)
	}
}

func TestApplyRecordPolicyKeepsGoodRecords(t *testing.T) {
	db := newFakeDB()
	db.failInsert = func(table string, row map[string]any) error {
		if row["nome_unidade"] == "bad" {
			return &pgconn.PgError{Code: "23502"}
		}
		return nil
	}
	e := newTestEngine(db, CommitRecord)

	in := recs(
		map[string]any{"nome_unidade": "UTI"},
		map[string]any{"nome_unidade": "bad"},
		map[string]any{"nome_unidade": "PS"},
	)
	res, err := e.Apply(context.Background(), in, tableFor(t, "unidade"), staging.ActionCreate)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Inserted != 2 || len(res.Failed) != 1 || res.Failed[0].Payload["nome_unidade"] != "bad" {
		t.Errorf("unexpected result %+v", res)
	}
	if n := len(db.rows("unidade")); n != 2 {
		t.Errorf("expected 2 committed rows, got %d", n)
	}
}

func TestApplyRecordPolicyHoldsLaterUpdatesToFailedKey(t *testing.T) {
	db := newFakeDB()
	db.seed("paciente", map[string]any{"cpf": "11111111111", "nome": "old"})
	db.seed("paciente", map[string]any{"cpf": "22222222222", "nome": "old"})
	db.failUpdate = func(table string, set map[string]any) error {
		if set["nome"] == "Ana v1" {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	}
	e := newTestEngine(db, CommitRecord)
	table := tableFor(t, "paciente")

	res, err := e.Apply(context.Background(), recs(
		map[string]any{"cpf": "11111111111", "nome": "Ana v1"},
		map[string]any{"cpf": "22222222222", "nome": "Bia"},
		map[string]any{"cpf": "11111111111", "nome": "Ana v2"},
	), table, staging.ActionUpdate)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Updated != 1 || len(res.Failed) != 2 {
		t.Fatalf("expected 1 updated and 2 held back, got %+v", res)
	}
	if res.Failed[0].Payload["nome"] != "Ana v1" || res.Failed[1].Payload["nome"] != "Ana v2" {
		t.Errorf("expected failed records in staged order, got %v, %v", res.Failed[0].Payload, res.Failed[1].Payload)
	}
	if row := db.rows("paciente")[0]; row["nome"] != "old" {
		t.Errorf("expected later update held back, got nome %v", row["nome"])
	}

	// Next pass: the held records apply in order and the newest value wins.
	db.failUpdate = nil
	if _, err := e.Apply(context.Background(), res.Failed, table, staging.ActionUpdate); err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if row := db.rows("paciente")[0]; row["nome"] != "Ana v2" {
		t.Errorf("expected nome Ana v2, got %v", row["nome"])
	}
	if row := db.rows("paciente")[1]; row["nome"] != "Bia" {
		t.Errorf("expected nome Bia, got %v", row["nome"])
	}
}

func TestApplyRejectsAndFiltersColumns(t *testing.T) {
	db := newFakeDB()
	e := newTestEngine(db, CommitBatch)

	res, err := e.Apply(context.Background(), recs(
		map[string]any{"nome": "no key"},
		map[string]any{"cpf": "11122233344", "nome": "Bia", "favorite_color": "blue"},
	), tableFor(t, "paciente"), staging.ActionUpdate)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Rejected) != 1 || res.Inserted != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	row := db.rows("paciente")[0]
	if _, ok := row["favorite_color"]; ok {
		t.Errorf("unknown column was written: %v", row)
	}
}

func TestApplyBeginFailure(t *testing.T) {
	db := newFakeDB()
	db.beginErr = errors.New("dial tcp: connection refused")
	e := newTestEngine(db, CommitBatch)

	res, err := e.Apply(context.Background(), recs(map[string]any{"nome_unidade": "UTI"}), tableFor(t, "unidade"), staging.ActionCreate)
	if err == nil || len(res.Failed) != 1 {
		t.Fatalf("expected begin failure with 1 failed record, got %+v, %v", res, err)
	}
}

func newTestStore(t *testing.T) *staging.Store {
	t.Helper()
	return staging.NewStore(t.TempDir(), zerolog.Nop(), nil)
}

func TestRunPassPatientCreate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	db := newFakeDB()
	e := NewEngine(db, store, Config{}, zerolog.Nop(), nil)

	payload := map[string]any{"cpf": "12345678901", "nome": "Maria", "data_nascimento": "1990-01-01"}
	if err := store.Save(ctx, staging.EntityPatient, staging.ActionCreate, payload); err != nil {
		t.Fatal(err)
	}

	sum := e.RunPass(ctx)
	if sum.Applied != 1 || sum.Failed != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	rows := db.rows("paciente")
	if len(rows) != 1 || rows[0]["nome"] != "Maria" || rows[0]["cpf"] != "12345678901" {
		t.Errorf("unexpected rows %v", rows)
	}
	if left, _ := store.Load(ctx, staging.ActionCreate, staging.EntityPatient); len(left) != 0 {
		t.Errorf("expected partition cleaned, %d records left", len(left))
	}
}

func TestRunPassFailureKeepsRecordsPending(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	db := newFakeDB()
	db.failInsert = func(string, map[string]any) error { return &pgconn.PgError{Code: "08006"} }
	e := NewEngine(db, store, Config{}, zerolog.Nop(), nil)

	_ = store.Save(ctx, staging.EntityUnit, staging.ActionCreate, map[string]any{"nome_unidade": "UTI"})
	_ = store.Save(ctx, staging.EntityUnit, staging.ActionCreate, map[string]any{"nome_unidade": "PS"})

	sum := e.RunPass(ctx)
	if sum.Failed != 2 {
		t.Errorf("expected 2 failed, got %+v", sum)
	}
	left, _ := store.Load(ctx, staging.ActionCreate, staging.EntityUnit)
	if len(left) != 2 {
		t.Fatalf("expected 2 records still pending, got %d", len(left))
	}
	if left[0].Payload["nome_unidade"] != "UTI" || left[1].Payload["nome_unidade"] != "PS" {
		t.Errorf("original records not preserved: %+v", left)
	}
}

func TestRunPassCreatesBeforeUpdates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	db := newFakeDB()
	e := NewEngine(db, store, Config{}, zerolog.Nop(), nil)

	_ = store.Save(ctx, staging.EntityPatient, staging.ActionUpdate, map[string]any{"cpf": "1", "nome": "B"})
	_ = store.Save(ctx, staging.EntityBed, staging.ActionCreate, map[string]any{"id_unidade": int64(1)})
	_ = store.Save(ctx, staging.EntityUnit, staging.ActionCreate, map[string]any{"nome_unidade": "UTI"})

	e.RunPass(ctx)
	want := []string{"insert unidade", "insert leito", "insert paciente"}
	if len(db.ops) != len(want) {
		t.Fatalf("expected ops %v, got %v", want, db.ops)
	}
	for i := range want {
		if db.ops[i] != want[i] {
			t.Errorf("op %d: expected %q, got %q", i, want[i], db.ops[i])
		}
	}
}

type stubLocker struct {
	ok  bool
	err error
}

func (l stubLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, l.ok, l.err
}

func TestRunPassSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	db := newFakeDB()

	for _, l := range []stubLocker{{ok: false}, {err: errors.New("redis down")}} {
		e := NewEngine(db, store, Config{Locker: l}, zerolog.Nop(), nil)
		_ = store.Save(ctx, staging.EntityUnit, staging.ActionCreate, map[string]any{"nome_unidade": "UTI"})

		sum := e.RunPass(ctx)
		if !sum.Skipped {
			t.Errorf("expected skipped pass, got %+v", sum)
		}
	}
	if n := len(db.rows("unidade")); n != 0 {
		t.Errorf("expected nothing applied, got %d rows", n)
	}
}

func TestRunPassRecoversInterruptedSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	db := newFakeDB()
	e := NewEngine(db, store, Config{}, zerolog.Nop(), nil)

	_ = store.Save(ctx, staging.EntityDischarge, staging.ActionCreate, map[string]any{"cpf": "1", "motivo_alta": "cura"})
	if _, err := store.Claim(ctx, staging.ActionCreate, staging.EntityDischarge); err != nil {
		t.Fatal(err)
	}

	sum := e.RunPass(ctx)
	if sum.Recovered != 1 || sum.Applied != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
}
