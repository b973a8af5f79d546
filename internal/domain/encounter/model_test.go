package encounter

import (
	"testing"
	"time"
)

func TestEncounter_Columns(t *testing.T) {
	at := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	e := &Encounter{CPF: "12345678901", Time: &at, Insurance: strPtr("SUS")}
	cols := e.Columns()
	if len(cols) != 3 || cols["convenio"] != "SUS" || cols["data_hora"] != at {
		t.Errorf("unexpected columns %v", cols)
	}
}

func TestTransferPatch_Fields(t *testing.T) {
	if _, err := (&TransferPatch{ToBedID: intPtr(0)}).Fields(); err == nil {
		t.Error("expected error for non-positive bed")
	}
	if _, err := (&TransferPatch{CPF: strPtr("123")}).Fields(); err == nil {
		t.Error("expected error for bad cpf")
	}
	fields, err := (&TransferPatch{ToBedID: intPtr(4), Reason: strPtr("x")}).Fields()
	if err != nil {
		t.Fatal(err)
	}
	if fields["codigo_leito_destino"] != 4 || fields["motivo"] != "x" || len(fields) != 2 {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestDischarge_Columns(t *testing.T) {
	d := &Discharge{ID: 9, CPF: "12345678901"}
	cols := d.Columns()
	if cols["id_alta"] != 9 || cols["cpf"] != "12345678901" || len(cols) != 2 {
		t.Errorf("unexpected columns %v", cols)
	}
}
