package staging

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

type recordingStager struct {
	calls []map[string]any
}

func (r *recordingStager) Save(_ context.Context, _ string, _ Action, payload map[string]any) error {
	r.calls = append(r.calls, payload)
	return nil
}

func TestDegrade(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStaged bool
		wantCode   int
	}{
		{"no error", nil, false, 0},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true, http.StatusServiceUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true, http.StatusServiceUnavailable},
		{"disk full", &pgconn.PgError{Code: "53100"}, true, http.StatusInternalServerError},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true, http.StatusInternalServerError},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false, 0},
		{"plain error", errors.New("boom"), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &recordingStager{}
			payload := map[string]any{"cpf": "12345678901"}
			err := Degrade(context.Background(), st, EntityPatient, ActionCreate, payload, tt.err)

			if staged := len(st.calls) == 1; staged != tt.wantStaged {
				t.Fatalf("staged=%v, want %v", staged, tt.wantStaged)
			}
			if !tt.wantStaged {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			var he *echo.HTTPError
			if !errors.As(err, &he) {
				t.Fatalf("expected *echo.HTTPError, got %T", err)
			}
			if he.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, he.Code)
			}
		})
	}
}

func TestFallbackWrite(t *testing.T) {
	st := &recordingStager{}
	f := NewFallback(nil, st)
	ctx := context.Background()
	payload := func() map[string]any { return map[string]any{"nome_unidade": "UTI"} }

	if err := f.Write(ctx, EntityUnit, ActionCreate, payload, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if len(st.calls) != 0 {
		t.Fatal("successful write must not stage")
	}

	conflict := &pgconn.PgError{Code: "23505"}
	if err := f.Write(ctx, EntityUnit, ActionCreate, payload, func(context.Context) error { return conflict }); !errors.Is(err, conflict) {
		t.Fatalf("expected conflict passthrough, got %v", err)
	}

	err := f.Write(ctx, EntityUnit, ActionCreate, payload, func(context.Context) error {
		return &pgconn.PgError{Code: "08001"}
	})
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}
	if len(st.calls) != 1 || st.calls[0]["nome_unidade"] != "UTI" {
		t.Errorf("expected payload staged once, got %v", st.calls)
	}
}
