package staging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHandlerStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_ = s.Save(ctx, EntityPatient, ActionCreate, map[string]any{"cpf": "12345678901"})
	_ = s.Save(ctx, EntityPatient, ActionCreate, map[string]any{"cpf": "10987654321"})
	_ = s.Save(ctx, EntityUnit, ActionUpdate, map[string]any{"id_unidade": 1})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/staging", nil), rec)
	if err := NewHandler(s, nil).Status(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Pending []Pending `json:"pending"`
		Total   int       `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 3 || len(body.Pending) != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Pending[0].Action != ActionCreate || body.Pending[0].Files != 2 {
		t.Errorf("unexpected first entry %+v", body.Pending[0])
	}
}

func TestHandlerStatusEmpty(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := NewHandler(newTestStore(t), nil).Status(c); err != nil {
		t.Fatal(err)
	}
	if got := rec.Body.String(); got != "{\"pending\":[],\"total\":0}\n" {
		t.Errorf("unexpected body %q", got)
	}
}

func TestHandlerReplay(t *testing.T) {
	e := echo.New()
	s := newTestStore(t)

	calls := 0
	h := NewHandler(s, func() error { calls++; return nil })
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	if err := h.Replay(c); err != nil || calls != 1 {
		t.Fatalf("expected one pass, got %d (%v)", calls, err)
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}

	h = NewHandler(s, func() error { return ErrReplayRunning })
	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	he, ok := h.Replay(c).(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", he)
	}
}

func TestHandlerRoutes(t *testing.T) {
	e := echo.New()
	NewHandler(newTestStore(t), nil).RegisterRoutes(e.Group("/api/v1"))
	for _, r := range e.Routes() {
		if r.Path == "/api/v1/staging/replay" {
			t.Error("replay route registered without a trigger")
		}
	}
}
