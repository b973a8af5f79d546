package staging

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rhp/rhp/internal/platform/db"
)

// Stager is the write side of the staging area.
type Stager interface {
	Save(ctx context.Context, entity string, action Action, payload map[string]any) error
}

// Degrade is called by handlers after a failed live write. When err is a
// database availability failure the payload is staged and an HTTP error is
// returned (503 when the database is unreachable, 500 when it failed on its
// side). Any other err yields nil and the caller reports it as usual.
func Degrade(ctx context.Context, s Stager, entity string, action Action, payload map[string]any, err error) error {
	var code int
	switch db.Classify(err) {
	case db.KindUnavailable:
		code = http.StatusServiceUnavailable
	case db.KindServer:
		code = http.StatusInternalServerError
	default:
		return nil
	}

	if serr := s.Save(ctx, entity, action, payload); serr != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to stage write").SetInternal(serr)
	}
	return echo.NewHTTPError(code, map[string]any{
		"message": "database unavailable; the write was staged for later processing",
		"staged":  true,
	}).SetInternal(err)
}

// Fallback runs live writes through the circuit breaker and stages the
// payload when the database is unavailable.
type Fallback struct {
	guard  *db.Guard
	stager Stager
}

func NewFallback(guard *db.Guard, stager Stager) *Fallback {
	return &Fallback{guard: guard, stager: stager}
}

// Write calls write through the breaker. On an availability failure the
// payload is staged and the degraded-service HTTP error is returned; any
// other failure is returned unchanged. payload is only built when needed.
func (f *Fallback) Write(ctx context.Context, entity string, action Action, payload func() map[string]any, write func(ctx context.Context) error) error {
	if f == nil {
		return write(ctx)
	}
	err := f.guard.Do(func() error { return write(ctx) })
	if err == nil || f.stager == nil {
		return err
	}
	if derr := Degrade(ctx, f.stager, entity, action, payload(), err); derr != nil {
		return derr
	}
	return err
}

// Keyed copies fields and adds the key column, so a staged update can be
// matched to its row on replay.
func Keyed(fields map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
	return out
}
