package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const pingTimeout = 5 * time.Second

// PendingFunc counts staged writes still waiting for a replay pass.
type PendingFunc func(ctx context.Context) (int, error)

type poolReport struct {
	Total    int32 `json:"total"`
	Idle     int32 `json:"idle"`
	Acquired int32 `json:"acquired"`
	Max      int32 `json:"max"`
}

// Report is the body of GET /health/db.
type Report struct {
	Status    string     `json:"status"`
	Reachable bool       `json:"reachable"`
	Error     string     `json:"error,omitempty"`
	Latency   string     `json:"latency,omitempty"`
	Breaker   string     `json:"breaker"`
	Pool      poolReport `json:"pool"`
	// Staged is omitted when the staging area could not be read.
	Staged *int `json:"staged,omitempty"`
}

// Check pings the database and reads the breaker and staging backlog. The
// status is "ok" when the database answers, "degraded" when it answers but
// writes are still staged, and "down" otherwise.
func Check(ctx context.Context, pool *pgxpool.Pool, guard *Guard, pending PendingFunc) Report {
	r := Report{Breaker: guard.State()}

	st := pool.Stat()
	r.Pool = poolReport{Total: st.TotalConns(), Idle: st.IdleConns(), Acquired: st.AcquiredConns(), Max: st.MaxConns()}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	start := time.Now()
	err := pool.Ping(pingCtx)
	cancel()
	if err != nil {
		r.Error = err.Error()
	} else {
		r.Reachable = true
		r.Latency = time.Since(start).Round(time.Microsecond).String()
	}

	if pending != nil {
		if n, perr := pending(ctx); perr == nil {
			r.Staged = &n
		}
	}

	switch {
	case !r.Reachable:
		r.Status = "down"
	case r.Staged != nil && *r.Staged > 0:
		r.Status = "degraded"
	default:
		r.Status = "ok"
	}
	return r
}

// HealthHandler serves Check. It answers 503 only while the database is
// unreachable; a backlog of staged writes alone is still 200.
func HealthHandler(pool *pgxpool.Pool, guard *Guard, pending PendingFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := Check(c.Request().Context(), pool, guard, pending)
		if !r.Reachable {
			return c.JSON(http.StatusServiceUnavailable, r)
		}
		return c.JSON(http.StatusOK, r)
	}
}
