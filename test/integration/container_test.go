//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	pgImage    = "postgres:16-alpine"
	pgUser     = "rhp"
	pgPassword = "rhp"
	pgDatabase = "rhp_test"
)

// pgContainer is a throwaway Postgres started with the docker CLI. Docker
// picks the host port; the container is removed on Close.
type pgContainer struct {
	id  string
	dsn string
}

func startPostgres(ctx context.Context) (*pgContainer, error) {
	out, err := docker(ctx, "run", "-d", "--rm", "-P",
		"-e", "POSTGRES_USER="+pgUser,
		"-e", "POSTGRES_PASSWORD="+pgPassword,
		"-e", "POSTGRES_DB="+pgDatabase,
		pgImage,
	)
	if err != nil {
		return nil, err
	}
	c := &pgContainer{id: out}

	// "docker port" prints one line per address family, e.g. 0.0.0.0:49153.
	mapping, err := docker(ctx, "port", c.id, "5432/tcp")
	if err != nil {
		c.Close()
		return nil, err
	}
	first, _, _ := strings.Cut(mapping, "\n")
	port := first[strings.LastIndex(first, ":")+1:]
	c.dsn = fmt.Sprintf("postgres://%s:%s@127.0.0.1:%s/%s?sslmode=disable", pgUser, pgPassword, port, pgDatabase)

	if err := c.waitReady(ctx, time.Minute); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// waitReady retries a real connection; pg_isready inside the container
// reports ready before the init scripts restart the server.
func (c *pgContainer) waitReady(ctx context.Context, limit time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	var lastErr error
	for {
		conn, err := pgx.Connect(ctx, c.dsn)
		if err == nil {
			err = conn.Ping(ctx)
			conn.Close(context.Background())
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres %s not ready: %w", c.id[:12], errors.Join(ctx.Err(), lastErr))
		case <-tick.C:
		}
	}
}

func (c *pgContainer) Close() {
	_ = exec.Command("docker", "rm", "-f", c.id).Run()
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}
