package db

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sony/gobreaker/v2"
)

// ErrNotFound is returned by repositories when a keyed row does not exist.
var ErrNotFound = errors.New("record not found")

// Kind is the failure class of a database error.
type Kind int

const (
	KindNone Kind = iota
	// KindUnavailable: the database could not be reached at all.
	KindUnavailable
	// KindServer: the database was reached but failed on its side.
	KindServer
	KindConflict
	KindInvalid
	KindNotFound
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUnavailable:
		return "unavailable"
	case KindServer:
		return "server"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	default:
		return "other"
	}
}

// Classify maps an error returned by pgx (or by the live-write Guard) onto a
// Kind. Only KindUnavailable and KindServer make a write eligible for local
// staging; integrity and data errors would fail again on replay.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return KindUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyCode(pgErr.Code)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return KindUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		pgconn.Timeout(err) ||
		pgconn.SafeToRetry(err) {
		return KindUnavailable
	}
	return KindOther
}

func classifyCode(code string) Kind {
	switch code {
	case "57P01", "57P02", "57P03", "53300":
		return KindUnavailable
	case "55P03", "57014":
		return KindServer
	}
	switch {
	case strings.HasPrefix(code, "08"):
		return KindUnavailable
	case strings.HasPrefix(code, "23"):
		return KindConflict
	case strings.HasPrefix(code, "22"):
		return KindInvalid
	case strings.HasPrefix(code, "53"),
		strings.HasPrefix(code, "58"),
		strings.HasPrefix(code, "XX"),
		strings.HasPrefix(code, "40"):
		return KindServer
	}
	return KindOther
}

// IsAvailabilityFailure reports whether err should trigger the staging
// fallback.
func IsAvailabilityFailure(err error) bool {
	k := Classify(err)
	return k == KindUnavailable || k == KindServer
}

// StatusCode maps a database error to the HTTP status a handler returns.
func StatusCode(err error) int {
	switch Classify(err) {
	case KindNone:
		return http.StatusOK
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
