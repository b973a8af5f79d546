package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rhp/rhp/internal/platform/staging"
	"github.com/rhp/rhp/internal/platform/telemetry"
)

// CommitPolicy controls what a failing record does to the rest of its batch.
type CommitPolicy string

const (
	// CommitBatch applies a batch in one transaction: any failure rolls the
	// whole batch back and every file stays pending.
	CommitBatch CommitPolicy = "batch"
	// CommitRecord wraps each record in a savepoint: a failing record is
	// rolled back and kept pending on its own.
	CommitRecord CommitPolicy = "record"
)

func ParseCommitPolicy(s string) (CommitPolicy, error) {
	switch p := CommitPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return CommitBatch, nil
	case CommitBatch, CommitRecord:
		return p, nil
	default:
		return "", fmt.Errorf("unknown commit policy %q (want batch or record)", s)
	}
}

// ErrRejected marks a record that can never be applied, such as an update
// without its key column.
var ErrRejected = errors.New("replay: record rejected")

const lockKey = "rhp:replay:pass"

type Config struct {
	Policy CommitPolicy
	// Tables defaults to DefaultTables().
	Tables []Table
	// Locker is optional; when set a pass also holds a distributed lock.
	Locker  Locker
	LockTTL time.Duration
}

// Source is the part of the staging store the engine consumes.
type Source interface {
	Lock() (func(), error)
	Recover(ctx context.Context) (int, error)
	Claim(ctx context.Context, action staging.Action, entity string) (*staging.Batch, error)
}

// Engine replays staged writes.
type Engine struct {
	db      Database
	source  Source
	cfg     Config
	logger  zerolog.Logger
	metrics *telemetry.Metrics

	mu sync.Mutex
}

func NewEngine(db Database, source Source, cfg Config, logger zerolog.Logger, metrics *telemetry.Metrics) *Engine {
	if cfg.Policy == "" {
		cfg.Policy = CommitBatch
	}
	if len(cfg.Tables) == 0 {
		cfg.Tables = DefaultTables()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &Engine{
		db:      db,
		source:  source,
		cfg:     cfg,
		logger:  logger.With().Str("component", "replay").Logger(),
		metrics: metrics,
	}
}

// Result describes one Apply call.
type Result struct {
	Inserted   int
	Updated    int
	Duplicates int
	// Failed records were not applied and should stay pending.
	Failed []staging.Record
	// Rejected records can never be applied.
	Rejected []staging.Record
}

// Applied is the number of records written to the database.
func (r Result) Applied() int { return r.Inserted + r.Updated }

// Apply writes records to table inside one transaction. Exact-duplicate
// payloads are applied once. Under CommitBatch a non-nil error means nothing
// was written. Under CommitRecord an error means the transaction itself
// could not be opened or committed; per-record failures come back in
// Result.Failed. Once an update fails, later updates to the same key are
// held back with it so they replay in timestamp order on the next pass.
func (e *Engine) Apply(ctx context.Context, recs []staging.Record, table Table, action staging.Action) (Result, error) {
	var res Result
	if !action.Valid() {
		return res, fmt.Errorf("%w: %q", staging.ErrInvalidAction, string(action))
	}

	unique, dups := Dedupe(recs)
	res.Duplicates = len(dups)

	rows := make([]staging.Record, 0, len(unique))
	for _, r := range unique {
		if err := e.check(r, table, action); err != nil {
			e.logger.Warn().Err(err).Str("path", r.Path).Msg("rejecting staged record")
			res.Rejected = append(res.Rejected, r)
			continue
		}
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		return res, nil
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		res.Failed = rows
		return res, fmt.Errorf("begin replay transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	blocked := make(map[string]bool)
	for _, r := range rows {
		key := rowKey(r, table, action)
		if key != "" && blocked[key] {
			e.logger.Warn().Str("path", r.Path).Msg("earlier update to this key failed; keeping it pending")
			res.Failed = append(res.Failed, r)
			continue
		}

		var w Session = tx
		if e.cfg.Policy == CommitRecord {
			sp, err := tx.Begin(ctx)
			if err != nil {
				return Result{Duplicates: res.Duplicates, Rejected: res.Rejected, Failed: rows},
					fmt.Errorf("open savepoint: %w", err)
			}
			w = sp
		}

		inserted, err := e.applyOne(ctx, w, r, table, action)
		if err != nil {
			if e.cfg.Policy == CommitBatch {
				return Result{Duplicates: res.Duplicates, Rejected: res.Rejected, Failed: rows},
					fmt.Errorf("apply %s: %w", r.Path, err)
			}
			if rerr := w.Rollback(ctx); rerr != nil {
				return Result{Duplicates: res.Duplicates, Rejected: res.Rejected, Failed: rows},
					fmt.Errorf("rollback savepoint: %w", rerr)
			}
			e.logger.Error().Err(err).Str("path", r.Path).Msg("staged record failed; keeping it pending")
			res.Failed = append(res.Failed, r)
			if key != "" {
				blocked[key] = true
			}
			continue
		}
		if e.cfg.Policy == CommitRecord {
			if err := w.Commit(ctx); err != nil {
				return Result{Duplicates: res.Duplicates, Rejected: res.Rejected, Failed: rows},
					fmt.Errorf("release savepoint: %w", err)
			}
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{Duplicates: res.Duplicates, Rejected: res.Rejected, Failed: rows},
			fmt.Errorf("commit replay transaction: %w", err)
	}
	return res, nil
}

// rowKey identifies the row an update targets, or "" for creates.
func rowKey(r staging.Record, table Table, action staging.Action) string {
	if action != staging.ActionUpdate {
		return ""
	}
	return fmt.Sprint(r.Payload[table.Key])
}

// check validates a record before any SQL runs.
func (e *Engine) check(r staging.Record, table Table, action staging.Action) error {
	row := e.filter(r, table)
	if len(row) == 0 {
		return fmt.Errorf("%w: no known columns for %s", ErrRejected, table.Name)
	}
	if action == staging.ActionUpdate {
		if v, ok := row[table.Key]; !ok || v == nil {
			return fmt.Errorf("%w: update without key column %s", ErrRejected, table.Key)
		}
	}
	return nil
}

// filter drops payload columns the table does not have.
func (e *Engine) filter(r staging.Record, table Table) map[string]any {
	row := make(map[string]any, len(r.Payload))
	for k, v := range r.Payload {
		if !table.HasColumn(k) {
			e.logger.Warn().Str("table", table.Name).Str("column", k).Str("path", r.Path).Msg("dropping unknown column")
			continue
		}
		row[k] = v
	}
	return row
}

// applyOne reports whether the record ended up as an insert.
func (e *Engine) applyOne(ctx context.Context, w Writer, r staging.Record, table Table, action staging.Action) (bool, error) {
	row := e.filter(r, table)
	if action == staging.ActionCreate {
		return true, w.Insert(ctx, table, row)
	}

	key := row[table.Key]
	set := make(map[string]any, len(row))
	for k, v := range row {
		if k != table.Key {
			set[k] = v
		}
	}
	matched, err := w.Update(ctx, table, key, set)
	if err != nil {
		return false, err
	}
	if matched {
		return false, nil
	}
	return true, w.Insert(ctx, table, row)
}

// Summary totals one pass.
type Summary struct {
	Recovered int
	Batches   int
	Applied   int
	Failed    int
	Rejected  int
	Skipped   bool
	Duration  time.Duration
}

// RunPass replays every pending partition: creates first, then updates, each
// in foreign-key order. Errors are logged and never returned; a failed batch
// stays pending for the next pass.
func (e *Engine) RunPass(ctx context.Context) Summary {
	start := time.Now()
	var sum Summary

	if !e.mu.TryLock() {
		e.logger.Warn().Msg("replay pass already running in this process; skipping")
		sum.Skipped = true
		return sum
	}
	defer e.mu.Unlock()

	if e.cfg.Locker != nil {
		unlock, ok, err := e.cfg.Locker.TryLock(ctx, lockKey, e.cfg.LockTTL)
		if err != nil {
			e.logger.Error().Err(err).Msg("failed to acquire distributed replay lock; skipping pass")
			sum.Skipped = true
			return sum
		}
		if !ok {
			e.logger.Info().Msg("replay pass held by another instance; skipping")
			sum.Skipped = true
			return sum
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				e.logger.Warn().Err(err).Msg("failed to release distributed replay lock")
			}
		}()
	}

	unlock, err := e.source.Lock()
	if errors.Is(err, staging.ErrLocked) {
		e.logger.Info().Msg("staging root locked by another process; skipping pass")
		sum.Skipped = true
		return sum
	}
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to lock staging root; skipping pass")
		sum.Skipped = true
		return sum
	}
	defer unlock()

	n, err := e.source.Recover(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to recover interrupted replay snapshots")
	}
	sum.Recovered = n

	for _, action := range staging.Actions {
		for _, table := range e.cfg.Tables {
			if ctx.Err() != nil {
				e.logger.Warn().Err(ctx.Err()).Msg("replay pass cancelled")
				sum.Duration = time.Since(start)
				e.metrics.ReplayPass(sum.Duration)
				return sum
			}
			e.runBatch(ctx, action, table, &sum)
		}
	}

	sum.Duration = time.Since(start)
	e.metrics.ReplayPass(sum.Duration)
	e.logger.Info().
		Int("batches", sum.Batches).
		Int("applied", sum.Applied).
		Int("failed", sum.Failed).
		Int("rejected", sum.Rejected).
		Dur("duration", sum.Duration).
		Msg("replay pass finished")
	return sum
}

func (e *Engine) runBatch(ctx context.Context, action staging.Action, table Table, sum *Summary) {
	log := e.logger.With().Str("entity", table.Entity).Str("action", string(action)).Logger()
	entity, act := table.Entity, string(action)

	batch, err := e.source.Claim(ctx, action, table.Entity)
	if err != nil {
		log.Error().Err(err).Msg("failed to claim staged batch")
		return
	}
	if batch == nil {
		return
	}
	sum.Batches++
	if len(batch.Records) == 0 {
		if err := batch.Commit(); err != nil {
			log.Error().Err(err).Msg("failed to remove empty snapshot")
		}
		return
	}

	res, err := e.Apply(ctx, batch.Records, table, action)
	batch.Reject(res.Rejected)
	sum.Rejected += len(res.Rejected)
	e.metrics.ReplayRecords(entity, act, "rejected", len(res.Rejected))
	e.metrics.ReplayRecords(entity, act, "duplicate", res.Duplicates)

	if err != nil {
		log.Error().Err(err).Int("records", len(batch.Records)).Msg("replay batch failed; keeping it pending")
		if rerr := batch.Release(nil); rerr != nil {
			log.Error().Err(rerr).Msg("failed to release staged batch")
		}
		sum.Failed += len(res.Failed)
		e.metrics.ReplayRecords(entity, act, "failed", len(res.Failed))
		e.metrics.ReplayBatch(entity, act, "released")
		return
	}

	sum.Applied += res.Applied()
	e.metrics.ReplayRecords(entity, act, "applied", res.Applied())

	if len(res.Failed) > 0 {
		if rerr := batch.Release(res.Failed); rerr != nil {
			log.Error().Err(rerr).Msg("failed to release failed records")
		}
		sum.Failed += len(res.Failed)
		e.metrics.ReplayRecords(entity, act, "failed", len(res.Failed))
		e.metrics.ReplayBatch(entity, act, "partial")
		log.Warn().Int("applied", res.Applied()).Int("failed", len(res.Failed)).Msg("replay batch partially applied")
		return
	}

	if err := batch.Commit(); err != nil {
		log.Error().Err(err).Msg("failed to remove replayed snapshot")
	}
	e.metrics.ReplayBatch(entity, act, "committed")
	log.Info().
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("duplicates", res.Duplicates).
		Msg("replay batch committed")
}
