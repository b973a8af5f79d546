package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Batch is an in-flight snapshot of one (action, entity) partition. The
// snapshot lives under <root>/.inflight and is invisible to new Saves, which
// land in a fresh pending subtree. Exactly one of Commit or Release must be
// called; it also drops the root lock the Batch holds.
type Batch struct {
	Action  Action
	Entity  string
	Records []Record

	store    *Store
	dir      string
	skipped  []string
	rejected []string
	done     bool
}

func (b *Batch) finish() {
	b.done = true
	b.store.release()
}

// Claim moves the pending partition for (action, entity) into a private
// snapshot and loads it. It returns nil, nil when nothing is pending and
// ErrLocked when another process holds the staging root.
func (s *Store) Claim(ctx context.Context, action Action, entity string) (*Batch, error) {
	if err := validate(entity, action); err != nil {
		return nil, err
	}
	if err := s.acquire(); err != nil {
		return nil, err
	}
	b, err := s.claim(ctx, action, entity)
	if b == nil {
		s.release()
	}
	return b, err
}

func (s *Store) claim(ctx context.Context, action Action, entity string) (*Batch, error) {
	snapshot := filepath.Join(s.root, inflightDir, string(action), entity, uuid.NewString())
	if err := os.MkdirAll(filepath.Dir(snapshot), dirPerm); err != nil {
		return nil, fmt.Errorf("create inflight dir: %w", err)
	}

	s.mu.Lock()
	err := os.Rename(s.pendingDir(action, entity), snapshot)
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim %s/%s: %w", action, entity, err)
	}

	recs, skipped, err := s.loadDir(ctx, snapshot, action, entity)
	if err != nil {
		b := &Batch{Action: action, Entity: entity, store: s, dir: snapshot}
		if rerr := b.restoreAll(); rerr != nil {
			s.logger.Error().Err(rerr).Str("snapshot", snapshot).Msg("failed to restore snapshot after load error")
		}
		return nil, err
	}

	return &Batch{
		Action:  action,
		Entity:  entity,
		Records: recs,
		store:   s,
		dir:     snapshot,
		skipped: skipped,
	}, nil
}

// Reject marks records that can never be applied. Commit and Release both
// move them to <root>/.quarantine instead of deleting or retrying them.
func (b *Batch) Reject(recs []Record) {
	for _, r := range recs {
		b.rejected = append(b.rejected, r.rel)
	}
}

func (b *Batch) quarantine(rels []string) {
	for _, rel := range rels {
		dst := filepath.Join(b.store.root, quarantineDir, string(b.Action), b.Entity, rel)
		if err := moveFile(filepath.Join(b.dir, rel), dst); err != nil {
			b.store.logger.Error().Err(err).Str("file", rel).Msg("failed to quarantine staged file")
		}
	}
}

// Commit deletes the snapshot. Files that could not be parsed, and records
// passed to Reject, are moved to <root>/.quarantine for inspection instead
// of being dropped.
func (b *Batch) Commit() error {
	if b.done {
		return nil
	}
	defer b.finish()

	b.quarantine(b.skipped)
	b.quarantine(b.rejected)
	if err := os.RemoveAll(b.dir); err != nil {
		return fmt.Errorf("remove snapshot %s: %w", b.dir, err)
	}
	return nil
}

// Release moves keep back into the pending partition and deletes the rest of
// the snapshot. A nil keep releases every record. Unparseable files always
// go back to pending.
func (b *Batch) Release(keep []Record) error {
	if b.done {
		return nil
	}
	defer b.finish()

	b.quarantine(b.rejected)
	if keep == nil {
		return b.restoreAll()
	}

	var errs []error
	pending := b.store.pendingDir(b.Action, b.Entity)
	rels := make([]string, 0, len(keep)+len(b.skipped))
	for _, r := range keep {
		rels = append(rels, r.rel)
	}
	rels = append(rels, b.skipped...)

	b.store.mu.RLock()
	for _, rel := range rels {
		if err := moveFile(filepath.Join(b.dir, rel), filepath.Join(pending, rel)); err != nil {
			errs = append(errs, err)
		}
	}
	b.store.mu.RUnlock()

	if len(errs) > 0 {
		// Leave the snapshot so Recover can retry on the next pass.
		return fmt.Errorf("release %s/%s: %w", b.Action, b.Entity, errors.Join(errs...))
	}
	if err := os.RemoveAll(b.dir); err != nil {
		return fmt.Errorf("remove snapshot %s: %w", b.dir, err)
	}
	return nil
}

// restoreAll moves every file of the snapshot back to pending.
func (b *Batch) restoreAll() error {
	b.store.mu.RLock()
	n, err := restoreTree(b.dir, b.store.pendingDir(b.Action, b.Entity))
	b.store.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("release %s/%s after %d files: %w", b.Action, b.Entity, n, err)
	}
	return os.RemoveAll(b.dir)
}

// Recover returns every leftover in-flight snapshot to the pending tree. It
// runs before each replay pass so a crash mid-pass never loses staged files.
// Snapshots are only touched under the staging root lock: while another
// process holds it, Recover returns ErrLocked and moves nothing.
func (s *Store) Recover(ctx context.Context) (int, error) {
	if err := s.acquire(); err != nil {
		return 0, err
	}
	defer s.release()

	base := filepath.Join(s.root, inflightDir)
	restored := 0

	for _, action := range Actions {
		entities, err := os.ReadDir(filepath.Join(base, string(action)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return restored, fmt.Errorf("list inflight %s: %w", action, err)
		}
		for _, e := range entities {
			if !e.IsDir() || !entityPattern.MatchString(e.Name()) {
				continue
			}
			entityDir := filepath.Join(base, string(action), e.Name())
			snapshots, err := os.ReadDir(entityDir)
			if err != nil {
				return restored, fmt.Errorf("list snapshots %s: %w", entityDir, err)
			}
			for _, snap := range snapshots {
				if err := ctx.Err(); err != nil {
					return restored, err
				}
				dir := filepath.Join(entityDir, snap.Name())
				s.mu.RLock()
				n, err := restoreTree(dir, s.pendingDir(action, e.Name()))
				s.mu.RUnlock()
				restored += n
				if err != nil {
					return restored, fmt.Errorf("recover %s: %w", dir, err)
				}
				if err := os.RemoveAll(dir); err != nil {
					return restored, fmt.Errorf("remove snapshot %s: %w", dir, err)
				}
			}
		}
	}

	if restored > 0 {
		s.logger.Warn().Int("files", restored).Msg("recovered staged files from interrupted replay")
	}
	return restored, nil
}

func restoreTree(src, dst string) (int, error) {
	n := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if err := moveFile(path, filepath.Join(dst, rel)); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return err
	}
	return os.Rename(src, dst)
}
