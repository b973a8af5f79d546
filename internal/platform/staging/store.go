package staging

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rhp/rhp/internal/platform/telemetry"
)

const (
	inflightDir   = ".inflight"
	quarantineDir = ".quarantine"
	tmpDir        = ".tmp"
	trashDir      = ".trash"

	dirPerm  = 0o755
	filePerm = 0o644

	// renameAttempts bounds the retry when another process claims the
	// pending subtree between MkdirAll and the final rename.
	renameAttempts = 3
)

// Store owns one staging root directory.
type Store struct {
	root    string
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	// mu orders in-process Saves (shared) against Claim and Clean
	// (exclusive) so a file is never renamed into a subtree that is moving.
	mu sync.RWMutex

	lockMu sync.Mutex
	lock   rootLock
}

func NewStore(root string, logger zerolog.Logger, metrics *telemetry.Metrics) *Store {
	return &Store{
		root:    filepath.Clean(root),
		logger:  logger.With().Str("component", "staging").Logger(),
		metrics: metrics,
		now:     time.Now,
	}
}

// Root returns the staging root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) pendingDir(action Action, entity string) string {
	return filepath.Join(s.root, string(action), entity)
}

// Save writes payload as a new staged file. Invalid action or entity is
// returned before anything touches the filesystem. I/O failures are logged
// and counted but not returned: the caller is already handling a failed
// database write and has nothing better to do with a second error.
func (s *Store) Save(ctx context.Context, entity string, action Action, payload map[string]any) error {
	if err := validate(entity, action); err != nil {
		return err
	}

	path, err := s.write(entity, action, payload)
	if err != nil {
		s.metrics.StageWriteFailed(entity, string(action))
		s.logger.Error().Err(err).
			Str("entity", entity).
			Str("action", string(action)).
			Msg("failed to stage payload; write is lost")
		return nil
	}

	s.metrics.StagedWrite(entity, string(action))
	s.logger.Info().
		Str("entity", entity).
		Str("action", string(action)).
		Str("path", path).
		Msg("payload staged")
	return nil
}

func (s *Store) write(entity string, action Action, payload map[string]any) (string, error) {
	data, err := encodePayload(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	now := s.now()
	seq, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate file suffix: %w", err)
	}
	rel := filepath.Join(
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		fmt.Sprintf("%02d", now.Day()),
		fmt.Sprintf("%d-%s.json", now.Unix(), seq.String()),
	)

	tmp, err := s.writeTemp(data)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	final := filepath.Join(s.pendingDir(action, entity), rel)
	for attempt := 1; ; attempt++ {
		if err = os.MkdirAll(filepath.Dir(final), dirPerm); err == nil {
			if err = os.Rename(tmp, final); err == nil {
				return final, nil
			}
		}
		if !errors.Is(err, fs.ErrNotExist) || attempt == renameAttempts {
			_ = os.Remove(tmp)
			return "", fmt.Errorf("move staged file into place: %w", err)
		}
	}
}

// writeTemp writes data outside the pending tree so a partially written file
// is never visible to readers.
func (s *Store) writeTemp(data []byte) (string, error) {
	dir := filepath.Join(s.root, tmpDir)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "stage-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(name, filePerm); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("chmod temp file: %w", err)
	}
	return name, nil
}

// Load returns every pending record for (action, entity) in timestamp order.
// An absent partition yields nil, nil. Unreadable files are logged and
// skipped.
func (s *Store) Load(ctx context.Context, action Action, entity string) ([]Record, error) {
	if err := validate(entity, action); err != nil {
		return nil, err
	}
	recs, _, err := s.loadDir(ctx, s.pendingDir(action, entity), action, entity)
	return recs, err
}

// loadDir reads a partition directory and returns the parsed records plus the
// relative paths of files it had to skip.
func (s *Store) loadDir(ctx context.Context, dir string, action Action, entity string) ([]Record, []string, error) {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	} else if err != nil {
		return nil, nil, fmt.Errorf("stat %s: %w", dir, err)
	}

	var (
		recs    []Record
		skipped []string
	)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rec, err := readRecord(path, rel)
		if err != nil {
			s.metrics.StageReadError(entity, string(action))
			s.logger.Error().Err(err).Str("path", path).Msg("skipping unreadable staged file")
			skipped = append(skipped, rel)
			return nil
		}
		rec.Action = action
		rec.Entity = entity
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	sortRecords(recs)
	return recs, skipped, nil
}

func readRecord(path, rel string) (Record, error) {
	year, month, day, ts, seq, err := parseRel(rel)
	if err != nil {
		return Record{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	payload, err := decodePayload(b)
	if err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", rel, err)
	}
	return Record{
		Year:      year,
		Month:     month,
		Day:       day,
		Timestamp: ts,
		Seq:       seq,
		Path:      path,
		Payload:   payload,
		rel:       rel,
	}, nil
}

// Clean removes the whole pending partition for (action, entity). The
// subtree is first renamed aside so a failure never leaves it half deleted.
func (s *Store) Clean(ctx context.Context, action Action, entity string) error {
	if err := validate(entity, action); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	trash := filepath.Join(s.root, trashDir, uuid.NewString())
	if err := os.MkdirAll(filepath.Dir(trash), dirPerm); err != nil {
		return fmt.Errorf("create trash dir: %w", err)
	}
	if err := os.Rename(s.pendingDir(action, entity), trash); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("detach %s/%s: %w", action, entity, err)
	}
	if err := os.RemoveAll(trash); err != nil {
		s.logger.Warn().Err(err).Str("path", trash).Msg("failed to remove detached staging partition")
	}
	return nil
}

// Pending counts staged files per (action, entity).
type Pending struct {
	Action Action `json:"action"`
	Entity string `json:"entity"`
	Files  int    `json:"files"`
}

// Pending lists every non-empty pending partition, ordered by action then
// entity.
func (s *Store) Pending(ctx context.Context) ([]Pending, error) {
	var out []Pending
	for _, action := range Actions {
		entries, err := os.ReadDir(filepath.Join(s.root, string(action)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", action, err)
		}
		for _, e := range entries {
			if !e.IsDir() || !entityPattern.MatchString(e.Name()) {
				continue
			}
			n, err := countJSON(ctx, filepath.Join(s.root, string(action), e.Name()))
			if err != nil {
				return nil, err
			}
			if n > 0 {
				out = append(out, Pending{Action: action, Entity: e.Name(), Files: n})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Action != out[j].Action {
			return out[i].Action < out[j].Action
		}
		return out[i].Entity < out[j].Entity
	})
	return out, nil
}

func countJSON(ctx context.Context, dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", dir, err)
	}
	return n, nil
}
