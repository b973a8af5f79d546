package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const lockFile = ".replay.lock"

// ErrLocked is returned when another process holds the staging root lock.
var ErrLocked = errors.New("staging: root is locked by another process")

// rootLock is a reentrant, per-Store handle on the root lock file. The OS
// lock is taken on first acquire and dropped on the last release, so a pass
// holding it can Claim and Recover without deadlocking itself.
type rootLock struct {
	file  *os.File
	holds int
}

// Lock takes the exclusive staging root lock without blocking. A replay pass
// holds it from Recover to the last Commit or Release, so a second process
// sharing the root cannot recover a snapshot that is still in flight.
func (s *Store) Lock() (func(), error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	return s.release, nil
}

func (s *Store) acquire() error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.lock.holds > 0 {
		s.lock.holds++
		return nil
	}

	if err := os.MkdirAll(s.root, dirPerm); err != nil {
		return fmt.Errorf("create staging root: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.root, lockFile), os.O_CREATE|os.O_RDWR, filePerm)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := tryLockFile(f); err != nil {
		f.Close()
		return err
	}
	s.lock = rootLock{file: f, holds: 1}
	return nil
}

func (s *Store) release() {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.lock.holds == 0 {
		return
	}
	s.lock.holds--
	if s.lock.holds > 0 {
		return
	}
	if err := unlockFile(s.lock.file); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unlock staging root")
	}
	s.lock.file.Close()
	s.lock = rootLock{}
}
