package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var errTxClosed = errors.New("tx is closed")

// fakeDB is an in-memory Database with copy-on-begin transactions and
// savepoints.
type fakeDB struct {
	mu        sync.Mutex
	committed map[string][]map[string]any
	ops       []string

	beginErr   error
	failInsert func(table string, row map[string]any) error
	failUpdate func(table string, set map[string]any) error
}

func newFakeDB() *fakeDB {
	return &fakeDB{committed: map[string][]map[string]any{}}
}

func (d *fakeDB) seed(table string, row map[string]any) {
	d.committed[table] = append(d.committed[table], row)
}

func (d *fakeDB) rows(table string) []map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.committed[table]
}

func (d *fakeDB) Begin(ctx context.Context) (Session, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return &fakeSession{db: d, state: cloneState(d.committed)}, nil
}

type fakeSession struct {
	db     *fakeDB
	parent *fakeSession
	state  map[string][]map[string]any
	closed bool
}

func cloneState(in map[string][]map[string]any) map[string][]map[string]any {
	out := make(map[string][]map[string]any, len(in))
	for t, rows := range in {
		cp := make([]map[string]any, len(rows))
		for i, r := range rows {
			row := make(map[string]any, len(r))
			for k, v := range r {
				row[k] = v
			}
			cp[i] = row
		}
		out[t] = cp
	}
	return out
}

func (s *fakeSession) Begin(ctx context.Context) (Session, error) {
	if s.closed {
		return nil, errTxClosed
	}
	return &fakeSession{db: s.db, parent: s, state: cloneState(s.state)}, nil
}

func (s *fakeSession) Commit(ctx context.Context) error {
	if s.closed {
		return errTxClosed
	}
	s.closed = true
	if s.parent != nil {
		s.parent.state = s.state
		return nil
	}
	s.db.mu.Lock()
	s.db.committed = s.state
	s.db.mu.Unlock()
	return nil
}

func (s *fakeSession) Rollback(ctx context.Context) error {
	if s.closed {
		return errTxClosed
	}
	s.closed = true
	return nil
}

func (s *fakeSession) Insert(ctx context.Context, t Table, row map[string]any) error {
	if s.db.failInsert != nil {
		if err := s.db.failInsert(t.Name, row); err != nil {
			return err
		}
	}
	cp := make(map[string]any, len(row))
	for k, v := range row {
		cp[k] = v
	}
	s.state[t.Name] = append(s.state[t.Name], cp)
	s.db.ops = append(s.db.ops, fmt.Sprintf("insert %s", t.Name))
	return nil
}

func (s *fakeSession) Update(ctx context.Context, t Table, key any, set map[string]any) (bool, error) {
	if s.db.failUpdate != nil {
		if err := s.db.failUpdate(t.Name, set); err != nil {
			return false, err
		}
	}
	for _, row := range s.state[t.Name] {
		if row[t.Key] == key {
			for k, v := range set {
				row[k] = v
			}
			s.db.ops = append(s.db.ops, fmt.Sprintf("update %s", t.Name))
			return true, nil
		}
	}
	return false, nil
}
