package repositories

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeLedgerStore is an in-memory stand-in for the iap_ledger and
// user_entitlements tables. It understands only the statements the ledger
// repository issues.
type fakeLedgerStore struct {
	mu       sync.Mutex
	ledger   map[string]int64
	users    map[int64]bool
	expires  map[int64]time.Time
	balances map[int64]map[string]int64
	updates  []string
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{
		ledger:   map[string]int64{},
		users:    map[int64]bool{},
		expires:  map[int64]time.Time{},
		balances: map[int64]map[string]int64{},
	}
}

var (
	fakeDriverOnce sync.Once
	fakeStoresMu   sync.Mutex
	fakeStores     = map[string]*fakeLedgerStore{}
)

type fakeDriver struct{}

func (fakeDriver) Open(name string) (driver.Conn, error) {
	fakeStoresMu.Lock()
	defer fakeStoresMu.Unlock()
	s, ok := fakeStores[name]
	if !ok {
		return nil, fmt.Errorf("fake store %q not registered", name)
	}
	return &fakeConn{store: s}, nil
}

// openFakeLedgerDB returns a *sql.DB backed by a fresh fakeLedgerStore.
func openFakeLedgerDB(t *testing.T) (*sql.DB, *fakeLedgerStore) {
	t.Helper()
	fakeDriverOnce.Do(func() { sql.Register("fakeledger", fakeDriver{}) })

	store := newFakeLedgerStore()
	fakeStoresMu.Lock()
	fakeStores[t.Name()] = store
	fakeStoresMu.Unlock()

	db, err := sql.Open("fakeledger", t.Name())
	if err != nil {
		t.Fatalf("open fake db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		fakeStoresMu.Lock()
		delete(fakeStores, t.Name())
		fakeStoresMu.Unlock()
	})
	return db, store
}

type fakeConn struct {
	store *fakeLedgerStore
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return &fakeStmt{store: c.store, query: strings.TrimSpace(query)}, nil
}

func (c *fakeConn) Close() error              { return nil }
func (c *fakeConn) Begin() (driver.Tx, error) { return fakeTx{}, nil }

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type fakeStmt struct {
	store *fakeLedgerStore
	query string
}

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	st := s.store
	st.mu.Lock()
	defer st.mu.Unlock()

	q := s.query
	switch {
	case strings.HasPrefix(q, "CREATE TABLE"):
		return driver.RowsAffected(0), nil
	case strings.Contains(q, "INTO iap_ledger"):
		tx := args[0].(string)
		if _, ok := st.ledger[tx]; ok {
			return driver.RowsAffected(0), nil
		}
		st.ledger[tx] = args[1].(int64)
		return driver.RowsAffected(1), nil
	case strings.Contains(q, "INTO user_entitlements"):
		user := args[0].(int64)
		if st.users[user] {
			return driver.RowsAffected(0), nil
		}
		st.users[user] = true
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(q, "UPDATE user_entitlements SET is_premium = TRUE"):
		st.updates = append(st.updates, q)
		st.expires[args[2].(int64)] = args[0].(time.Time)
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(q, "UPDATE user_entitlements SET"):
		st.updates = append(st.updates, q)
		column := strings.Fields(q)[3]
		user := args[2].(int64)
		if st.balances[user] == nil {
			st.balances[user] = map[string]int64{}
		}
		st.balances[user][column] += args[0].(int64)
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("fake db: unexpected exec %q", q)
}

func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	st := s.store
	st.mu.Lock()
	defer st.mu.Unlock()

	if strings.HasPrefix(s.query, "SELECT premium_expires_at FROM user_entitlements") {
		user := args[0].(int64)
		var v driver.Value
		if exp, ok := st.expires[user]; ok {
			v = exp
		}
		return &fakeRows{cols: []string{"premium_expires_at"}, rows: [][]driver.Value{{v}}}, nil
	}
	return nil, fmt.Errorf("fake db: unexpected query %q", s.query)
}

type fakeRows struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

func (st *fakeLedgerStore) updateCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.updates)
}

func (st *fakeLedgerStore) balance(user int64, column string) int64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.balances[user][column]
}

func (st *fakeLedgerStore) expiry(user int64) (time.Time, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	t, ok := st.expires[user]
	return t, ok
}

func (st *fakeLedgerStore) setExpiry(user int64, t time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.users[user] = true
	st.expires[user] = t
}
