package fulfiller

import (
	"database/sql"
	"io"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	// :memory: is per-connection; keep the pool at one so every query sees
	// the same database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// recordStore records status writes so tests can assert on resolutions
// without a real database.
type recordStore struct {
	mu      sync.Mutex
	updates []recordedUpdate
	err     error
}

type recordedUpdate struct {
	OrderID string
	Update  StatusUpdate
}

func (r *recordStore) UpdateStatus(orderID string, update StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.updates = append(r.updates, recordedUpdate{OrderID: orderID, Update: update})
	return nil
}

func (r *recordStore) Updates() []recordedUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedUpdate, len(r.updates))
	copy(out, r.updates)
	return out
}

// waitSubscribers blocks until the bus has exactly n subscriptions or the
// timeout passes.
func waitSubscribers(t *testing.T, bus *Bus, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if bus.Subscribers() == n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("bus never reached %d subscribers (have %d)", n, bus.Subscribers())
}
