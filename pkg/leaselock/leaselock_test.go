package leaselock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	key string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) == 1 {
		if p, ok := dest[0].(*string); ok {
			*p = r.key
		}
	}
	return nil
}

// fakeDB is a querier whose lock table is a map. Expiry is not modeled;
// tests free keys explicitly.
type fakeDB struct {
	mu    sync.Mutex
	owner map[string]string
}

func (db *fakeDB) setOwner(key, token string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.owner == nil {
		db.owner = make(map[string]string)
	}
	db.owner[key] = token
}

func (db *fakeDB) ownerOf(key string) string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.owner[key]
}

func (db *fakeDB) free(key string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.owner, key)
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if strings.Contains(sql, "DELETE FROM app_locks") && len(args) == 2 {
		key, _ := args[0].(string)
		token, _ := args[1].(string)
		if db.owner[key] == token {
			delete(db.owner, key)
		}
	}
	return pgconn.CommandTag{}, nil
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	key, _ := args[0].(string)
	token, _ := args[1].(string)
	switch {
	case strings.Contains(sql, "INSERT INTO app_locks"):
		if db.owner == nil {
			db.owner = make(map[string]string)
		}
		if current, held := db.owner[key]; held && current != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		db.owner[key] = token
		return fakeRow{key: key}
	case strings.Contains(sql, "UPDATE app_locks"):
		if db.owner[key] != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{key: key}
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func TestAcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	db := &fakeDB{}
	c := &Client{db: db}

	lease, err := c.Acquire(ctx, "project:p1", Options{TokenPrefix: "ingest/p1/"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(lease.Token, "ingest/p1/") {
		t.Errorf("token = %q, want ingest/p1/ prefix", lease.Token)
	}
	if got := db.ownerOf("project:p1"); got != lease.Token {
		t.Errorf("row owner = %q, want the lease token", got)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatal(err)
	}
	if got := db.ownerOf("project:p1"); got != "" {
		t.Errorf("row still owned by %q after release", got)
	}
	select {
	case <-lease.Context.Done():
	case <-time.After(time.Second):
		t.Error("lease context not cancelled by release")
	}
	// Release is idempotent.
	if err := lease.Release(ctx); err != nil {
		t.Errorf("second release failed: %v", err)
	}
}

func TestAcquireBusyWithoutWait(t *testing.T) {
	db := &fakeDB{}
	db.setOwner("project:p1", "someone-else")
	c := &Client{db: db}

	_, err := c.Acquire(context.Background(), "project:p1", Options{})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("Acquire error = %v, want ErrBusy", err)
	}
}

func TestAcquireWaitsForFreeKey(t *testing.T) {
	db := &fakeDB{}
	db.setOwner("project:p1", "someone-else")
	c := &Client{db: db}

	go func() {
		time.Sleep(20 * time.Millisecond)
		db.free("project:p1")
	}()

	lease, err := c.Acquire(context.Background(), "project:p1", Options{
		Wait:         true,
		WaitInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Release(context.Background())
	if got := db.ownerOf("project:p1"); got != lease.Token {
		t.Errorf("row owner = %q after waiting acquire", got)
	}
}

func TestWithLeaseRunsAndReleases(t *testing.T) {
	db := &fakeDB{}
	c := &Client{db: db}

	ran := false
	err := c.WithLease(context.Background(), "project:p1", Options{}, func(ctx context.Context) error {
		ran = true
		if ctx.Err() != nil {
			t.Error("lease context already cancelled inside fn")
		}
		if db.ownerOf("project:p1") == "" {
			t.Error("lease row missing while fn runs")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("fn never ran")
	}
	if got := db.ownerOf("project:p1"); got != "" {
		t.Errorf("row still owned by %q after WithLease", got)
	}
}

func TestWithLeaseReleasesOnError(t *testing.T) {
	db := &fakeDB{}
	c := &Client{db: db}

	boom := errors.New("boom")
	err := c.WithLease(context.Background(), "project:p1", Options{}, func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithLease error = %v, want fn's error", err)
	}
	if got := db.ownerOf("project:p1"); got != "" {
		t.Errorf("row still owned by %q after failed fn", got)
	}
}

func TestLostLeaseCancelsContext(t *testing.T) {
	db := &fakeDB{}
	c := &Client{db: db}

	lease, err := c.Acquire(context.Background(), "project:p1", Options{
		TTL:        20 * time.Millisecond,
		RenewEvery: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer lease.Release(context.Background())

	// Another holder steals the row; the next renewal must notice.
	db.setOwner("project:p1", "thief")

	select {
	case <-lease.Context.Done():
		if cause := context.Cause(lease.Context); !errors.Is(cause, ErrLost) {
			t.Errorf("cancellation cause = %v, want ErrLost", cause)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lease context not cancelled after losing the row")
	}
}
