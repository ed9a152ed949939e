package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// recorder is a database/sql driver that records executed statements.
type recorder struct {
	mu       sync.Mutex
	execs    []string
	affected int64
	fail     error
	pingErr  error
}

func (r *recorder) Open(string) (driver.Conn, error) { return &recorderConn{r: r}, nil }

func (r *recorder) statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.execs...)
}

type recorderConn struct{ r *recorder }

func (c *recorderConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (c *recorderConn) Close() error              { return nil }
func (c *recorderConn) Begin() (driver.Tx, error) { return nil, errors.New("tx not supported") }

func (c *recorderConn) Ping(context.Context) error { return c.r.pingErr }

func (c *recorderConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	if c.r.fail != nil {
		return nil, c.r.fail
	}
	c.r.execs = append(c.r.execs, query)
	return driver.RowsAffected(c.r.affected), nil
}

var (
	registerOnce sync.Once
	current      = &recorder{}
)

func openRecorder(t *testing.T, r *recorder) *DB {
	t.Helper()
	registerOnce.Do(func() { sql.Register("recorder", &proxy{}) })
	current = r
	db, err := Open(context.Background(), "recorder", "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// proxy forwards to the recorder of the running test; sql.Register only
// accepts a driver name once per process.
type proxy struct{}

func (proxy) Open(name string) (driver.Conn, error) { return current.Open(name) }

func TestExecSQL(t *testing.T) {
	r := &recorder{affected: 3}
	db := openRecorder(t, r)

	n, err := db.ExecSQL(context.Background(), "DELETE FROM sales")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 affected rows, got %d", n)
	}
	if got := r.statements(); len(got) != 1 || got[0] != "DELETE FROM sales" {
		t.Errorf("unexpected statements %v", got)
	}
}

func TestExecSQL_Error(t *testing.T) {
	db := openRecorder(t, &recorder{fail: errors.New("relation does not exist")})

	_, err := db.ExecSQL(context.Background(), "DELETE FROM nothing")
	if err == nil || !strings.Contains(err.Error(), "relation does not exist") {
		t.Errorf("expected the driver error, got %v", err)
	}
}

func TestExecSQLFile(t *testing.T) {
	r := &recorder{}
	db := openRecorder(t, r)

	path := filepath.Join(t.TempDir(), "seed.sql")
	content := "INSERT INTO categories (name) VALUES ('Roses');\nINSERT INTO categories (name) VALUES ('Tulips');"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := db.ExecSQLFile(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if got := r.statements(); len(got) != 1 || got[0] != content {
		t.Errorf("expected the file as one batch, got %v", got)
	}

	if err := db.ExecSQLFile(context.Background(), filepath.Join(t.TempDir(), "missing.sql")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestOpen_PingFailure(t *testing.T) {
	registerOnce.Do(func() { sql.Register("recorder", &proxy{}) })
	current = &recorder{pingErr: errors.New("connection refused")}

	if _, err := Open(context.Background(), "recorder", ""); err == nil {
		t.Fatal("expected a connection error")
	}
}

func TestAbbreviate(t *testing.T) {
	if got := abbreviate("SELECT\n  1"); got != "SELECT 1" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("x", 100)
	if got := abbreviate(long); len(got) != 80 || !strings.HasSuffix(got, "...") {
		t.Errorf("got %q", got)
	}
}
