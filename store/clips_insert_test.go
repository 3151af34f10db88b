package store_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/clipherald/store"
)

// shortWriteDriver mimics a batch insert losing a row to a concurrent writer:
// the in-transaction existing-ids check sees nothing, then the insert reports
// one row fewer than the batch size, as happens when ON CONFLICT DO NOTHING
// absorbs a duplicate written between the two statements.
type shortWriteDriver struct {
	committed  bool
	rolledBack bool
}

func (d *shortWriteDriver) Open(string) (driver.Conn, error) {
	return &shortWriteConn{d: d}, nil
}

type shortWriteConn struct{ d *shortWriteDriver }

func (c *shortWriteConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements not supported")
}

func (c *shortWriteConn) Close() error { return nil }

func (c *shortWriteConn) Begin() (driver.Tx, error) {
	return &shortWriteTx{d: c.d}, nil
}

func (c *shortWriteConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.HasPrefix(query, "SELECT") {
		return nil, errors.New("unexpected query: " + query)
	}
	return &noRows{}, nil
}

func (c *shortWriteConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if !strings.HasPrefix(query, "INSERT") {
		return nil, errors.New("unexpected exec: " + query)
	}
	// The clips insert binds 13 columns per row; report one row short.
	return driver.RowsAffected(int64(len(args)/13) - 1), nil
}

type noRows struct{}

func (*noRows) Columns() []string { return []string{"clip_id"} }

func (*noRows) Close() error { return nil }

func (*noRows) Next([]driver.Value) error { return io.EOF }

type shortWriteTx struct{ d *shortWriteDriver }

func (t *shortWriteTx) Commit() error {
	t.d.committed = true
	return nil
}

func (t *shortWriteTx) Rollback() error {
	t.d.rolledBack = true
	return nil
}

var shortWrite = &shortWriteDriver{}

func init() {
	sql.Register("clips-short-write", shortWrite)
}

func TestStore_AddNewClips_ShortInsertRollsBack(t *testing.T) {
	db, err := sql.Open("clips-short-write", "")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := store.New(db)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	added, err := s.AddNewClips(context.Background(), []store.Clip{
		testClip("ClipA", base),
		testClip("ClipB", base.Add(time.Minute)),
	})
	if err != nil {
		t.Fatalf("AddNewClips() error = %v", err)
	}
	if added != nil {
		t.Errorf("AddNewClips() = %v, want nil after a short insert", added)
	}
	if shortWrite.committed {
		t.Error("transaction was committed despite the short insert")
	}
	if !shortWrite.rolledBack {
		t.Error("transaction was not rolled back after the short insert")
	}
}
