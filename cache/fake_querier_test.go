package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// fakeQuerier emulates the three statements PostgresCache issues
type fakeQuerier struct {
	mu            sync.Mutex
	rows          map[string]fakeRowData
	schemaCreated bool
}

type fakeRowData struct {
	entry       []byte
	deleteAfter pgtype.Timestamptz
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{rows: make(map[string]fakeRowData)}
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stmt := strings.TrimSpace(sql)
	switch {
	case strings.HasPrefix(stmt, "CREATE TABLE"):
		f.schemaCreated = true
		return pgconn.NewCommandTag("CREATE TABLE"), nil
	case strings.HasPrefix(stmt, "INSERT INTO esi_cache"):
		f.rows[args[0].(string)] = fakeRowData{
			entry:       []byte(args[1].(string)),
			deleteAfter: args[2].(pgtype.Timestamptz),
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case strings.HasPrefix(stmt, "DELETE FROM esi_cache"):
		delete(f.rows, args[0].(string))
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("unexpected statement: %s", stmt)
}

func (f *fakeQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.rows[args[0].(string)]
	return fakeRow{data: data, found: ok}
}

type fakeRow struct {
	data  fakeRowData
	found bool
}

func (r fakeRow) Scan(dest ...any) error {
	if !r.found {
		return pgx.ErrNoRows
	}
	*dest[0].(*[]byte) = append([]byte(nil), r.data.entry...)
	*dest[1].(*pgtype.Timestamptz) = r.data.deleteAfter
	return nil
}
