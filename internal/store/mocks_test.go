package store

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	SQL  string
	Args []any
}

// MockPool implements PgPool, recording writes and serving canned rows.
type MockPool struct {
	Execs   []execCall
	Queries []execCall
	Rows    [][]any
	ExecErr error
}

func (m *MockPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.Queries = append(m.Queries, execCall{SQL: sql, Args: args})
	return &MockRows{data: m.Rows, idx: -1}, nil
}

func (m *MockPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &MockRows{data: m.Rows, idx: 0}
}

func (m *MockPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if ctx.Err() != nil {
		return pgconn.CommandTag{}, ctx.Err()
	}
	m.Execs = append(m.Execs, execCall{SQL: sql, Args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), m.ExecErr
}

// MockRows copies each canned value into the matching Scan destination.
type MockRows struct {
	data [][]any
	idx  int
}

func (m *MockRows) Close()                                       {}
func (m *MockRows) Err() error                                   { return nil }
func (m *MockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (m *MockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *MockRows) Values() ([]any, error)                       { return m.data[m.idx], nil }
func (m *MockRows) RawValues() [][]byte                          { return nil }
func (m *MockRows) Conn() *pgx.Conn                              { return nil }

func (m *MockRows) Next() bool {
	m.idx++
	return m.idx < len(m.data)
}

func (m *MockRows) Scan(dest ...any) error {
	if m.idx < 0 || m.idx >= len(m.data) {
		return pgx.ErrNoRows
	}
	row := m.data[m.idx]
	if len(row) != len(dest) {
		return fmt.Errorf("scan: %d values into %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		target := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(v))
	}
	return nil
}
