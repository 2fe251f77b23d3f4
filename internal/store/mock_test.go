package store

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queryExpectation struct {
	expect *regexp.Regexp
	args   []any
	values []any
	err    error
}

type rowsExpectation struct {
	expect *regexp.Regexp
	args   []any
	rows   [][]any
	err    error
}

type execExpectation struct {
	expect *regexp.Regexp
	args   []any
	tag    string
	err    error
}

// expectations is the shared queue consumed by mockPool and mockTx.
type expectations struct {
	t       *testing.T
	queries []queryExpectation
	rows    []rowsExpectation
	execs   []execExpectation
}

func (e *expectations) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	e.t.Helper()
	if len(e.queries) == 0 {
		e.t.Fatalf("unexpected queryrow: %s", sql)
	}
	exp := e.queries[0]
	e.queries = e.queries[1:]
	if !exp.expect.MatchString(sql) {
		e.t.Fatalf("queryrow mismatch: %s", sql)
	}
	assertArgs(e.t, exp.args, args)
	return mockRow{values: exp.values, err: exp.err}
}

func (e *expectations) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	e.t.Helper()
	if len(e.rows) == 0 {
		e.t.Fatalf("unexpected query: %s", sql)
	}
	exp := e.rows[0]
	e.rows = e.rows[1:]
	if !exp.expect.MatchString(sql) {
		e.t.Fatalf("query mismatch: %s", sql)
	}
	assertArgs(e.t, exp.args, args)
	if exp.err != nil {
		return nil, exp.err
	}
	return &mockRows{rows: exp.rows, idx: -1}, nil
}

func (e *expectations) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	e.t.Helper()
	if len(e.execs) == 0 {
		e.t.Fatalf("unexpected exec: %s", sql)
	}
	exp := e.execs[0]
	e.execs = e.execs[1:]
	if !exp.expect.MatchString(sql) {
		e.t.Fatalf("exec mismatch: %s", sql)
	}
	assertArgs(e.t, exp.args, arguments)
	tag := exp.tag
	if tag == "" {
		tag = "MOCK"
	}
	return pgconn.NewCommandTag(tag), exp.err
}

func (e *expectations) assertDone() {
	e.t.Helper()
	if len(e.queries) != 0 {
		e.t.Fatalf("pending queries: %d", len(e.queries))
	}
	if len(e.rows) != 0 {
		e.t.Fatalf("pending row queries: %d", len(e.rows))
	}
	if len(e.execs) != 0 {
		e.t.Fatalf("pending execs: %d", len(e.execs))
	}
}

type mockPool struct {
	expectations
	txs   []*mockTx
	txIdx int
}

func (m *mockPool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	if m.txIdx >= len(m.txs) {
		m.t.Fatalf("unexpected begin tx (no more transactions)")
	}
	tx := m.txs[m.txIdx]
	m.txIdx++
	tx.t = m.t
	tx.started = true
	return tx, nil
}

func (m *mockPool) Ping(ctx context.Context) error { return nil }

func (m *mockPool) assertDone() {
	m.t.Helper()
	m.expectations.assertDone()
	if m.txIdx != len(m.txs) {
		m.t.Fatalf("expected %d transactions, got %d", len(m.txs), m.txIdx)
	}
}

type mockTx struct {
	expectations
	started   bool
	committed bool
	rolled    bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, fmt.Errorf("unexpected nested begin")
}

func (m *mockTx) Commit(ctx context.Context) error {
	if m.rolled {
		return pgx.ErrTxClosed
	}
	m.committed = true
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	if m.committed {
		return pgx.ErrTxClosed
	}
	m.rolled = true
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, fmt.Errorf("unexpected CopyFrom")
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return emptyBatchResults{}
}

func (m *mockTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, fmt.Errorf("unexpected Prepare")
}

func (m *mockTx) Conn() *pgx.Conn { return nil }

func (m *mockTx) assertDone() {
	m.t.Helper()
	m.expectations.assertDone()
	if !m.committed && !m.rolled {
		m.t.Fatalf("transaction not finished")
	}
}

type mockRow struct {
	values []any
	err    error
}

func (m mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	return scanValues(m.values, dest)
}

type mockRows struct {
	rows [][]any
	idx  int
}

func (m *mockRows) Close()                                       {}
func (m *mockRows) Err() error                                   { return nil }
func (m *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) RawValues() [][]byte                          { return nil }
func (m *mockRows) Conn() *pgx.Conn                              { return nil }

func (m *mockRows) Next() bool {
	m.idx++
	return m.idx < len(m.rows)
}

func (m *mockRows) Scan(dest ...any) error {
	return scanValues(m.rows[m.idx], dest)
}

func (m *mockRows) Values() ([]any, error) {
	return m.rows[m.idx], nil
}

// scanValues copies values into Scan destinations. A non-pointer value is
// accepted for a pointer-to-pointer destination, and nil zeroes the target.
func scanValues(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("unexpected dest count: %d (have %d values)", len(dest), len(values))
	}
	for i, v := range values {
		target := reflect.ValueOf(dest[i])
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("destination %d is not a pointer", i)
		}
		elem := target.Elem()
		if v == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		rv := reflect.ValueOf(v)
		switch {
		case rv.Type().AssignableTo(elem.Type()):
			elem.Set(rv)
		case elem.Kind() == reflect.Pointer && rv.Type().AssignableTo(elem.Type().Elem()):
			ptr := reflect.New(elem.Type().Elem())
			ptr.Elem().Set(rv)
			elem.Set(ptr)
		default:
			return fmt.Errorf("cannot scan %T into %s", v, elem.Type())
		}
	}
	return nil
}

func assertArgs(t *testing.T, expected, actual []any) {
	t.Helper()
	if len(expected) == 0 {
		return
	}
	if len(expected) != len(actual) {
		t.Fatalf("argument length mismatch: expected %d got %d", len(expected), len(actual))
	}
	for i, exp := range expected {
		if exp == nil {
			continue
		}
		if !reflect.DeepEqual(exp, actual[i]) {
			t.Fatalf("argument mismatch at %d: expected %v got %v", i, exp, actual[i])
		}
	}
}

type emptyBatchResults struct{}

func (emptyBatchResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, fmt.Errorf("unexpected batch exec")
}
func (emptyBatchResults) Query() (pgx.Rows, error) { return nil, fmt.Errorf("unexpected batch query") }
func (emptyBatchResults) QueryRow() pgx.Row {
	return mockRow{err: fmt.Errorf("unexpected batch queryrow")}
}
func (emptyBatchResults) Close() error { return nil }
