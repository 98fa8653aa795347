package clickhousetesting

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/malbeclabs/curate/curator/pkg/clickhouse"
)

// Statement is a recorded Exec call.
type Statement struct {
	Query string
	Args  []any
}

// FakeConn is an in-memory clickhouse.Connection that records statements and
// batches. Query results come from QueryFunc.
type FakeConn struct {
	mu      sync.Mutex
	execs   []Statement
	batches []*FakeBatch

	ExecErr    func(query string) error
	PrepareErr error
	SendErr    error
	QueryFunc  func(query string, args []any) ([][]any, error)

	Closed bool
}

// FakeClient hands out a single FakeConn.
type FakeClient struct {
	Fake *FakeConn
}

func NewFakeClient() *FakeClient {
	return &FakeClient{Fake: &FakeConn{}}
}

func (c *FakeClient) Conn(ctx context.Context) (clickhouse.Connection, error) {
	return c.Fake, nil
}

func (c *FakeClient) Close() error {
	return c.Fake.Close()
}

// Execs returns the recorded Exec statements in call order.
func (c *FakeConn) Execs() []Statement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.execs)
}

// Batches returns the prepared batches in call order.
func (c *FakeConn) Batches() []*FakeBatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.batches)
}

func (c *FakeConn) Exec(ctx context.Context, query string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ExecErr != nil {
		if err := c.ExecErr(query); err != nil {
			return err
		}
	}
	c.execs = append(c.execs, Statement{Query: query, Args: args})
	return nil
}

func (c *FakeConn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	if c.QueryFunc == nil {
		return &FakeRows{}, nil
	}
	rows, err := c.QueryFunc(query, args)
	if err != nil {
		return nil, err
	}
	return &FakeRows{rows: rows, pos: -1}, nil
}

func (c *FakeConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	if c.PrepareErr != nil {
		return nil, c.PrepareErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b := &FakeBatch{Query: query, sendErr: c.SendErr}
	c.batches = append(c.batches, b)
	return b, nil
}

func (c *FakeConn) Close() error {
	c.Closed = true
	return nil
}

// FakeBatch records appended rows. Methods not overridden here panic.
type FakeBatch struct {
	driver.Batch

	Query    string
	Appended [][]any
	Sent     bool
	Aborted  bool
	sendErr  error
}

func (b *FakeBatch) Append(v ...any) error {
	if b.Sent {
		return errors.New("batch already sent")
	}
	b.Appended = append(b.Appended, slices.Clone(v))
	return nil
}

func (b *FakeBatch) Send() error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.Sent = true
	return nil
}

func (b *FakeBatch) Abort() error {
	b.Aborted = true
	return nil
}

func (b *FakeBatch) Close() error {
	if !b.Sent {
		b.Aborted = true
	}
	return nil
}

func (b *FakeBatch) IsSent() bool { return b.Sent }

// FakeRows iterates over canned rows. Methods not overridden here panic.
type FakeRows struct {
	driver.Rows

	rows [][]any
	pos  int
}

func (r *FakeRows) Next() bool {
	if r.rows == nil {
		return false
	}
	r.pos++
	return r.pos < len(r.rows)
}

func (r *FakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d destinations, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("scan: destination %d is not a pointer", i)
		}
		if row[i] == nil {
			dv.Elem().Set(reflect.Zero(dv.Elem().Type()))
			continue
		}
		v := reflect.ValueOf(row[i])
		if !v.Type().AssignableTo(dv.Elem().Type()) {
			return fmt.Errorf("scan: cannot assign %T to %s", row[i], dv.Elem().Type())
		}
		dv.Elem().Set(v)
	}
	return nil
}

func (r *FakeRows) Err() error   { return nil }
func (r *FakeRows) Close() error { return nil }
