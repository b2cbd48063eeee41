package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/nickcecere/memvec/internal/backend"
)

// fakeConn is an in-memory backend.Conn that records calls and can be told
// to fail specific methods.
type fakeConn struct {
	mu      sync.Mutex
	order   []string
	rows    map[string]backend.Row
	calls   []string
	fail    map[string]error
	matches []backend.Match
	closed  bool

	// deleteFailures makes the next n Delete calls fail.
	deleteFailures int

	// procedures are the ranking procedures Describe reports for any table.
	procedures []string

	lastMatchArgs backend.MatchArgs
	lastFn        string
	lastQuery     backend.Query
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		rows: map[string]backend.Row{},
		fail: map[string]error{},

		procedures: []string{"match_memories", "match_vectors"},
	}
}

func (f *fakeConn) record(method string) error {
	f.calls = append(f.calls, method)
	return f.fail[method]
}

func (f *fakeConn) Insert(ctx context.Context, t backend.Table, rows []backend.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Insert"); err != nil {
		return err
	}
	for _, r := range rows {
		if _, ok := f.rows[r.ID]; ok {
			return fmt.Errorf("duplicate key %s", r.ID)
		}
	}
	for _, r := range rows {
		f.rows[r.ID] = r
		f.order = append(f.order, r.ID)
	}
	return nil
}

func (f *fakeConn) Update(ctx context.Context, t backend.Table, id string, row backend.Row) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Update"); err != nil {
		return 0, err
	}
	if _, ok := f.rows[id]; !ok {
		return 0, nil
	}
	row.ID = id
	f.rows[id] = row
	return 1, nil
}

func (f *fakeConn) Delete(ctx context.Context, t backend.Table, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Delete"); err != nil {
		return err
	}
	if f.deleteFailures > 0 {
		f.deleteFailures--
		return errors.New("transient delete failure")
	}
	if _, ok := f.rows[id]; !ok {
		return nil
	}
	delete(f.rows, id)
	for i, o := range f.order {
		if o == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeConn) DeleteAll(ctx context.Context, t backend.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteAll"); err != nil {
		return err
	}
	f.rows = map[string]backend.Row{}
	f.order = nil
	return nil
}

func matchesFilter(meta, filter map[string]any) bool {
	for k, v := range filter {
		got, ok := meta[k]
		if !ok || !reflect.DeepEqual(got, v) {
			return false
		}
	}
	return true
}

func (f *fakeConn) Select(ctx context.Context, t backend.Table, q backend.Query) ([]backend.Row, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	if err := f.record("Select"); err != nil {
		return nil, 0, err
	}
	var out []backend.Row
	total := 0
	for _, id := range f.order {
		r := f.rows[id]
		if q.ID != nil && r.ID != *q.ID {
			continue
		}
		if !matchesFilter(r.Metadata, q.Filter) {
			continue
		}
		total++
		if q.Limit == 0 || len(out) < q.Limit {
			out = append(out, backend.Row{ID: r.ID, Metadata: r.Metadata})
		}
	}
	return out, total, nil
}

func (f *fakeConn) Call(ctx context.Context, fn string, args backend.MatchArgs) ([]backend.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFn = fn
	f.lastMatchArgs = args
	if err := f.record("Call"); err != nil {
		return nil, err
	}
	return f.matches, nil
}

func (f *fakeConn) Describe(ctx context.Context, t backend.Table) (*backend.TableInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Describe"); err != nil {
		return nil, err
	}
	return &backend.TableInfo{Name: t.Name, RowCount: len(f.rows), Metric: "cosine", Procedures: f.procedures}, nil
}

func (f *fakeConn) Tables(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Tables"); err != nil {
		return nil, err
	}
	return []string{"memories"}, nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
