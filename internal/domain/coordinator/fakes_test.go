package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"dualstore/internal/domain/record"
)

// memOperator 内存实现的 record.Operator，记录每个方法的调用次数
type memOperator struct {
	mu    sync.Mutex
	store record.Store
	docs  []record.Document
	calls map[string]int
	fail  map[string]error
	// block 非 nil 时所有调用阻塞到 ctx 结束
	block chan struct{}
}

func newMemOperator(store record.Store) *memOperator {
	return &memOperator{store: store, calls: map[string]int{}, fail: map[string]error{}}
}

func (m *memOperator) enter(ctx context.Context, method string) error {
	m.mu.Lock()
	m.calls[method]++
	err := m.fail[method]
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *memOperator) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *memOperator) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *memOperator) failOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[method] = err
}

func (m *memOperator) Store() record.Store { return m.store }

func (m *memOperator) CommonInsert(ctx context.Context, docs []record.Document) (*record.Result, error) {
	if err := m.enter(ctx, "insert"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		cp := record.Document{}
		for k, v := range d {
			cp[k] = v
		}
		m.docs = append(m.docs, cp)
	}
	return record.NewResult(nil, 1), nil
}

func (m *memOperator) CommonSearch(ctx context.Context) (*record.Result, error) {
	return m.find(ctx, "search", func(record.Document) bool { return true })
}

func (m *memOperator) QuerySearch(ctx context.Context, filter record.FilterSpec) (*record.Result, error) {
	return m.find(ctx, "query", func(d record.Document) bool { return substringMatch(filter, d) })
}

func (m *memOperator) MatchSearch(ctx context.Context, filter record.FilterSpec) (*record.Result, error) {
	return m.find(ctx, "match", func(d record.Document) bool { return exactMatch(filter, d) })
}

func (m *memOperator) CommonUpdate(ctx context.Context, filter record.FilterSpec, update record.UpdateSpec, how record.Cardinality) (*record.Result, error) {
	if err := m.enter(ctx, "update"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.docs {
		if how == record.One && n == 1 {
			break
		}
		if exactMatch(filter, d) {
			for k, v := range update.Map() {
				d[k] = v
			}
			n++
		}
	}
	return record.NewResult(nil, 1).WithMatched(n), nil
}

func (m *memOperator) CommonDelete(ctx context.Context, filter record.FilterSpec, how record.Cardinality) (*record.Result, error) {
	if err := m.enter(ctx, "delete"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	kept := m.docs[:0]
	for _, d := range m.docs {
		if exactMatch(filter, d) && !(how == record.One && n == 1) {
			n++
			continue
		}
		kept = append(kept, d)
	}
	m.docs = kept
	return record.NewResult(nil, 1).WithMatched(n), nil
}

func (m *memOperator) Count(ctx context.Context, filter record.FilterSpec) (int64, error) {
	if err := m.enter(ctx, "count"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.docs {
		if exactMatch(filter, d) {
			n++
		}
	}
	return n, nil
}

func (m *memOperator) Drop(ctx context.Context) (*record.Result, error) {
	if err := m.enter(ctx, "drop"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = nil
	return record.NewResult(nil, 1), nil
}

func (m *memOperator) find(ctx context.Context, method string, keep func(record.Document) bool) (*record.Result, error) {
	if err := m.enter(ctx, method); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []record.Document
	for _, d := range m.docs {
		if keep(d) {
			out = append(out, d)
		}
	}
	return record.NewResult(out, 1), nil
}

func exactMatch(filter record.FilterSpec, d record.Document) bool {
	for _, f := range filter.Items() {
		v, err := record.ValueOf(d[f.Name])
		if err != nil || !v.Equal(f.Value) {
			return false
		}
	}
	return true
}

func substringMatch(filter record.FilterSpec, d record.Document) bool {
	for _, f := range filter.Items() {
		v, err := record.ValueOf(d[f.Name])
		if err != nil {
			return false
		}
		want, isStr := f.Value.Str()
		got, ok := v.Str()
		if isStr && ok {
			if !strings.Contains(strings.ToLower(got), strings.ToLower(want)) {
				return false
			}
			continue
		}
		if !v.Equal(f.Value) {
			return false
		}
	}
	return true
}

type fakeLock struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
	err      error
}

func newFakeLock() *fakeLock { return &fakeLock{held: map[string]bool{}} }

func (l *fakeLock) Acquire(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.held[id] {
		return false, nil
	}
	l.held[id] = true
	l.acquired = append(l.acquired, id)
	return true, nil
}

func (l *fakeLock) Release(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, id)
	return nil
}

func (l *fakeLock) heldCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []*Reconciliation
	err     error
}

func (j *fakeJournal) Record(_ context.Context, e *Reconciliation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, e)
	return nil
}

func (j *fakeJournal) List(_ context.Context, limit int) ([]*Reconciliation, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if limit > 0 && limit < len(j.entries) {
		return j.entries[:limit], nil
	}
	return j.entries, nil
}

type fakeCache struct {
	mu          sync.Mutex
	items       map[string]*record.Result
	invalidated int
}

func newFakeCache() *fakeCache { return &fakeCache{items: map[string]*record.Result{}} }

func cacheKey(store record.Store, filter record.FilterSpec) string {
	raw, _ := json.Marshal(filter.Fields)
	return string(store) + "|" + string(raw)
}

func (c *fakeCache) Get(_ context.Context, store record.Store, filter record.FilterSpec) (*record.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.items[cacheKey(store, filter)]
	return r, ok
}

func (c *fakeCache) Set(_ context.Context, store record.Store, filter record.FilterSpec, r *record.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[cacheKey(store, filter)] = r
}

func (c *fakeCache) InvalidateAll(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = map[string]*record.Result{}
	c.invalidated++
}

var errDown = errors.New("connection refused")
