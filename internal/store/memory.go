package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"backend-pilanitrails/internal/stream"

	"github.com/google/uuid"
)

type memDoc struct {
	raw       []byte
	version   int64
	createdAt time.Time
	updatedAt time.Time
	seq       int64
}

// Memory keeps documents in process. Values are stored in their JSON form
// so reads behave like the networked backends.
type Memory struct {
	mu       sync.Mutex
	docs     map[string]map[string]*memDoc
	seq      int64
	clock    *clock
	notifier Notifier
}

func NewMemory(n Notifier) *Memory {
	if n == nil {
		n = stream.NewHub(nil)
	}
	return &Memory{
		docs:     map[string]map[string]*memDoc{},
		clock:    newClock(),
		notifier: n,
	}
}

func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d.document(id)
}

func (m *Memory) Query(_ context.Context, collection string, q Query) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type entry struct {
		id  string
		doc *memDoc
	}
	var entries []entry
	for id, d := range m.docs[collection] {
		entries = append(entries, entry{id: id, doc: d})
	}
	sort.Slice(entries, func(i, j int) bool {
		if q.Newest {
			return entries[i].doc.seq > entries[j].doc.seq
		}
		return entries[i].doc.seq < entries[j].doc.seq
	})

	var out []Document
	for _, e := range entries {
		doc, err := e.doc.document(e.id)
		if err != nil {
			return nil, err
		}
		if !matchesAll(doc.Fields, q.Where) {
			continue
		}
		out = append(out, doc)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.NewString()
	if err := m.CreateWithID(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) CreateWithID(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	if _, ok := m.docs[collection][id]; ok {
		m.mu.Unlock()
		return ErrAlreadyExists
	}
	now := m.clock.next()
	raw, _, err := encodeFields(fields, now)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if m.docs[collection] == nil {
		m.docs[collection] = map[string]*memDoc{}
	}
	m.seq++
	m.docs[collection][id] = &memDoc{raw: raw, version: 1, createdAt: now, updatedAt: now, seq: m.seq}
	m.mu.Unlock()

	notify(m.notifier, collection)
	return nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return m.UpdateIf(ctx, collection, id, Condition{}, fields)
}

func (m *Memory) UpdateIf(_ context.Context, collection, id string, cond Condition, fields map[string]any) error {
	m.mu.Lock()
	d, ok := m.docs[collection][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	current, err := decodeFields(d.raw)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if cond.Version != 0 && cond.Version != d.version {
		m.mu.Unlock()
		return ErrConditionFailed
	}
	if cond.Path != "" && !matches(current, cond.Path, cond.Equals, cond.OrMissing) {
		m.mu.Unlock()
		return ErrConditionFailed
	}

	now := m.clock.next()
	_, patch, err := encodeFields(fields, now)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	for k, v := range patch {
		current[k] = v
	}
	raw, _, err := encodeFields(current, now)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	d.raw = raw
	d.version++
	d.updatedAt = now
	m.mu.Unlock()

	notify(m.notifier, collection)
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	if _, ok := m.docs[collection][id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.docs[collection], id)
	m.mu.Unlock()

	notify(m.notifier, collection)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, collection string, q Query) (*Subscription, error) {
	return watch(ctx, m.notifier, collection, func(ctx context.Context) ([]Document, error) {
		return m.Query(ctx, collection, q)
	}), nil
}

func (d *memDoc) document(id string) (Document, error) {
	fields, err := decodeFields(d.raw)
	if err != nil {
		return Document{}, err
	}
	return Document{
		ID:        id,
		Fields:    fields,
		Version:   d.version,
		CreatedAt: d.createdAt,
		UpdatedAt: d.updatedAt,
	}, nil
}

func matchesAll(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !matches(fields, f.Path, f.Value, f.OrMissing) {
			return false
		}
	}
	return true
}
