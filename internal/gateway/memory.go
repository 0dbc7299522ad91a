package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memRecord struct {
	seq uint64
	doc Document
}

// Memory is an in-process Gateway. It is safe for concurrent use and is
// meant for tests and local development.
type Memory struct {
	mu          sync.RWMutex
	seq         uint64
	collections map[string]map[string]*memRecord
}

// NewMemory returns an empty in-memory gateway.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]*memRecord)}
}

func (m *Memory) Create(_ context.Context, collection string, doc any) (string, error) {
	d, err := ToDocument(doc)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collections[collection]
	if coll == nil {
		coll = make(map[string]*memRecord)
		m.collections[collection] = coll
	}

	id := docID(d)
	if id == "" {
		id = uuid.New().String()
		d["id"] = id
	}
	if _, exists := coll[id]; exists {
		return "", fmt.Errorf("%w: %s/%s", ErrConflict, collection, id)
	}

	m.seq++
	coll[id] = &memRecord{seq: m.seq, doc: d}
	return id, nil
}

func (m *Memory) Get(_ context.Context, collection, id string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return json.Marshal(rec.doc)
}

func (m *Memory) Query(_ context.Context, collection string, q Query) (*QueryResult, error) {
	if err := ValidateQuery(q); err != nil {
		return nil, err
	}
	filter, err := NormalizeFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	var matched []*memRecord
	for _, rec := range m.collections[collection] {
		if matches(rec.doc, filter) {
			matched = append(matched, rec)
		}
	}
	// Documents are replaced, never mutated in place, so marshalling
	// outside the lock is safe.
	m.mu.RUnlock()

	sortRecords(matched, q.Sort)

	total := len(matched)
	start := (q.Page - 1) * q.Limit
	end := start + q.Limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	res := &QueryResult{
		Items:      make([]json.RawMessage, 0, end-start),
		HasMore:    end < total,
		TotalPages: TotalPages(total, q.Limit),
		Total:      total,
	}
	for _, rec := range matched[start:end] {
		raw, err := json.Marshal(rec.doc)
		if err != nil {
			return nil, err
		}
		res.Items = append(res.Items, raw)
	}
	return res, nil
}

func (m *Memory) Update(_ context.Context, collection, id string, patch map[string]any) error {
	p, err := ToDocument(patch)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	next := make(Document, len(rec.doc)+len(p))
	for k, v := range rec.doc {
		next[k] = v
	}
	for k, v := range p {
		if k == "id" {
			continue
		}
		next[k] = v
	}
	rec.doc = next
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][id]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	delete(m.collections[collection], id)
	return nil
}

// Insert stores a raw document as-is, bypassing model encoding. Tests use it
// to seed malformed legacy records.
func (m *Memory) Insert(collection string, doc Document) string {
	id, err := m.Create(context.Background(), collection, doc)
	if err != nil {
		panic(err)
	}
	return id
}

// NormalizeFilter converts filter values to their decoded JSON form.
func NormalizeFilter(filter map[string]any) (Document, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	return ToDocument(filter)
}

func matches(doc, filter Document) bool {
	for k, want := range filter {
		got := doc[k]
		if want == nil {
			if got != nil {
				return false
			}
			continue
		}
		if got == nil || ScalarString(got) != ScalarString(want) {
			return false
		}
	}
	return true
}

// ScalarString renders a decoded JSON scalar the way it appears in a query
// string, so filters coming over HTTP compare equal to typed values.
func ScalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		raw, _ := json.Marshal(t)
		return string(raw)
	}
}

func sortRecords(recs []*memRecord, s *Sort) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if s != nil && s.Field != "" {
			c := compareValues(a.doc[s.Field], b.doc[s.Field])
			if c != 0 {
				if s.Desc {
					return c > 0
				}
				return c < 0
			}
			if s.Desc {
				return a.seq > b.seq
			}
		}
		return a.seq < b.seq
	})
}

// compareValues orders JSON scalars. Nulls sort lowest; RFC 3339 strings
// compare as instants.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if an, ok := a.(json.Number); ok {
		if bn, ok := b.(json.Number); ok {
			af, _ := an.Float64()
			bf, _ := bn.Float64()
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}

	as, bs := ScalarString(a), ScalarString(b)
	at, aerr := time.Parse(time.RFC3339Nano, as)
	bt, berr := time.Parse(time.RFC3339Nano, bs)
	if aerr == nil && berr == nil {
		return at.Compare(bt)
	}
	return strings.Compare(as, bs)
}
