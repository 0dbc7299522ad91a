// Package gateway defines the persistence gateway contract consumed by the
// conversation store and the call tracker, along with an in-memory
// implementation, an HTTP client and a gin server for the REST form of the
// contract.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection names used by this service.
const (
	Chats    = "chats"
	Messages = "messages"
	CallLogs = "call_logs"
)

// Sentinel errors returned by every Gateway implementation.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a create with an id that is already taken.
	ErrConflict = errors.New("record already exists")
	// ErrInvalid indicates the gateway rejected the request body or query.
	ErrInvalid = errors.New("invalid request")
	// ErrUnavailable indicates a transport or backend failure.
	ErrUnavailable = errors.New("gateway unavailable")
	// ErrUnauthorized indicates the bearer credential was rejected.
	ErrUnauthorized = errors.New("unauthorized")
)

// Document is the decoded form of a stored record.
type Document map[string]any

// Sort orders a query by one field. Ties are broken by insertion order in
// the same direction.
type Sort struct {
	Field string
	Desc  bool
}

// Query is a filtered, sorted, paginated read. Filter values match by
// equality; a nil value matches an absent or null field.
type Query struct {
	Filter map[string]any
	Sort   *Sort
	// Limit is the page size; Page is 1-indexed.
	Limit int
	Page  int
}

// QueryResult is one page of raw records.
type QueryResult struct {
	Items      []json.RawMessage `json:"items"`
	HasMore    bool              `json:"hasMore"`
	TotalPages int               `json:"totalPages"`
	Total      int               `json:"total"`
}

// Decode unmarshals the page items into out, which must be a pointer to a
// slice.
func (r *QueryResult) Decode(out any) error {
	raw, err := json.Marshal(r.Items)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Gateway is a document store keyed by collection name.
type Gateway interface {
	// Create stores doc and returns its id. A non-empty "id" field in doc is
	// used as the primary key; otherwise the gateway assigns one.
	Create(ctx context.Context, collection string, doc any) (string, error)
	// Get returns the raw record.
	Get(ctx context.Context, collection, id string) (json.RawMessage, error)
	Query(ctx context.Context, collection string, q Query) (*QueryResult, error)
	// Update merges patch into the record; nil values set the field to null.
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// GetInto fetches a record and decodes it into out.
func GetInto(ctx context.Context, g Gateway, collection, id string, out any) error {
	raw, err := g.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return nil
}

// ToDocument converts any JSON-encodable value into a Document. Numbers are
// kept as json.Number so integer values survive unchanged.
func ToDocument(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: record must be a JSON object", ErrInvalid)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: record must be a JSON object", ErrInvalid)
	}
	return doc, nil
}

// TotalPages returns the page count for total records at the given limit.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// ValidateQuery checks the pagination bounds of q.
func ValidateQuery(q Query) error {
	if q.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive", ErrInvalid)
	}
	if q.Page <= 0 {
		return fmt.Errorf("%w: page must be positive", ErrInvalid)
	}
	return nil
}

func docID(doc Document) string {
	if id, ok := doc["id"].(string); ok {
		return id
	}
	return ""
}
