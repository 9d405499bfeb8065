// Package store is the persistent document store the rest of the service
// talks to: collections of JSON-shaped documents addressed by id, with merge
// updates, conditional updates and live queries.
package store

import (
	"context"
	"errors"
	"time"

	"backend-pilanitrails/internal/stream"
)

const (
	Proposals         = "locationProposals"
	ApprovedLocations = "approvedLocations"
	Users             = "users"
	RefreshTokens     = "refreshTokens"
	Uploads           = "uploads"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrAlreadyExists   = errors.New("document already exists")
	ErrConditionFailed = errors.New("document precondition failed")
)

type serverTimestamp struct{}

// ServerTimestamp may be used as a field value on any write; the backend
// replaces it with its own clock reading. Readings never go backwards.
var ServerTimestamp = serverTimestamp{}

type Document struct {
	ID        string
	Fields    map[string]any
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter matches documents whose value at Path (dot separated) equals Value.
// With OrMissing set, documents where Path is absent or null match too.
type Filter struct {
	Path      string
	Value     any
	OrMissing bool
}

func Where(path string, value any) Filter {
	return Filter{Path: path, Value: value}
}

// WhereOrMissing treats an absent value at path as value.
func WhereOrMissing(path string, value any) Filter {
	return Filter{Path: path, Value: value, OrMissing: true}
}

// Query selects documents of one collection. Results are ordered by
// creation time, oldest first unless Newest is set.
type Query struct {
	Where  []Filter
	Newest bool
	Limit  int
}

// Condition guards UpdateIf. A non-empty Path requires the stored value to
// equal Equals, or to be absent when OrMissing is set; a non-zero Version
// requires the stored revision to match.
type Condition struct {
	Path      string
	Equals    any
	OrMissing bool
	Version   int64
}

type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Create(ctx context.Context, collection string, fields map[string]any) (string, error)
	CreateWithID(ctx context.Context, collection, id string, fields map[string]any) error
	// Update merges fields into the document; keys not named are untouched.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	UpdateIf(ctx context.Context, collection, id string, cond Condition, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Subscribe(ctx context.Context, collection string, q Query) (*Subscription, error)
}

// Notifier carries "collection changed" signals between writers and
// subscriptions. *stream.Hub implements it.
type Notifier interface {
	Broadcast(topic string, payload []byte)
	Register(topic string) *stream.Client
	Unregister(client *stream.Client)
}

func Topic(collection string) string {
	return "docs:" + collection
}

func notify(n Notifier, collection string) {
	if n != nil {
		n.Broadcast(Topic(collection), []byte(collection))
	}
}
