package persistence

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a record id or unique key is already taken.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConstraintViolation is returned when a record is missing required keys.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
)

// Containers known to the service. Each behaves like an independent keyspace.
const (
	ContainerFacilities  = "facilities"
	ContainerCalendars   = "calendars"
	ContainerEvents      = "events"
	ContainerUsers       = "users"
	ContainerRecorders   = "recorders"
	ContainerDepartments = "departments"
)

// Record is a stored JSON document together with the keys the store indexes.
type Record struct {
	ID           string
	PartitionKey string
	// UniqueKey is optional. When set it must be unique within the container,
	// compared case-insensitively.
	UniqueKey  string
	Attributes map[string]string
	Body       []byte
	UpdatedAt  time.Time
}

// Filter selects records whose attributes equal every entry.
type Filter map[string]string

// Matches reports whether the attributes satisfy the filter.
func (f Filter) Matches(attributes map[string]string) bool {
	for key, want := range f {
		got, ok := attributes[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Store is the document store contract shared by every backend.
//
// Ids are unique per container. An empty partition key on Get or Delete
// matches a record in any partition. Upsert replaces by id and never checks
// versions: the last write wins.
type Store interface {
	Get(ctx context.Context, container, id, partitionKey string) (Record, error)
	List(ctx context.Context, container string, filter Filter) ([]Record, error)
	Create(ctx context.Context, container string, record Record) error
	Upsert(ctx context.Context, container string, record Record) error
	Delete(ctx context.Context, container, id, partitionKey string) error
	Close() error
}
