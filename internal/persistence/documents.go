package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Encode serialises v as the body of a record with the supplied keys.
func Encode(id, partitionKey, uniqueKey string, attributes map[string]string, v any) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, fmt.Errorf("encode document: %w", ErrConstraintViolation)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("encode document %s: %w", id, err)
	}
	return Record{
		ID:           id,
		PartitionKey: partitionKey,
		UniqueKey:    uniqueKey,
		Attributes:   cloneAttributes(attributes),
		Body:         body,
	}, nil
}

// Decode unmarshals the record body into a value of type T.
func Decode[T any](record Record) (T, error) {
	var out T
	if err := json.Unmarshal(record.Body, &out); err != nil {
		return out, fmt.Errorf("decode document %s: %w", record.ID, err)
	}
	return out, nil
}

// GetAs loads a single document and decodes it.
func GetAs[T any](ctx context.Context, store Store, container, id, partitionKey string) (T, error) {
	record, err := store.Get(ctx, container, id, partitionKey)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](record)
}

// ListAs loads every document matching the filter and decodes them in order.
func ListAs[T any](ctx context.Context, store Store, container string, filter Filter) ([]T, error) {
	records, err := store.List(ctx, container, filter)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	out := make([]T, 0, len(records))
	for _, record := range records {
		item, err := Decode[T](record)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// NormalizeUniqueKey folds a unique key the way every backend compares it.
func NormalizeUniqueKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func cloneAttributes(attributes map[string]string) map[string]string {
	if len(attributes) == 0 {
		return nil
	}
	out := make(map[string]string, len(attributes))
	for k, v := range attributes {
		out[k] = v
	}
	return out
}

// CloneRecord returns a deep copy so backends never share mutable state with callers.
func CloneRecord(record Record) Record {
	out := record
	out.Attributes = cloneAttributes(record.Attributes)
	if record.Body != nil {
		out.Body = append([]byte(nil), record.Body...)
	}
	return out
}
