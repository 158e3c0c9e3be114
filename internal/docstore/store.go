// Package docstore describes the schemaless document store the membership
// engine writes to: point reads, collection listing, and atomic batches of
// set/delete/increment mutations.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrNotFound       = errors.New("document not found")
	ErrInvalidPath    = errors.New("invalid document path")
	ErrBatchCommitted = errors.New("batch already committed")
	ErrNotNumeric     = errors.New("field is not numeric")
)

// Document is a single stored record. Fields holds the decoded JSON body.
type Document struct {
	Collection string
	ID         string
	Fields     map[string]any
}

// Store is the capability the engine depends on.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	List(ctx context.Context, collection string) ([]Document, error)
	Batch() Batch
}

// Batch queues mutations that Commit applies all-or-nothing.
// Increment on a document that does not exist fails the whole batch, and an
// incremented field never drops below 0.
type Batch interface {
	Set(collection, id string, fields map[string]any)
	Delete(collection, id string)
	Increment(collection, id, field string, delta int64)
	Commit(ctx context.Context) error
}

type OpKind int

const (
	OpSet OpKind = iota
	OpDelete
	OpIncrement
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	case OpIncrement:
		return "increment"
	}
	return "unknown"
}

// Op is one queued mutation. Implementations share it so batches can be
// validated and logged the same way.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Fields     map[string]any
	Field      string
	Delta      int64
}

func (o Op) String() string {
	if o.Kind == OpIncrement {
		return fmt.Sprintf("%s %s/%s %s%+d", o.Kind, o.Collection, o.ID, o.Field, o.Delta)
	}
	return fmt.Sprintf("%s %s/%s", o.Kind, o.Collection, o.ID)
}

// Validate checks the op addresses a well formed document.
func (o Op) Validate() error {
	if err := ValidatePath(o.Collection, o.ID); err != nil {
		return err
	}
	if o.Kind == OpIncrement && !validFieldName(o.Field) {
		return fmt.Errorf("%w: field %q", ErrInvalidPath, o.Field)
	}
	return nil
}

// ValidatePath rejects empty segments and ids that would escape their collection.
func ValidatePath(collection, id string) error {
	if collection == "" || strings.HasPrefix(collection, "/") || strings.HasSuffix(collection, "/") {
		return fmt.Errorf("%w: collection %q", ErrInvalidPath, collection)
	}
	for _, seg := range strings.Split(collection, "/") {
		if seg == "" {
			return fmt.Errorf("%w: collection %q", ErrInvalidPath, collection)
		}
	}
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("%w: id %q", ErrInvalidPath, id)
	}
	return nil
}

func validFieldName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// ToInt64 converts the numeric representations a JSON round trip can produce.
func ToInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		return int64(n), n == float64(int64(n))
	case float32:
		return int64(n), n == float32(int64(n))
	}
	return 0, false
}

// ClampCount floors a counter at 0.
func ClampCount(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
