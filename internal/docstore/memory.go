package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps documents in process. It backs development mode and
// tests, and can be told to fail reads or commits.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]map[string]map[string]any
	readErr error
	failing []error
	commits int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]map[string]any)}
}

// Seed writes a document directly, bypassing batches.
func (s *MemoryStore) Seed(collection, id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket(collection)[id] = copyFields(fields)
}

// FailReads makes every Get and List return err until called with nil.
func (s *MemoryStore) FailReads(err error) {
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
}

// FailNextCommit makes the next Commit return err without applying anything.
func (s *MemoryStore) FailNextCommit(err error) {
	s.mu.Lock()
	s.failing = append(s.failing, err)
	s.mu.Unlock()
}

// Commits reports how many batches were applied.
func (s *MemoryStore) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if err := ValidatePath(collection, id); err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return Document{}, s.readErr
	}
	fields, ok := s.docs[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{Collection: collection, ID: id, Fields: copyFields(fields)}, nil
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	bucket := s.docs[collection]
	out := make([]Document, 0, len(bucket))
	for id, fields := range bucket {
		out = append(out, Document{Collection: collection, ID: id, Fields: copyFields(fields)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Batch() Batch {
	return &memoryBatch{store: s}
}

func (s *MemoryStore) bucket(collection string) map[string]map[string]any {
	b, ok := s.docs[collection]
	if !ok {
		b = make(map[string]map[string]any)
		s.docs[collection] = b
	}
	return b
}

type memoryBatch struct {
	store     *MemoryStore
	ops       []Op
	committed bool
}

func (b *memoryBatch) Set(collection, id string, fields map[string]any) {
	b.ops = append(b.ops, Op{Kind: OpSet, Collection: collection, ID: id, Fields: copyFields(fields)})
}

func (b *memoryBatch) Delete(collection, id string) {
	b.ops = append(b.ops, Op{Kind: OpDelete, Collection: collection, ID: id})
}

func (b *memoryBatch) Increment(collection, id, field string, delta int64) {
	b.ops = append(b.ops, Op{Kind: OpIncrement, Collection: collection, ID: id, Field: field, Delta: delta})
}

// Commit stages every op against a copy of the touched documents and only
// swaps them in when all ops succeed.
func (b *memoryBatch) Commit(ctx context.Context) error {
	if b.committed {
		return ErrBatchCommitted
	}
	b.committed = true
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, op := range b.ops {
		if err := op.Validate(); err != nil {
			return err
		}
	}

	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.failing) > 0 {
		err := s.failing[0]
		s.failing = s.failing[1:]
		return err
	}

	type key struct{ collection, id string }
	staged := make(map[key]map[string]any)
	lookup := func(k key) (map[string]any, bool) {
		if doc, ok := staged[k]; ok {
			return doc, doc != nil
		}
		doc, ok := s.docs[k.collection][k.id]
		if !ok {
			return nil, false
		}
		return copyFields(doc), true
	}

	for _, op := range b.ops {
		k := key{op.Collection, op.ID}
		switch op.Kind {
		case OpSet:
			staged[k] = copyFields(op.Fields)
		case OpDelete:
			staged[k] = nil
		case OpIncrement:
			doc, ok := lookup(k)
			if !ok {
				return fmt.Errorf("%w: %s/%s", ErrNotFound, op.Collection, op.ID)
			}
			cur, ok := ToInt64(doc[op.Field])
			if !ok {
				return fmt.Errorf("%w: %s on %s/%s", ErrNotNumeric, op.Field, op.Collection, op.ID)
			}
			doc[op.Field] = ClampCount(cur + op.Delta)
			staged[k] = doc
		}
	}

	for k, doc := range staged {
		if doc == nil {
			delete(s.docs[k.collection], k.id)
			continue
		}
		s.bucket(k.collection)[k.id] = doc
	}
	s.commits++
	return nil
}
