package mysql

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"

	"Community_Sync/internal/docstore"
	"Community_Sync/internal/model"
)

// The store has no DB here: every case must fail before touching it.

func TestGetRejectsBadPath(t *testing.T) {
	s := NewDocumentStore(nil)
	_, err := s.Get(context.Background(), "users//communitySnippets", "c1")
	assert.Equal(t, errors.Is(err, docstore.ErrInvalidPath), true)
}

func TestBatchValidatesBeforeWriting(t *testing.T) {
	s := NewDocumentStore(nil)

	b := s.Batch()
	b.Set(model.SnippetsCollection("u1"), "c1", map[string]any{"communityId": "c1"})
	b.Increment(model.CommunitiesCollection, "c1", "numberOfMembers) + 1 -- ", 1)
	err := b.Commit(context.Background())
	assert.Equal(t, errors.Is(err, docstore.ErrInvalidPath), true)

	assert.Equal(t, b.Commit(context.Background()), docstore.ErrBatchCommitted)
}

func TestRowToDocument(t *testing.T) {
	doc, err := rowToDocument(model.Document{
		Collection: model.CommunitiesCollection,
		DocID:      "c1",
		Fields:     `{"creatorId":"u1","numberOfMembers":7}`,
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, doc.ID, "c1")

	c, err := model.DecodeCommunity(doc.ID, doc.Fields)
	assert.Equal(t, err, nil)
	assert.Equal(t, c.NumberOfMembers, int64(7))

	_, err = rowToDocument(model.Document{Collection: "x", DocID: "y", Fields: "{"})
	assert.NotEqual(t, err, nil)
}

func TestJSONPath(t *testing.T) {
	assert.Equal(t, jsonPath(model.MemberCountField), "$.numberOfMembers")
}
