package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Community_Sync/internal/docstore"
	"Community_Sync/internal/model"
)

// DocumentStore implements docstore.Store on a single documents table.
// A batch commits inside one transaction.
type DocumentStore struct {
	DB *gorm.DB
}

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{DB: db}
}

func (r *DocumentStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return docstore.Document{}, err
	}
	var row model.Document
	err := r.DB.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, err
	}
	return rowToDocument(row)
}

func (r *DocumentStore) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	var rows []model.Document
	if err := r.DB.WithContext(ctx).
		Where("collection = ?", collection).
		Order("doc_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]docstore.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := rowToDocument(row)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (r *DocumentStore) Batch() docstore.Batch {
	return &batch{db: r.DB}
}

type batch struct {
	db        *gorm.DB
	ops       []docstore.Op
	committed bool
}

func (b *batch) Set(collection, id string, fields map[string]any) {
	b.ops = append(b.ops, docstore.Op{Kind: docstore.OpSet, Collection: collection, ID: id, Fields: fields})
}

func (b *batch) Delete(collection, id string) {
	b.ops = append(b.ops, docstore.Op{Kind: docstore.OpDelete, Collection: collection, ID: id})
}

func (b *batch) Increment(collection, id, field string, delta int64) {
	b.ops = append(b.ops, docstore.Op{Kind: docstore.OpIncrement, Collection: collection, ID: id, Field: field, Delta: delta})
}

func (b *batch) Commit(ctx context.Context) error {
	if b.committed {
		return docstore.ErrBatchCommitted
	}
	b.committed = true

	rows := make([]*model.Document, len(b.ops))
	for i, op := range b.ops {
		if err := op.Validate(); err != nil {
			return err
		}
		if op.Kind == docstore.OpSet {
			body, err := json.Marshal(op.Fields)
			if err != nil {
				return fmt.Errorf("encode %s/%s: %w", op.Collection, op.ID, err)
			}
			rows[i] = &model.Document{Collection: op.Collection, DocID: op.ID, Fields: string(body)}
		}
	}

	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, op := range b.ops {
			var err error
			switch op.Kind {
			case docstore.OpSet:
				err = upsert(tx, rows[i])
			case docstore.OpDelete:
				// deleting a missing document is a no-op
				err = tx.Where("collection = ? AND doc_id = ?", op.Collection, op.ID).
					Delete(&model.Document{}).Error
			case docstore.OpIncrement:
				err = increment(tx, op)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		return nil
	})
}

func upsert(tx *gorm.DB, row *model.Document) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"fields", "updated_at"}),
	}).Create(row).Error
}

// increment adds delta to a numeric JSON field, floored at 0; a missing field
// counts as 0. Like a document-store update, it fails when the document does
// not exist.
func increment(tx *gorm.DB, op docstore.Op) error {
	path := jsonPath(op.Field)
	res := tx.Model(&model.Document{}).
		Where("collection = ? AND doc_id = ?", op.Collection, op.ID).
		UpdateColumn("fields", gorm.Expr(
			"JSON_SET(fields, ?, GREATEST(0, CAST(COALESCE(JSON_EXTRACT(fields, ?), 0) AS SIGNED) + ?))",
			path, path, op.Delta,
		))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func jsonPath(field string) string {
	return "$." + field
}

func rowToDocument(row model.Document) (docstore.Document, error) {
	fields := map[string]any{}
	if row.Fields != "" {
		if err := json.Unmarshal([]byte(row.Fields), &fields); err != nil {
			return docstore.Document{}, fmt.Errorf("decode %s/%s: %w", row.Collection, row.DocID, err)
		}
	}
	return docstore.Document{Collection: row.Collection, ID: row.DocID, Fields: fields}, nil
}
