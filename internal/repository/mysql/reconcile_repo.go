package mysql

import (
	"context"

	"gorm.io/gorm"

	"Community_Sync/internal/model"
)

// CountPair is a community id with its stored member counter.
type CountPair struct {
	ID              string
	NumberOfMembers int64
}

type MemberCountReconcilerRepo struct {
	DB *gorm.DB
}

// ReconcileList returns the next batch of communities after lastID, ordered by id.
func (r *MemberCountReconcilerRepo) ReconcileList(ctx context.Context, batchSize int, lastID string) ([]CountPair, string, error) {
	var list []CountPair
	if err := r.DB.WithContext(ctx).Model(&model.Document{}).
		Select("doc_id AS id, CAST(COALESCE(JSON_EXTRACT(fields, ?), 0) AS SIGNED) AS number_of_members", jsonPath(model.MemberCountField)).
		Where("collection = ? AND doc_id > ?", model.CommunitiesCollection, lastID).
		Order("doc_id ASC").
		Limit(batchSize).
		Scan(&list).Error; err != nil {
		return nil, lastID, err
	}
	if len(list) == 0 {
		return nil, lastID, nil
	}
	return list, list[len(list)-1].ID, nil
}

// RealMembers counts the snippet documents that reference communityID across all users.
func (r *MemberCountReconcilerRepo) RealMembers(ctx context.Context, communityID string) (int64, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&model.Document{}).
		Where("collection LIKE ? AND doc_id = ?", model.SnippetsCollection("%"), communityID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// FixMemberCount overwrites the stored counter.
func (r *MemberCountReconcilerRepo) FixMemberCount(ctx context.Context, communityID string, n int64) error {
	return r.DB.WithContext(ctx).Model(&model.Document{}).
		Where("collection = ? AND doc_id = ?", model.CommunitiesCollection, communityID).
		UpdateColumn("fields", gorm.Expr("JSON_SET(fields, ?, ?)", jsonPath(model.MemberCountField), n)).Error
}
