package model

import "time"

// Document is the MySQL row behind one stored document. Fields holds the JSON body.
type Document struct {
	Collection string `gorm:"primaryKey;size:191"`
	DocID      string `gorm:"primaryKey;size:191;index:idx_doc_id"`
	Fields     string `gorm:"type:json;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Document) TableName() string { return "documents" }
