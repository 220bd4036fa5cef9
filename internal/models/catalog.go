package models

import "time"

// DocumentType is a required deliverable with its scoring weights in percent.
type DocumentType struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"size:128;uniqueIndex;not null" json:"name"`
	WeightSupervisor int       `gorm:"not null" json:"weight_supervisor"`
	WeightCommittee  int       `gorm:"not null" json:"weight_committee"`
	Active           bool      `gorm:"not null;index" json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DeadlineBatch groups projects approved within [ApprovedFrom, ApprovedTo].
type DeadlineBatch struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:128;not null" json:"name"`
	ApprovedFrom time.Time `gorm:"not null" json:"approved_from"`
	ApprovedTo   time.Time `gorm:"not null" json:"approved_to"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Contains reports whether approvedAt falls inside the batch window.
func (b DeadlineBatch) Contains(approvedAt time.Time) bool {
	return !approvedAt.Before(b.ApprovedFrom) && !approvedAt.After(b.ApprovedTo)
}

// Deadline is a due date for one document type, scoped to either a project or a batch.
type Deadline struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ProjectID      *uint      `gorm:"index" json:"project_id,omitempty"`
	BatchID        *uint      `gorm:"index" json:"batch_id,omitempty"`
	DocumentTypeID uint       `gorm:"not null;index" json:"document_type_id"`
	DueAt          time.Time  `gorm:"not null;index" json:"due_at"`
	Locked         bool       `gorm:"not null;index" json:"locked"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// DeadlineMiss records that a project had nothing submitted when a deadline passed.
type DeadlineMiss struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DeadlineID uint      `gorm:"not null;uniqueIndex:idx_deadline_miss,priority:1" json:"deadline_id"`
	ProjectID  uint      `gorm:"not null;uniqueIndex:idx_deadline_miss,priority:2" json:"project_id"`
	CreatedAt  time.Time `json:"created_at"`
}
