package model

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/gradewise/moderation-server/internal/utility"
)

type (
	AppealID int64
)

// ToInt64 - get the appeal ID.
func (id AppealID) ToInt64() int64 {
	return int64(id)
}

// ToString - get the appeal ID.
func (id AppealID) ToString() string {
	return strconv.FormatInt(int64(id), 10)
}

// Appeal is a moderated user's request to reverse their current standing.
// At most one pending appeal may exist per user at any time.
type Appeal struct {
	ID AppealID `gorm:"primaryKey;autoIncrement" json:"id"` // Unique identifier for this appeal.

	UserID UserID       `gorm:"not null;index" hash:"x" json:"user_id"` // The user contesting their standing.
	Reason string       `gorm:"not null"       hash:"x" json:"reason"`  // Why the user believes the decision is wrong.
	Status AppealStatus `gorm:"not null;default:pending;index" hash:"x" json:"status"`

	// Review fields, populated only on transition out of pending.
	AdminNotes string       `json:"admin_notes"`
	ReviewedAt sql.NullTime `gorm:"null" json:"reviewed_at"`
	ReviewedBy UserID       `gorm:"null" json:"reviewed_by"`

	// Meta fields
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"` // Time when the appeal was filed.
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"` // Time when the appeal was last updated.
	Extra     string    `json:"extra"`                            // Extra data.
}

// NewAppeal - a fresh pending appeal for the user.
func NewAppeal(userID UserID, reason string) *Appeal {
	return &Appeal{
		UserID: userID,
		Reason: reason,
		Status: AppealPending,
	}
}

// TableName - set the table name.
func (Appeal) TableName() string {
	return "appeals"
}

// GetID - get the appeal ID.
func (obj *Appeal) GetID() int64 {
	return int64(obj.ID)
}

// Hash - calculate the hash of the object.
func (obj *Appeal) Hash() (string, error) {
	return utility.Hash(obj)
}

// Review - close the appeal with the reviewer's decision.
func (obj *Appeal) Review(adminID UserID, decision AppealDecision, notes string, now time.Time) {
	obj.Status = decision.Status()
	obj.AdminNotes = notes
	obj.ReviewedAt = sql.NullTime{Time: now, Valid: true}
	obj.ReviewedBy = adminID
}
