package model

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/gradewise/moderation-server/internal/utility"
)

type (
	UserID int64
)

// ToInt64 - get the user ID.
func (id UserID) ToInt64() int64 {
	return int64(id)
}

// ToString - get the user ID.
func (id UserID) ToString() string {
	return strconv.FormatInt(int64(id), 10)
}

// ModerationRecord is the authoritative standing of a single user.
// Created lazily on the first resolved report that finds fault.
type ModerationRecord struct {
	UserID UserID `gorm:"primaryKey" hash:"x" json:"user_id"` // Identifier of the moderated user.

	Status         ModerationStatus `gorm:"not null;default:active;index" hash:"x" json:"status"`          // Current standing.
	ViolationCount int              `gorm:"not null;default:0"            hash:"x" json:"violation_count"` // Resolved at-fault reports, never reset.

	// Suspension fields, populated only while status is suspended.
	SuspensionStartDate sql.NullTime `gorm:"null" hash:"x" json:"suspension_start_date"`
	SuspensionEndDate   sql.NullTime `gorm:"null" hash:"x" json:"suspension_end_date"`

	// Ban fields, populated only while status is banned.
	BannedAt  sql.NullTime `gorm:"null" hash:"x" json:"banned_at"`
	BanReason string       `hash:"x" json:"ban_reason"`

	AdminNotes string `json:"admin_notes"` // Free-text operator notes.

	// Meta fields
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"` // Time when the record was last updated.
	Extra     string    `json:"extra"`                            // Extra data.
}

// NewModerationRecord - a fresh record in active standing.
func NewModerationRecord(userID UserID) *ModerationRecord {
	return &ModerationRecord{
		UserID: userID,
		Status: StatusActive,
	}
}

// TableName - set the table name.
func (ModerationRecord) TableName() string {
	return "moderation_records"
}

// GetID - get the moderated user ID.
func (obj *ModerationRecord) GetID() int64 {
	return int64(obj.UserID)
}

// Hash - calculate the hash of the object.
func (obj *ModerationRecord) Hash() (string, error) {
	return utility.Hash(obj)
}

// Suspend - move the record into suspended standing for the given duration.
// Any previous ban fields are cleared: suspension and ban are mutually exclusive.
func (obj *ModerationRecord) Suspend(now time.Time, duration time.Duration) {
	obj.Status = StatusSuspended
	obj.SuspensionStartDate = sql.NullTime{Time: now, Valid: true}
	obj.SuspensionEndDate = sql.NullTime{Time: now.Add(duration), Valid: true}
	obj.BannedAt = sql.NullTime{}
	obj.BanReason = ""
}

// Ban - move the record into banned standing, permanently.
// Any previous suspension fields are cleared.
func (obj *ModerationRecord) Ban(now time.Time, reason string) {
	obj.Status = StatusBanned
	obj.BannedAt = sql.NullTime{Time: now, Valid: true}
	obj.BanReason = reason
	obj.SuspensionStartDate = sql.NullTime{}
	obj.SuspensionEndDate = sql.NullTime{}
}

// ClearSanctions - restore active standing and drop suspension/ban fields.
// The violation count stays: it is historical, not part of the sanction.
func (obj *ModerationRecord) ClearSanctions() {
	obj.Status = StatusActive
	obj.SuspensionStartDate = sql.NullTime{}
	obj.SuspensionEndDate = sql.NullTime{}
	obj.BannedAt = sql.NullTime{}
	obj.BanReason = ""
}

// SuspensionExpired - true when the record is suspended and the window has passed.
func (obj *ModerationRecord) SuspensionExpired(now time.Time) bool {
	return obj.Status == StatusSuspended &&
		obj.SuspensionEndDate.Valid &&
		obj.SuspensionEndDate.Time.Before(now)
}
