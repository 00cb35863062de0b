package model

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/gradewise/moderation-server/internal/utility"
)

type (
	ReportID int64
)

// ToInt64 - get the report ID.
func (id ReportID) ToInt64() int64 {
	return int64(id)
}

// ToString - get the report ID.
func (id ReportID) ToString() string {
	return strconv.FormatInt(int64(id), 10)
}

// Report is a complaint filed by one user against another.
// Created unresolved, mutated exactly once on resolution, never deleted.
type Report struct {
	ID ReportID `gorm:"primaryKey;autoIncrement" json:"id"` // Unique identifier for this report.

	ReporterID UserID         `gorm:"not null;index:idx_reports_pair" hash:"x" json:"reporter_id"` // Who filed the report.
	ReportedID UserID         `gorm:"not null;index:idx_reports_pair" hash:"x" json:"reported_id"` // Who the report is against.
	Category   ReportCategory `gorm:"not null"                        hash:"x" json:"category"`    // Claimed violation kind.
	Reason     string         `gorm:"not null"                        hash:"x" json:"reason"`      // Reporter's description, min length enforced at intake.

	// Resolution fields, populated only once resolved.
	Resolved   bool          `gorm:"not null;default:false;index" hash:"x" json:"resolved"`
	Resolution string        `json:"resolution"`                     // Admin notes on the decision.
	Outcome    ReportOutcome `gorm:"null" json:"outcome,omitempty"`  // Decision that closed the report.
	ResolvedAt sql.NullTime  `gorm:"null" json:"resolved_at"`        // When the report was resolved.
	ResolvedBy UserID        `gorm:"null" json:"resolved_by"`        // Admin who resolved it, zero while open.

	// Meta fields
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"` // Time when the report was filed.
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"` // Time when the report was last updated.
	Extra     string    `json:"extra"`                            // Extra data.
}

// TableName - set the table name.
func (Report) TableName() string {
	return "reports"
}

// GetID - get the report ID.
func (obj *Report) GetID() int64 {
	return int64(obj.ID)
}

// Hash - calculate the hash of the object.
func (obj *Report) Hash() (string, error) {
	return utility.Hash(obj)
}

// Resolve - close the report with the admin's decision.
func (obj *Report) Resolve(adminID UserID, outcome ReportOutcome, notes string, now time.Time) {
	obj.Resolved = true
	obj.Outcome = outcome
	obj.Resolution = notes
	obj.ResolvedAt = sql.NullTime{Time: now, Valid: true}
	obj.ResolvedBy = adminID
}
