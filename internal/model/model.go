package model

import (
	"database/sql"
	"encoding/gob"
)

func InitHashFunction() {
	// Register types for gob serialization
	gob.Register(sql.NullTime{})
	gob.Register(UserID(0))
	gob.Register(ReportID(0))
	gob.Register(AppealID(0))
	gob.Register(ModerationStatus(""))
	gob.Register(ReportCategory(""))
	gob.Register(ReportOutcome(""))
	gob.Register(AppealStatus(""))
}
