package models

import "time"

// Session binds one seated dining period to a table. Sessions are
// closed, never deleted; at most one session per table has a null
// ClosedAt.
type Session struct {
	SessionID   string     `gorm:"type:varchar(64);primaryKey" json:"session_id"`
	TableNumber string     `gorm:"type:varchar(2);index;not null" json:"table_number"`
	OpenedAt    time.Time  `gorm:"not null" json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}
