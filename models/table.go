package models

import "time"

// Table status values.
const (
	TableAvailable = "available"
	TableOpen      = "open"
)

// Table is one physical table. Status is "open" exactly when
// CustomerSession is set; both fields change only inside the lifecycle
// transactions in controllers.
type Table struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	TableNumber     string     `gorm:"type:varchar(2);uniqueIndex;not null" json:"table_number"`
	Status          string     `gorm:"type:varchar(20);not null;default:'available'" json:"status"`
	CustomerSession *string    `gorm:"type:varchar(64);index" json:"customer_session"`
	OpenedAt        *time.Time `json:"opened_at,omitempty"`
	QRCodeURL       string     `gorm:"type:varchar(255)" json:"qr_code_url"`
	CreatedAt       time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
}
