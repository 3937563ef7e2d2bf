package models

import (
	"time"

	"gorm.io/datatypes"
)

// CopyEvent is the audit record of one routed trade: who signalled, who
// received, and the instruction that was delivered.
type CopyEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"-"`

	ProviderID string `gorm:"type:varchar(100);not null;index" json:"provider_id"`
	CopyerID   string `gorm:"type:varchar(100);not null;index" json:"copyer_id"`

	Symbol string  `gorm:"type:varchar(50);not null" json:"symbol"`
	Action string  `gorm:"type:varchar(10);not null" json:"action"`
	Volume float64 `gorm:"not null" json:"volume"`
	Price  float64 `json:"price"`

	// Full delivered trade_data payload as sent on the wire.
	Trade datatypes.JSON `gorm:"type:jsonb" json:"trade"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"timestamp"`
}

func (CopyEvent) TableName() string {
	return "copy_events"
}
