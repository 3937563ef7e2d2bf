package models

import "time"

// Account is one trading-platform identity known to the relay. Rows are
// created on first register and updated in place on re-registration;
// disconnects only flip runtime state, never delete the row.
type Account struct {
	AccountID   string `gorm:"primaryKey;type:varchar(100)" json:"account_id"`
	Platform    string `gorm:"type:varchar(20);not null" json:"platform"`
	AccountType string `gorm:"type:varchar(20);not null" json:"account_type"`
	DisplayName string `gorm:"type:varchar(200)" json:"display_name"`

	LastHeartbeat *time.Time `gorm:"type:timestamptz" json:"last_heartbeat,omitempty"`
	CreatedAt     time.Time  `gorm:"type:timestamptz;autoCreateTime" json:"-"`
	UpdatedAt     time.Time  `gorm:"type:timestamptz;autoUpdateTime" json:"-"`
}

func (Account) TableName() string {
	return "accounts"
}
