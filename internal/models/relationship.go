package models

import "time"

// Relationship is a directed provider -> copyer copy link. At most one row
// per ordered pair; create is an upsert on (provider_id, copyer_id).
type Relationship struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"-"`

	ProviderID string `gorm:"type:varchar(100);not null;uniqueIndex:idx_provider_copyer,priority:1;index" json:"provider_id"`
	CopyerID   string `gorm:"type:varchar(100);not null;uniqueIndex:idx_provider_copyer,priority:2" json:"copyer_id"`

	VolumeMultiplier float64 `gorm:"not null;default:1" json:"volume_multiplier"`
	MaxLots          float64 `gorm:"not null" json:"max_lots"`
	Enabled          bool    `gorm:"not null;default:true" json:"enabled"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"-"`
}

func (Relationship) TableName() string {
	return "relationships"
}
