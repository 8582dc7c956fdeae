package models

import "time"

// API categories tracked against external quotas.
const (
	APITypeAddrValidation = "addr_validation_api"
	APITypeMailer         = "mailer_api"
)

// APIUsageCounter tracks per-day call counts for a tracked external API.
// Used for milestone alerting only, not billing-accurate.
type APIUsageCounter struct {
	Date    string `gorm:"primaryKey;type:varchar(10)" json:"date"` // YYYY-MM-DD
	APIType string `gorm:"primaryKey;type:varchar(64)" json:"api_type"`
	Count   int    `gorm:"not null;default:0" json:"count"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
