package models

import "time"

// RateLimitCounter counts checkout attempts per (email, product). Counters
// only ever grow; resetting one is an out-of-band administrative action.
type RateLimitCounter struct {
	Email        string    `gorm:"primaryKey;type:varchar(200)" json:"email"`
	ProductID    string    `gorm:"primaryKey;type:varchar(64)" json:"product_id"`
	RequestCount int       `gorm:"not null;default:0" json:"request_count"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
