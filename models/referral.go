package models

import "time"

// Referral records which referrer produced a bonus for which referred user.
// ReferredID is unique unless repeat awards are enabled, in which case each
// award gets its own row.
type Referral struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ReferrerID    uint      `gorm:"index;not null" json:"referrer_id"`
	ReferredID    uint      `gorm:"index;not null" json:"referred_id"`
	Code          string    `gorm:"size:16;not null" json:"code"`
	ReferrerBonus int       `gorm:"not null" json:"referrer_bonus"`
	ReferredBonus int       `gorm:"not null" json:"referred_bonus"`
	AwardedAt     time.Time `json:"awarded_at"`
}
