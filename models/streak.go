package models

import "time"

// Streak is the per-user daily check-in record.
// Streak == 0 exactly when LastCheckin is zero.
type Streak struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	UserID        uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Streak        int       `gorm:"not null;default:0;index" json:"streak"`
	LongestStreak int       `gorm:"not null;default:0" json:"longest_streak"`
	LastCheckin   Date      `json:"last_checkin"`
	CreatedAt     time.Time `json:"-"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CheckInLog stores one row per successful daily check-in.
type CheckInLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	Date        Date      `gorm:"index;not null" json:"date"`
	Outcome     string    `gorm:"size:16;not null" json:"outcome"`
	StreakAfter int       `gorm:"not null" json:"streak_after"`
	CreatedAt   time.Time `json:"created_at"`
}
