package models

import "time"

// User represents a community member. Passwords are stored as bcrypt hashes only.
// Point balances must only change through Credit (or the equivalent atomic store update)
// so that TotalPoints always equals QuizPoints + ReferralPoints.
type User struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Username         string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash     string    `gorm:"size:255" json:"-"`
	RegisterIP       string    `gorm:"size:45" json:"-"`
	ReferralCode     string    `gorm:"size:16;uniqueIndex" json:"referral_code"`
	QuizPoints       float64   `gorm:"not null;default:0" json:"quiz_points"`
	ReferralPoints   int       `gorm:"not null;default:0" json:"referral_points"`
	TotalPoints      float64   `gorm:"not null;default:0;index" json:"total_points"`
	QuizzesCompleted int       `gorm:"not null;default:0" json:"quizzes_completed"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PointsDelta is a change to a user's balances.
type PointsDelta struct {
	Quiz     float64
	Referral int
	Quizzes  int
}

// Credit applies delta and recomputes TotalPoints in the same step.
func (u *User) Credit(delta PointsDelta) {
	u.QuizPoints += delta.Quiz
	u.ReferralPoints += delta.Referral
	u.QuizzesCompleted += delta.Quizzes
	u.TotalPoints = u.QuizPoints + float64(u.ReferralPoints)
}
