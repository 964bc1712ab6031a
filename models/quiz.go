package models

import "time"

// Quiz is a set of ordered questions worth Points in total.
type Quiz struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Points      float64        `gorm:"not null;default:0" json:"points"`
	Active      bool           `gorm:"not null;default:true" json:"active"`
	Questions   []QuizQuestion `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"questions"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// QuizQuestion is one question; CorrectAnswer indexes into Options.
type QuizQuestion struct {
	ID            uint     `gorm:"primaryKey" json:"id"`
	QuizID        uint     `gorm:"index;not null" json:"-"`
	Position      int      `gorm:"not null" json:"position"`
	Prompt        string   `gorm:"type:text;not null" json:"prompt"`
	Options       []string `gorm:"type:text;serializer:json" json:"options"`
	CorrectAnswer int      `gorm:"not null" json:"correct_answer"`
}

// QuizAttempt is an immutable record of one scored submission.
type QuizAttempt struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"index;not null" json:"user_id"`
	QuizID         uint      `gorm:"index;not null" json:"quiz_id"`
	Score          int       `gorm:"not null" json:"score"`
	TotalQuestions int       `gorm:"not null" json:"total_questions"`
	PointsEarned   float64   `gorm:"not null" json:"points_earned"`
	Answers        []int     `gorm:"type:text;serializer:json" json:"answers"`
	Correctness    []bool    `gorm:"type:text;serializer:json" json:"correctness"`
	CompletedAt    time.Time `gorm:"index" json:"completed_at"`
}
