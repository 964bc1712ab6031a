package services

import (
	"context"

	"github.com/cppla/guildhall/models"
)

// StreakMutation receives the user's current record (nil when none exists) and returns
// the record to persist and an optional log row. Returning an error persists nothing.
type StreakMutation func(current *models.Streak) (*models.Streak, *models.CheckInLog, error)

// StreakStore persists check-in records keyed by user.
type StreakStore interface {
	FindStreak(ctx context.Context, userID uint) (*models.Streak, error)
	// UpdateStreak runs fn while holding a per-user lock and persists its result.
	UpdateStreak(ctx context.Context, userID uint, fn StreakMutation) (*models.Streak, error)
	TopStreaks(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	FindUser(ctx context.Context, id uint) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	ListUsers(ctx context.Context, page, pageSize int) ([]models.User, int64, error)
	// DeleteUser removes the user together with their streak, attempts, referrals and check-in log.
	DeleteUser(ctx context.Context, id uint) error
	TopUsers(ctx context.Context, column models.PointsColumn, limit int) ([]models.LeaderboardEntry, error)
}

// QuizStore persists quiz definitions.
type QuizStore interface {
	FindQuiz(ctx context.Context, id uint) (*models.Quiz, error)
	ListQuizzes(ctx context.Context, activeOnly bool) ([]models.Quiz, error)
	CreateQuiz(ctx context.Context, quiz *models.Quiz) error
	// UpdateQuiz replaces the quiz fields and its full question list.
	UpdateQuiz(ctx context.Context, quiz *models.Quiz) error
	DeleteQuiz(ctx context.Context, id uint) error
}

// LedgerStore applies point awards. Each call is atomic: the audit row and every
// balance change it implies commit together or not at all.
type LedgerStore interface {
	// SettleAttempt stores attempt and credits its points to the owner.
	SettleAttempt(ctx context.Context, attempt *models.QuizAttempt) (*models.User, error)
	// AwardReferral stores ref and credits both parties. With once set, a second
	// award for the same referred user fails with models.ErrAlreadyReferred.
	AwardReferral(ctx context.Context, ref *models.Referral, once bool) (referrer, referred *models.User, err error)
	ListAttempts(ctx context.Context, userID uint, limit int) ([]models.QuizAttempt, error)
	CountReferrals(ctx context.Context, referrerID uint) (int64, error)
}

// StatsStore serves admin aggregates.
type StatsStore interface {
	Totals(ctx context.Context) (models.Totals, error)
	SignupsByDay(ctx context.Context, since models.Date) ([]models.DayCount, error)
	CheckInsByDay(ctx context.Context, since models.Date) ([]models.DayCount, error)
}

// Store is the full persistence surface the services need.
type Store interface {
	StreakStore
	UserStore
	QuizStore
	LedgerStore
	StatsStore
}
