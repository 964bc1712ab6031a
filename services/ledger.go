package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cppla/guildhall/metrics"
	"github.com/cppla/guildhall/models"
)

// Score is the result of grading one submission.
type Score struct {
	Score          int     `json:"score"`
	TotalQuestions int     `json:"total_questions"`
	PointsEarned   float64 `json:"points_earned"`
	Correctness    []bool  `json:"correctness"`
}

// ScoreSubmission grades answers against quiz. Answers are compared by position;
// a missing, negative or out-of-range answer counts as wrong. A quiz without
// questions is worth nothing.
func ScoreSubmission(quiz *models.Quiz, answers []int) Score {
	total := len(quiz.Questions)
	s := Score{TotalQuestions: total, Correctness: make([]bool, total)}
	for i, q := range quiz.Questions {
		if i < len(answers) && answers[i] == q.CorrectAnswer {
			s.Correctness[i] = true
			s.Score++
		}
	}
	if total > 0 {
		s.PointsEarned = float64(s.Score) / float64(total) * quiz.Points
	}
	return s
}

// SubmissionResult is returned to the user after a quiz submission.
type SubmissionResult struct {
	Score
	AttemptID uint         `json:"attempt_id"`
	Message   string       `json:"message"`
	User      *models.User `json:"user"`
}

// ReferralResult reports the bonuses of an applied referral code.
type ReferralResult struct {
	BonusPoints    int          `json:"bonus_points"`
	ReferrerReward int          `json:"referrer_reward"`
	Referrer       string       `json:"referrer"`
	User           *models.User `json:"user"`
}

// LedgerConfig holds the referral bonus amounts.
type LedgerConfig struct {
	ReferrerBonus int
	ReferredBonus int
	// AllowRepeat lets the same user collect a referral bonus on every call.
	AllowRepeat bool
}

// Ledger credits quiz and referral points.
type Ledger struct {
	users    UserStore
	quizzes  QuizStore
	store    LedgerStore
	cfg      LedgerConfig
	now      func() time.Time
	onChange func(ctx context.Context)
}

// NewLedger builds a Ledger. onChange, when non-nil, runs after every committed award.
func NewLedger(users UserStore, quizzes QuizStore, store LedgerStore, cfg LedgerConfig, onChange func(ctx context.Context)) *Ledger {
	return &Ledger{users: users, quizzes: quizzes, store: store, cfg: cfg, now: time.Now, onChange: onChange}
}

func (l *Ledger) changed(ctx context.Context) {
	if l.onChange != nil {
		l.onChange(ctx)
	}
}

// SubmitQuiz grades answers and, in one atomic step, records the attempt and credits
// the user. Retakes are allowed and each one is credited.
func (l *Ledger) SubmitQuiz(ctx context.Context, userID, quizID uint, answers []int) (SubmissionResult, error) {
	if answers == nil {
		return SubmissionResult{}, fmt.Errorf("%w: answers are required", models.ErrValidation)
	}
	quiz, err := l.quizzes.FindQuiz(ctx, quizID)
	if err != nil {
		return SubmissionResult{}, err
	}
	if !quiz.Active {
		return SubmissionResult{}, models.ErrQuizNotFound
	}

	score := ScoreSubmission(quiz, answers)
	attempt := &models.QuizAttempt{
		UserID:         userID,
		QuizID:         quiz.ID,
		Score:          score.Score,
		TotalQuestions: score.TotalQuestions,
		PointsEarned:   score.PointsEarned,
		Answers:        answers,
		Correctness:    score.Correctness,
		CompletedAt:    l.now(),
	}
	user, err := l.store.SettleAttempt(ctx, attempt)
	if err != nil {
		return SubmissionResult{}, err
	}
	metrics.PointsAwarded.WithLabelValues("quiz").Add(score.PointsEarned)
	l.changed(ctx)

	return SubmissionResult{
		Score:     score,
		AttemptID: attempt.ID,
		Message:   fmt.Sprintf("Quiz completed. You answered %d of %d correctly.", score.Score, score.TotalQuestions),
		User:      user,
	}, nil
}

// ApplyReferral credits the owner of code and userID. It serves both sign-up with a
// code and applying one later.
func (l *Ledger) ApplyReferral(ctx context.Context, userID uint, code string) (ReferralResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return ReferralResult{}, fmt.Errorf("%w: referral code is required", models.ErrValidation)
	}
	referrer, err := l.users.FindUserByReferralCode(ctx, code)
	if errors.Is(err, models.ErrUserNotFound) {
		return ReferralResult{}, models.ErrInvalidReferralCode
	}
	if err != nil {
		return ReferralResult{}, err
	}
	if referrer.ID == userID {
		return ReferralResult{}, models.ErrSelfReferral
	}

	ref := &models.Referral{
		ReferrerID:    referrer.ID,
		ReferredID:    userID,
		Code:          code,
		ReferrerBonus: l.cfg.ReferrerBonus,
		ReferredBonus: l.cfg.ReferredBonus,
		AwardedAt:     l.now(),
	}
	_, referred, err := l.store.AwardReferral(ctx, ref, !l.cfg.AllowRepeat)
	if err != nil {
		return ReferralResult{}, err
	}
	metrics.PointsAwarded.WithLabelValues("referral").Add(float64(ref.ReferrerBonus + ref.ReferredBonus))
	l.changed(ctx)

	return ReferralResult{
		BonusPoints:    ref.ReferredBonus,
		ReferrerReward: ref.ReferrerBonus,
		Referrer:       referrer.Username,
		User:           referred,
	}, nil
}

// Attempts lists the user's most recent attempts.
func (l *Ledger) Attempts(ctx context.Context, userID uint, limit int) ([]models.QuizAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return l.store.ListAttempts(ctx, userID, limit)
}

// ReferralSummary is the caller's own referral standing.
type ReferralSummary struct {
	Code           string `json:"referral_code"`
	ReferralsMade  int64  `json:"referrals_made"`
	ReferralPoints int    `json:"referral_points"`
}

// Summary reports the user's referral code and how many users they referred.
func (l *Ledger) Summary(ctx context.Context, userID uint) (ReferralSummary, error) {
	user, err := l.users.FindUser(ctx, userID)
	if err != nil {
		return ReferralSummary{}, err
	}
	n, err := l.store.CountReferrals(ctx, userID)
	if err != nil {
		return ReferralSummary{}, err
	}
	return ReferralSummary{Code: user.ReferralCode, ReferralsMade: n, ReferralPoints: user.ReferralPoints}, nil
}
