package services

import (
	"context"
	"errors"
	"time"

	"github.com/cppla/guildhall/metrics"
	"github.com/cppla/guildhall/models"
)

// Outcome is what a successful check-in did to the streak.
type Outcome string

const (
	OutcomeStarted  Outcome = "started"
	OutcomeExtended Outcome = "extended"
	OutcomeReset    Outcome = "reset"
)

// Decide applies one check-in on today to existing, which may be nil.
// It returns models.ErrAlreadyCheckedIn when existing was already checked in today.
func Decide(existing *models.Streak, today models.Date) (models.Streak, Outcome, error) {
	if existing == nil || existing.LastCheckin.IsZero() {
		next := models.Streak{Streak: 1, LongestStreak: 1, LastCheckin: today}
		if existing != nil {
			next.UserID = existing.UserID
			next.LongestStreak = max(existing.LongestStreak, 1)
		}
		return next, OutcomeStarted, nil
	}
	if existing.LastCheckin == today {
		return *existing, "", models.ErrAlreadyCheckedIn
	}

	next := *existing
	next.LastCheckin = today
	outcome := OutcomeReset
	if today.DaysSince(existing.LastCheckin) == 1 {
		next.Streak = existing.Streak + 1
		outcome = OutcomeExtended
	} else {
		next.Streak = 1
	}
	next.LongestStreak = max(existing.LongestStreak, next.Streak)
	return next, outcome, nil
}

// CheckInResult is the persisted record after a check-in.
type CheckInResult struct {
	Streak  models.Streak `json:"streak"`
	Outcome Outcome       `json:"outcome"`
}

// StreakService runs daily check-ins.
type StreakService struct {
	store       StreakStore
	now         func() time.Time
	invalidator func(ctx context.Context)
}

// NewStreakService builds the service. onChange, when non-nil, is called after every
// successful check-in, typically to drop cached leaderboards.
func NewStreakService(store StreakStore, onChange func(ctx context.Context)) *StreakService {
	return &StreakService{store: store, now: time.Now, invalidator: onChange}
}

// WithClock replaces the time source.
func (s *StreakService) WithClock(now func() time.Time) *StreakService {
	s.now = now
	return s
}

// Today is the current UTC calendar day.
func (s *StreakService) Today() models.Date {
	return models.DateOf(s.now())
}

// GetStreak returns the user's record, or the zero record when they never checked in.
func (s *StreakService) GetStreak(ctx context.Context, userID uint) (models.Streak, error) {
	st, err := s.store.FindStreak(ctx, userID)
	if err != nil {
		return models.Streak{}, err
	}
	if st == nil {
		return models.Streak{UserID: userID}, nil
	}
	return *st, nil
}

// CheckIn records a check-in for day, or for today when day is zero.
func (s *StreakService) CheckIn(ctx context.Context, userID uint, day models.Date) (CheckInResult, error) {
	if day.IsZero() {
		day = s.Today()
	}
	res, err := s.checkIn(ctx, userID, day)
	if errors.Is(err, models.ErrDuplicate) {
		// lost the race to create the first record; the retry sees it
		res, err = s.checkIn(ctx, userID, day)
	}
	if err != nil {
		if errors.Is(err, models.ErrAlreadyCheckedIn) {
			metrics.CheckIns.WithLabelValues("duplicate").Inc()
		}
		return CheckInResult{}, err
	}
	metrics.CheckIns.WithLabelValues(string(res.Outcome)).Inc()
	if s.invalidator != nil {
		s.invalidator(ctx)
	}
	return res, nil
}

func (s *StreakService) checkIn(ctx context.Context, userID uint, day models.Date) (CheckInResult, error) {
	var outcome Outcome
	saved, err := s.store.UpdateStreak(ctx, userID, func(current *models.Streak) (*models.Streak, *models.CheckInLog, error) {
		next, o, err := Decide(current, day)
		if err != nil {
			return nil, nil, err
		}
		outcome = o
		entry := &models.CheckInLog{Date: day, Outcome: string(o), StreakAfter: next.Streak}
		return &next, entry, nil
	})
	if err != nil {
		return CheckInResult{}, err
	}
	return CheckInResult{Streak: *saved, Outcome: outcome}, nil
}
