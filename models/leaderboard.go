package models

// LeaderboardEntry is a user's position on a leaderboard.
type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	UserID   uint    `json:"user_id"`
	Username string  `json:"username"`
	Value    float64 `json:"value"`
}

// DayCount is one bucket of a per-day chart.
type DayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// Totals are platform-wide counts for the admin dashboard.
type Totals struct {
	Users     int64 `json:"users"`
	Quizzes   int64 `json:"quizzes"`
	Attempts  int64 `json:"attempts"`
	CheckIns  int64 `json:"checkins"`
	Referrals int64 `json:"referrals"`
}

// PointsColumn names a sortable balance on User.
type PointsColumn string

const (
	QuizPointsColumn     PointsColumn = "quiz_points"
	ReferralPointsColumn PointsColumn = "referral_points"
	TotalPointsColumn    PointsColumn = "total_points"
)

// Of returns the balance of u this column refers to.
func (c PointsColumn) Of(u User) float64 {
	switch c {
	case QuizPointsColumn:
		return u.QuizPoints
	case ReferralPointsColumn:
		return float64(u.ReferralPoints)
	default:
		return u.TotalPoints
	}
}
