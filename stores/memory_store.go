package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cppla/guildhall/models"
	"github.com/cppla/guildhall/services"
)

// MemoryStore is an in-process services.Store. All operations run under one mutex,
// which gives the same per-user atomicity the SQL store gets from row locks.
type MemoryStore struct {
	mu sync.Mutex

	nextID map[string]uint

	users     map[uint]*models.User
	streaks   map[uint]*models.Streak // by user id
	checkins  []models.CheckInLog
	quizzes   map[uint]*models.Quiz
	attempts  []models.QuizAttempt
	referrals []models.Referral
}

var _ services.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:  map[string]uint{},
		users:   map[uint]*models.User{},
		streaks: map[uint]*models.Streak{},
		quizzes: map[uint]*models.Quiz{},
	}
}

func (m *MemoryStore) id(table string) uint {
	m.nextID[table]++
	return m.nextID[table]
}

func copyQuiz(q *models.Quiz) *models.Quiz {
	out := *q
	out.Questions = make([]models.QuizQuestion, len(q.Questions))
	for i, qq := range q.Questions {
		qq.Options = append([]string(nil), qq.Options...)
		out.Questions[i] = qq
	}
	return &out
}

func (m *MemoryStore) FindStreak(_ context.Context, userID uint) (*models.Streak, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.streaks[userID]
	if !ok {
		return nil, nil
	}
	out := *st
	return &out, nil
}

func (m *MemoryStore) UpdateStreak(_ context.Context, userID uint, fn services.StreakMutation) (*models.Streak, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return nil, models.ErrUserNotFound
	}
	var current *models.Streak
	if st, ok := m.streaks[userID]; ok {
		cp := *st
		current = &cp
	}
	next, entry, err := fn(current)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	saved := *next
	saved.UserID = userID
	saved.UpdatedAt = now
	if current == nil {
		saved.ID = m.id("streaks")
		saved.CreatedAt = now
	} else {
		saved.ID = current.ID
		saved.CreatedAt = current.CreatedAt
	}
	m.streaks[userID] = &saved
	if entry != nil {
		e := *entry
		e.ID = m.id("check_in_logs")
		e.UserID = userID
		e.CreatedAt = now
		m.checkins = append(m.checkins, e)
	}
	out := saved
	return &out, nil
}

func (m *MemoryStore) TopStreaks(_ context.Context, limit int) ([]models.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]*models.Streak, 0, len(m.streaks))
	for _, st := range m.streaks {
		if st.Streak > 0 {
			rows = append(rows, st)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Streak != rows[j].Streak {
			return rows[i].Streak > rows[j].Streak
		}
		return rows[i].ID < rows[j].ID
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]models.LeaderboardEntry, 0, len(rows))
	for _, st := range rows {
		e := models.LeaderboardEntry{UserID: st.UserID, Value: float64(st.Streak)}
		if u, ok := m.users[st.UserID]; ok {
			e.Username = u.Username
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username {
			return fmt.Errorf("%w: username %q", models.ErrDuplicate, user.Username)
		}
		if user.ReferralCode != "" && u.ReferralCode == user.ReferralCode {
			return fmt.Errorf("%w: referral code %q", models.ErrDuplicate, user.ReferralCode)
		}
	}
	now := time.Now()
	user.ID = m.id("users")
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.TotalPoints = user.QuizPoints + float64(user.ReferralPoints)
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *MemoryStore) findUser(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			out := *u
			return &out, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (m *MemoryStore) FindUser(_ context.Context, id uint) (*models.User, error) {
	return m.findUser(func(u *models.User) bool { return u.ID == id })
}

func (m *MemoryStore) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	return m.findUser(func(u *models.User) bool { return u.Username == username })
}

func (m *MemoryStore) FindUserByReferralCode(_ context.Context, code string) (*models.User, error) {
	return m.findUser(func(u *models.User) bool { return code != "" && u.ReferralCode == code })
}

func (m *MemoryStore) ListUsers(_ context.Context, page, pageSize int) ([]models.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []models.User{}, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (m *MemoryStore) DeleteUser(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return models.ErrUserNotFound
	}
	delete(m.users, id)
	delete(m.streaks, id)
	m.checkins = filter(m.checkins, func(c models.CheckInLog) bool { return c.UserID != id })
	m.attempts = filter(m.attempts, func(a models.QuizAttempt) bool { return a.UserID != id })
	m.referrals = filter(m.referrals, func(r models.Referral) bool { return r.ReferrerID != id && r.ReferredID != id })
	return nil
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (m *MemoryStore) TopUsers(_ context.Context, column models.PointsColumn, limit int) ([]models.LeaderboardEntry, error) {
	switch column {
	case models.QuizPointsColumn, models.ReferralPointsColumn, models.TotalPointsColumn:
	default:
		return nil, fmt.Errorf("%w: unknown points column %q", models.ErrValidation, column)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		rows = append(rows, *u)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		vi, vj := column.Of(rows[i]), column.Of(rows[j])
		if vi != vj {
			return vi > vj
		}
		return rows[i].ID < rows[j].ID
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]models.LeaderboardEntry, 0, len(rows))
	for _, u := range rows {
		out = append(out, models.LeaderboardEntry{UserID: u.ID, Username: u.Username, Value: column.Of(u)})
	}
	return out, nil
}

func (m *MemoryStore) FindQuiz(_ context.Context, id uint) (*models.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quizzes[id]
	if !ok {
		return nil, models.ErrQuizNotFound
	}
	return copyQuiz(q), nil
}

func (m *MemoryStore) ListQuizzes(_ context.Context, activeOnly bool) ([]models.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Quiz, 0, len(m.quizzes))
	for _, q := range m.quizzes {
		if activeOnly && !q.Active {
			continue
		}
		out = append(out, *copyQuiz(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) storeQuestions(quiz *models.Quiz) {
	sort.SliceStable(quiz.Questions, func(i, j int) bool { return quiz.Questions[i].Position < quiz.Questions[j].Position })
	for i := range quiz.Questions {
		quiz.Questions[i].ID = m.id("quiz_questions")
		quiz.Questions[i].QuizID = quiz.ID
	}
}

func (m *MemoryStore) CreateQuiz(_ context.Context, quiz *models.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	quiz.ID = m.id("quizzes")
	quiz.CreatedAt, quiz.UpdatedAt = now, now
	m.storeQuestions(quiz)
	m.quizzes[quiz.ID] = copyQuiz(quiz)
	return nil
}

func (m *MemoryStore) UpdateQuiz(_ context.Context, quiz *models.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.quizzes[quiz.ID]
	if !ok {
		return models.ErrQuizNotFound
	}
	quiz.CreatedAt = existing.CreatedAt
	quiz.UpdatedAt = time.Now()
	m.storeQuestions(quiz)
	m.quizzes[quiz.ID] = copyQuiz(quiz)
	return nil
}

func (m *MemoryStore) DeleteQuiz(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.quizzes[id]; !ok {
		return models.ErrQuizNotFound
	}
	delete(m.quizzes, id)
	return nil
}

func (m *MemoryStore) creditLocked(userID uint, d models.PointsDelta) *models.User {
	u := m.users[userID]
	u.Credit(d)
	u.UpdatedAt = time.Now()
	out := *u
	return &out
}

func (m *MemoryStore) SettleAttempt(_ context.Context, attempt *models.QuizAttempt) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[attempt.UserID]; !ok {
		return nil, models.ErrUserNotFound
	}
	attempt.ID = m.id("quiz_attempts")
	a := *attempt
	a.Answers = append([]int(nil), attempt.Answers...)
	a.Correctness = append([]bool(nil), attempt.Correctness...)
	m.attempts = append(m.attempts, a)
	return m.creditLocked(attempt.UserID, models.PointsDelta{Quiz: attempt.PointsEarned, Quizzes: 1}), nil
}

func (m *MemoryStore) AwardReferral(_ context.Context, ref *models.Referral, once bool) (*models.User, *models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[ref.ReferrerID]; !ok {
		return nil, nil, models.ErrUserNotFound
	}
	if _, ok := m.users[ref.ReferredID]; !ok {
		return nil, nil, models.ErrUserNotFound
	}
	if once {
		for _, r := range m.referrals {
			if r.ReferredID == ref.ReferredID {
				return nil, nil, models.ErrAlreadyReferred
			}
		}
	}
	ref.ID = m.id("referrals")
	m.referrals = append(m.referrals, *ref)
	referrer := m.creditLocked(ref.ReferrerID, models.PointsDelta{Referral: ref.ReferrerBonus})
	referred := m.creditLocked(ref.ReferredID, models.PointsDelta{Referral: ref.ReferredBonus})
	return referrer, referred, nil
}

func (m *MemoryStore) ListAttempts(_ context.Context, userID uint, limit int) ([]models.QuizAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.QuizAttempt, 0)
	for i := len(m.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		if m.attempts[i].UserID == userID {
			out = append(out, m.attempts[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) CountReferrals(_ context.Context, referrerID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.referrals {
		if r.ReferrerID == referrerID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Totals(_ context.Context) (models.Totals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.Totals{
		Users:     int64(len(m.users)),
		Quizzes:   int64(len(m.quizzes)),
		Attempts:  int64(len(m.attempts)),
		CheckIns:  int64(len(m.checkins)),
		Referrals: int64(len(m.referrals)),
	}, nil
}

func bucket(days map[models.Date]int64) []models.DayCount {
	keys := make([]models.Date, 0, len(days))
	for d := range days {
		keys = append(keys, d)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j].Date) })
	out := make([]models.DayCount, 0, len(keys))
	for _, d := range keys {
		out = append(out, models.DayCount{Day: d.String(), Count: days[d]})
	}
	return out
}

func (m *MemoryStore) SignupsByDay(_ context.Context, since models.Date) ([]models.DayCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	days := map[models.Date]int64{}
	for _, u := range m.users {
		d := models.DateOf(u.CreatedAt)
		if !d.Before(since.Date) {
			days[d]++
		}
	}
	return bucket(days), nil
}

func (m *MemoryStore) CheckInsByDay(_ context.Context, since models.Date) ([]models.DayCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	days := map[models.Date]int64{}
	for _, c := range m.checkins {
		if !c.Date.Before(since.Date) {
			days[c.Date]++
		}
	}
	return bucket(days), nil
}
