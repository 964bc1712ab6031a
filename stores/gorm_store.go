package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/guildhall/models"
	"github.com/cppla/guildhall/services"
)

// GormStore implements services.Store on top of a gorm connection.
// The connection must be opened with TranslateError enabled so unique-key
// violations surface as gorm.ErrDuplicatedKey.
type GormStore struct {
	db *gorm.DB
}

var _ services.Store = (*GormStore)(nil)

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Models lists every table the store uses, in migration order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Streak{},
		&models.CheckInLog{},
		&models.Quiz{},
		&models.QuizQuestion{},
		&models.QuizAttempt{},
		&models.Referral{},
	}
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", models.ErrDuplicate, err)
	}
	return fmt.Errorf("%w: %w", models.ErrStorage, err)
}

// lockUsers takes row locks on the given users in id order and returns them keyed by id.
func lockUsers(tx *gorm.DB, ids ...uint) (map[uint]*models.User, error) {
	var users []models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).Order("id ASC").Find(&users).Error; err != nil {
		return nil, wrap(err)
	}
	out := make(map[uint]*models.User, len(users))
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, models.ErrUserNotFound
		}
	}
	return out, nil
}

// creditColumns builds an in-place increment of every balance column so concurrent
// awards never overwrite each other.
func creditColumns(d models.PointsDelta) map[string]interface{} {
	return map[string]interface{}{
		"quiz_points":       gorm.Expr("quiz_points + ?", d.Quiz),
		"referral_points":   gorm.Expr("referral_points + ?", d.Referral),
		"quizzes_completed": gorm.Expr("quizzes_completed + ?", d.Quizzes),
		"total_points":      gorm.Expr("total_points + ?", d.Quiz+float64(d.Referral)),
		"updated_at":        time.Now(),
	}
}

func credit(tx *gorm.DB, userID uint, d models.PointsDelta) (*models.User, error) {
	if err := tx.Model(&models.User{}).Where("id = ?", userID).UpdateColumns(creditColumns(d)).Error; err != nil {
		return nil, wrap(err)
	}
	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		return nil, wrap(err)
	}
	return &user, nil
}

// FindStreak returns nil without error when the user never checked in.
func (s *GormStore) FindStreak(ctx context.Context, userID uint) (*models.Streak, error) {
	var st models.Streak
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err)
	}
	return &st, nil
}

// UpdateStreak serializes on the owning user's row, so the read-decide-write is atomic per user.
func (s *GormStore) UpdateStreak(ctx context.Context, userID uint, fn services.StreakMutation) (*models.Streak, error) {
	var saved *models.Streak
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockUsers(tx, userID); err != nil {
			return err
		}

		var current *models.Streak
		var st models.Streak
		err := tx.Where("user_id = ?", userID).First(&st).Error
		switch {
		case err == nil:
			current = &st
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return wrap(err)
		}

		next, entry, err := fn(current)
		if err != nil {
			return err
		}
		next.UserID = userID
		if current == nil {
			if err := tx.Create(next).Error; err != nil {
				return wrap(err)
			}
		} else {
			next.ID = current.ID
			next.CreatedAt = current.CreatedAt
			if err := tx.Save(next).Error; err != nil {
				return wrap(err)
			}
		}
		if entry != nil {
			entry.UserID = userID
			if err := tx.Create(entry).Error; err != nil {
				return wrap(err)
			}
		}
		saved = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// TopStreaks orders by streak descending, ties by insertion order.
func (s *GormStore) TopStreaks(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	err := s.db.WithContext(ctx).Table("streaks").
		Select("streaks.user_id AS user_id, users.username AS username, streaks.streak AS value").
		Joins("JOIN users ON users.id = streaks.user_id").
		Where("streaks.streak > 0").
		Order("streaks.streak DESC, streaks.id ASC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, wrap(err)
	}
	return entries, nil
}

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	return wrap(s.db.WithContext(ctx).Create(user).Error)
}

func (s *GormStore) findUserWhere(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, wrap(err)
	}
	return &user, nil
}

func (s *GormStore) FindUser(ctx context.Context, id uint) (*models.User, error) {
	return s.findUserWhere(ctx, "id = ?", id)
}

func (s *GormStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUserWhere(ctx, "username = ?", username)
}

func (s *GormStore) FindUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return s.findUserWhere(ctx, "referral_code = ?", code)
}

func (s *GormStore) ListUsers(ctx context.Context, page, pageSize int) ([]models.User, int64, error) {
	var users []models.User
	var total int64
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, wrap(err)
	}
	if err := db.Order("created_at DESC, id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
		return nil, 0, wrap(err)
	}
	return users, total, nil
}

func (s *GormStore) DeleteUser(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockUsers(tx, id); err != nil {
			return err
		}
		steps := []struct {
			model interface{}
			query string
			args  []interface{}
		}{
			{&models.Streak{}, "user_id = ?", []interface{}{id}},
			{&models.CheckInLog{}, "user_id = ?", []interface{}{id}},
			{&models.QuizAttempt{}, "user_id = ?", []interface{}{id}},
			{&models.Referral{}, "referrer_id = ? OR referred_id = ?", []interface{}{id, id}},
			{&models.User{}, "id = ?", []interface{}{id}},
		}
		for _, st := range steps {
			if err := tx.Where(st.query, st.args...).Delete(st.model).Error; err != nil {
				return wrap(err)
			}
		}
		return nil
	})
}

func (s *GormStore) TopUsers(ctx context.Context, column models.PointsColumn, limit int) ([]models.LeaderboardEntry, error) {
	switch column {
	case models.QuizPointsColumn, models.ReferralPointsColumn, models.TotalPointsColumn:
	default:
		return nil, fmt.Errorf("%w: unknown points column %q", models.ErrValidation, column)
	}
	var entries []models.LeaderboardEntry
	col := string(column)
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Select("id AS user_id, username, " + col + " AS value").
		Order(col + " DESC, id ASC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, wrap(err)
	}
	return entries, nil
}

func (s *GormStore) FindQuiz(ctx context.Context, id uint) (*models.Quiz, error) {
	var quiz models.Quiz
	err := s.db.WithContext(ctx).Preload("Questions", orderByPosition).First(&quiz, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrQuizNotFound
	}
	if err != nil {
		return nil, wrap(err)
	}
	return &quiz, nil
}

func orderByPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC, id ASC")
}

func (s *GormStore) ListQuizzes(ctx context.Context, activeOnly bool) ([]models.Quiz, error) {
	var quizzes []models.Quiz
	q := s.db.WithContext(ctx).Preload("Questions", orderByPosition).Order("id ASC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Find(&quizzes).Error; err != nil {
		return nil, wrap(err)
	}
	return quizzes, nil
}

func (s *GormStore) CreateQuiz(ctx context.Context, quiz *models.Quiz) error {
	return wrap(s.db.WithContext(ctx).Create(quiz).Error)
}

func (s *GormStore) UpdateQuiz(ctx context.Context, quiz *models.Quiz) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Quiz
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&existing, quiz.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrQuizNotFound
			}
			return wrap(err)
		}
		if err := tx.Model(&existing).
			Select("title", "description", "points", "active").
			Updates(quiz).Error; err != nil {
			return wrap(err)
		}
		if err := tx.Where("quiz_id = ?", quiz.ID).Delete(&models.QuizQuestion{}).Error; err != nil {
			return wrap(err)
		}
		for i := range quiz.Questions {
			quiz.Questions[i].ID = 0
			quiz.Questions[i].QuizID = quiz.ID
		}
		if len(quiz.Questions) > 0 {
			if err := tx.Create(&quiz.Questions).Error; err != nil {
				return wrap(err)
			}
		}
		quiz.CreatedAt = existing.CreatedAt
		return nil
	})
}

func (s *GormStore) DeleteQuiz(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.Quiz{}, id)
		if res.Error != nil {
			return wrap(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.ErrQuizNotFound
		}
		return wrap(tx.Where("quiz_id = ?", id).Delete(&models.QuizQuestion{}).Error)
	})
}

// SettleAttempt stores the attempt and credits the user in one transaction.
func (s *GormStore) SettleAttempt(ctx context.Context, attempt *models.QuizAttempt) (*models.User, error) {
	var user *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockUsers(tx, attempt.UserID); err != nil {
			return err
		}
		if err := tx.Create(attempt).Error; err != nil {
			return wrap(err)
		}
		var err error
		user, err = credit(tx, attempt.UserID, models.PointsDelta{Quiz: attempt.PointsEarned, Quizzes: 1})
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// AwardReferral locks both users, checks the once rule, then writes the referral and both credits.
func (s *GormStore) AwardReferral(ctx context.Context, ref *models.Referral, once bool) (*models.User, *models.User, error) {
	var referrer, referred *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockUsers(tx, ref.ReferrerID, ref.ReferredID); err != nil {
			return err
		}
		if once {
			var n int64
			if err := tx.Model(&models.Referral{}).Where("referred_id = ?", ref.ReferredID).Count(&n).Error; err != nil {
				return wrap(err)
			}
			if n > 0 {
				return models.ErrAlreadyReferred
			}
		}
		if err := tx.Create(ref).Error; err != nil {
			return wrap(err)
		}
		var err error
		if referrer, err = credit(tx, ref.ReferrerID, models.PointsDelta{Referral: ref.ReferrerBonus}); err != nil {
			return err
		}
		referred, err = credit(tx, ref.ReferredID, models.PointsDelta{Referral: ref.ReferredBonus})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return referrer, referred, nil
}

func (s *GormStore) ListAttempts(ctx context.Context, userID uint, limit int) ([]models.QuizAttempt, error) {
	var attempts []models.QuizAttempt
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("completed_at DESC, id DESC").Limit(limit).Find(&attempts).Error; err != nil {
		return nil, wrap(err)
	}
	return attempts, nil
}

func (s *GormStore) CountReferrals(ctx context.Context, referrerID uint) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Referral{}).Where("referrer_id = ?", referrerID).Count(&n).Error; err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

func (s *GormStore) Totals(ctx context.Context) (models.Totals, error) {
	var t models.Totals
	db := s.db.WithContext(ctx)
	counts := []struct {
		model interface{}
		dst   *int64
	}{
		{&models.User{}, &t.Users},
		{&models.Quiz{}, &t.Quizzes},
		{&models.QuizAttempt{}, &t.Attempts},
		{&models.CheckInLog{}, &t.CheckIns},
		{&models.Referral{}, &t.Referrals},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dst).Error; err != nil {
			return models.Totals{}, wrap(err)
		}
	}
	return t, nil
}

type dayRow struct {
	Day   models.Date
	Count int64
}

func toDayCounts(rows []dayRow) []models.DayCount {
	out := make([]models.DayCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.DayCount{Day: r.Day.String(), Count: r.Count})
	}
	return out
}

func (s *GormStore) SignupsByDay(ctx context.Context, since models.Date) ([]models.DayCount, error) {
	var rows []dayRow
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Select("DATE(created_at) AS day, COUNT(*) AS count").
		Where("created_at >= ?", since.In(time.UTC)).
		Group("DATE(created_at)").
		Order("day ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, wrap(err)
	}
	return toDayCounts(rows), nil
}

func (s *GormStore) CheckInsByDay(ctx context.Context, since models.Date) ([]models.DayCount, error) {
	var rows []dayRow
	err := s.db.WithContext(ctx).Model(&models.CheckInLog{}).
		Select("date AS day, COUNT(*) AS count").
		Where("date >= ?", since).
		Group("date").
		Order("day ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, wrap(err)
	}
	return toDayCounts(rows), nil
}
