package stores

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/guildhall/models"
)

func addUser(t *testing.T, m *MemoryStore, name, code string) *models.User {
	t.Helper()
	u := &models.User{Username: name, ReferralCode: code}
	require.NoError(t, m.CreateUser(context.Background(), u))
	return u
}

func TestMemoryStoreUniqueUsers(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	addUser(t, m, "alice", "AAAA")

	err := m.CreateUser(ctx, &models.User{Username: "alice", ReferralCode: "BBBB"})
	assert.ErrorIs(t, err, models.ErrDuplicate)
	err = m.CreateUser(ctx, &models.User{Username: "bob", ReferralCode: "AAAA"})
	assert.ErrorIs(t, err, models.ErrDuplicate)

	_, err = m.FindUserByReferralCode(ctx, "")
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	u := addUser(t, m, "alice", "AAAA")

	got, err := m.FindUser(ctx, u.ID)
	require.NoError(t, err)
	got.TotalPoints = 999

	again, err := m.FindUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, again.TotalPoints)
}

func TestMemoryStoreUpdateStreakRollsBackOnError(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	u := addUser(t, m, "alice", "AAAA")

	_, err := m.UpdateStreak(ctx, u.ID, func(*models.Streak) (*models.Streak, *models.CheckInLog, error) {
		return nil, nil, models.ErrAlreadyCheckedIn
	})
	assert.ErrorIs(t, err, models.ErrAlreadyCheckedIn)
	st, err := m.FindStreak(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = m.UpdateStreak(ctx, 42, func(*models.Streak) (*models.Streak, *models.CheckInLog, error) {
		return &models.Streak{Streak: 1}, nil, nil
	})
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestMemoryStoreAwardReferralOnce(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	alice := addUser(t, m, "alice", "AAAA")
	bob := addUser(t, m, "bob", "BBBB")

	ref := &models.Referral{ReferrerID: alice.ID, ReferredID: bob.ID, ReferrerBonus: 100, ReferredBonus: 50}
	referrer, referred, err := m.AwardReferral(ctx, ref, true)
	require.NoError(t, err)
	assert.Equal(t, 100, referrer.ReferralPoints)
	assert.Equal(t, 50.0, referred.TotalPoints)

	_, _, err = m.AwardReferral(ctx, &models.Referral{ReferrerID: alice.ID, ReferredID: bob.ID, ReferrerBonus: 100, ReferredBonus: 50}, true)
	assert.ErrorIs(t, err, models.ErrAlreadyReferred)

	_, referred, err = m.AwardReferral(ctx, &models.Referral{ReferrerID: alice.ID, ReferredID: bob.ID, ReferrerBonus: 100, ReferredBonus: 50}, false)
	require.NoError(t, err)
	assert.Equal(t, 100.0, referred.TotalPoints)

	n, err := m.CountReferrals(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryStoreTopUsersOrdering(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	a := addUser(t, m, "a", "A1")
	b := addUser(t, m, "b", "B1")
	c := addUser(t, m, "c", "C1")
	zero := addUser(t, m, "zero", "Z1")

	for _, s := range []struct {
		id     uint
		points float64
	}{{a.ID, 10}, {b.ID, 30}, {c.ID, 10}} {
		_, err := m.SettleAttempt(ctx, &models.QuizAttempt{UserID: s.id, QuizID: 1, PointsEarned: s.points})
		require.NoError(t, err)
	}

	top, err := m.TopUsers(ctx, models.QuizPointsColumn, 10)
	require.NoError(t, err)
	require.Len(t, top, 4)
	assert.Equal(t, []uint{b.ID, a.ID, c.ID, zero.ID}, []uint{top[0].UserID, top[1].UserID, top[2].UserID, top[3].UserID})
	assert.Zero(t, top[3].Value)

	top, err = m.TopUsers(ctx, models.TotalPointsColumn, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	_, err = m.TopUsers(ctx, models.PointsColumn("password_hash"), 10)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestMemoryStoreDeleteUserCascades(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	alice := addUser(t, m, "alice", "AAAA")
	bob := addUser(t, m, "bob", "BBBB")

	_, err := m.UpdateStreak(ctx, alice.ID, func(*models.Streak) (*models.Streak, *models.CheckInLog, error) {
		return &models.Streak{Streak: 1, LongestStreak: 1, LastCheckin: models.NewDate(2024, 1, 1)},
			&models.CheckInLog{Date: models.NewDate(2024, 1, 1), Outcome: "started", StreakAfter: 1}, nil
	})
	require.NoError(t, err)
	_, err = m.SettleAttempt(ctx, &models.QuizAttempt{UserID: alice.ID, QuizID: 1, PointsEarned: 5})
	require.NoError(t, err)
	_, _, err = m.AwardReferral(ctx, &models.Referral{ReferrerID: bob.ID, ReferredID: alice.ID, ReferrerBonus: 100, ReferredBonus: 50}, true)
	require.NoError(t, err)

	require.NoError(t, m.DeleteUser(ctx, alice.ID))
	assert.ErrorIs(t, m.DeleteUser(ctx, alice.ID), models.ErrUserNotFound)

	totals, err := m.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.Totals{Users: 1}, totals)

	// bob keeps the points already credited
	got, err := m.FindUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.ReferralPoints)
}

func TestMemoryStoreQuizQuestionsOrdered(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	q := &models.Quiz{Title: "t", Active: true, Questions: []models.QuizQuestion{
		{Position: 2, Prompt: "second", Options: []string{"a", "b"}},
		{Position: 1, Prompt: "first", Options: []string{"a", "b"}},
	}}
	require.NoError(t, m.CreateQuiz(ctx, q))

	got, err := m.FindQuiz(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, got.Questions, 2)
	assert.Equal(t, "first", got.Questions[0].Prompt)
	got.Questions[0].Options[0] = "mutated"

	again, err := m.FindQuiz(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", again.Questions[0].Options[0])

	q.Active = false
	require.NoError(t, m.UpdateQuiz(ctx, q))
	active, err := m.ListQuizzes(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, m.DeleteQuiz(ctx, 99), models.ErrQuizNotFound)
}
