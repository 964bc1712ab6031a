package routes_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/guildhall/config"
	"github.com/cppla/guildhall/routes"
	"github.com/cppla/guildhall/stores"
	"github.com/cppla/guildhall/utils"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	utils.SetRedis(client)
	t.Cleanup(func() {
		utils.SetRedis(nil)
		_ = client.Close()
		mr.Close()
	})

	cfg := config.Override(config.AppConfig{
		JWTSecret:              "test-secret",
		GinMode:                "test",
		GinPath:                filepath.Join(t.TempDir(), "gin.log"),
		RateLimitPerMinute:     10000,
		RegisterMaxPerIPPerDay: 100,
		AdminUsernames:         []string{"root"},
	})
	return routes.SetupRouter(routes.NewServices(cfg, stores.NewMemoryStore(), utils.NewRedisCache(client)))
}

func call(t *testing.T, r http.Handler, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

type registered struct {
	Token string `json:"token"`
	User  struct {
		ID           uint    `json:"id"`
		ReferralCode string  `json:"referral_code"`
		TotalPoints  float64 `json:"total_points"`
		IsAdmin      bool    `json:"is_admin"`
	} `json:"user"`
	Referral *struct {
		BonusPoints    int    `json:"bonus_points"`
		ReferrerReward int    `json:"referrer_reward"`
		Referrer       string `json:"referrer"`
	} `json:"referral"`
}

func register(t *testing.T, r http.Handler, username, code string) registered {
	t.Helper()
	status, env := call(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username":      username,
		"password":      "secret123",
		"referral_code": code,
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var out registered
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func decode(t *testing.T, env envelope, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestHealthAndNoRoute(t *testing.T) {
	r := newTestRouter(t)

	status, env := call(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, env.Code)

	status, env = call(t, r, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40400, env.Code)
}

func TestCheckInFlow(t *testing.T) {
	r := newTestRouter(t)
	alice := register(t, r, "alice", "")

	status, env := call(t, r, http.MethodGet, "/api/v1/streak", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40101, env.Code)

	status, env = call(t, r, http.MethodGet, "/api/v1/streak", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var st struct {
		Streak      int     `json:"streak"`
		LastCheckin *string `json:"last_checkin"`
	}
	decode(t, env, &st)
	assert.Equal(t, 0, st.Streak)
	assert.Nil(t, st.LastCheckin)

	status, env = call(t, r, http.MethodPost, "/api/v1/streak/checkin", alice.Token, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var res struct {
		Outcome string `json:"outcome"`
		Streak  struct {
			Streak int `json:"streak"`
		} `json:"streak"`
	}
	decode(t, env, &res)
	assert.Equal(t, "started", res.Outcome)
	assert.Equal(t, 1, res.Streak.Streak)

	status, env = call(t, r, http.MethodPost, "/api/v1/streak/checkin", alice.Token, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, 40910, env.Code)

	status, env = call(t, r, http.MethodGet, "/api/v1/dashboard", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var dash struct {
		CheckedIn  bool `json:"checked_in"`
		TopStreaks []struct {
			Rank   int     `json:"rank"`
			UserID uint    `json:"user_id"`
			Value  float64 `json:"value"`
		} `json:"top_streaks"`
	}
	decode(t, env, &dash)
	assert.True(t, dash.CheckedIn)
	require.Len(t, dash.TopStreaks, 1)
	assert.Equal(t, alice.User.ID, dash.TopStreaks[0].UserID)
	assert.Equal(t, 1, dash.TopStreaks[0].Rank)
}

func TestCheckInExplicitDates(t *testing.T) {
	r := newTestRouter(t)
	alice := register(t, r, "alice", "")
	bob := register(t, r, "bob", "")

	for _, d := range []string{"2024-03-01", "2024-03-02", "2024-03-03"} {
		status, env := call(t, r, http.MethodPost, "/api/v1/streak/checkin", alice.Token, gin.H{"date": d})
		require.Equal(t, http.StatusOK, status, env.Message)
	}
	status, _ := call(t, r, http.MethodPost, "/api/v1/streak/checkin", bob.Token, gin.H{"date": "2024-03-03"})
	require.Equal(t, http.StatusOK, status)

	status, env := call(t, r, http.MethodPost, "/api/v1/streak/checkin", bob.Token, gin.H{"date": "2024-02-30"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40030, env.Code)

	status, env = call(t, r, http.MethodGet, "/api/v1/leaderboard/streak", "", nil)
	require.Equal(t, http.StatusOK, status)
	var board struct {
		Kind  string `json:"kind"`
		Items []struct {
			Rank   int     `json:"rank"`
			UserID uint    `json:"user_id"`
			Value  float64 `json:"value"`
		} `json:"items"`
	}
	decode(t, env, &board)
	assert.Equal(t, "streak", board.Kind)
	require.Len(t, board.Items, 2)
	assert.Equal(t, alice.User.ID, board.Items[0].UserID)
	assert.Equal(t, 3.0, board.Items[0].Value)
	assert.Equal(t, bob.User.ID, board.Items[1].UserID)
	assert.Equal(t, 2, board.Items[1].Rank)

	status, env = call(t, r, http.MethodGet, "/api/v1/leaderboard/unknown", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40000, env.Code)
}

func TestQuizAuthoringAndSubmission(t *testing.T) {
	r := newTestRouter(t)
	root := register(t, r, "root", "")
	alice := register(t, r, "alice", "")
	assert.True(t, root.User.IsAdmin)
	assert.False(t, alice.User.IsAdmin)

	payload := gin.H{
		"title":       "DAO Basics",
		"description": "<p>Intro</p><script>alert(1)</script>",
		"points":      30,
		"questions": []gin.H{
			{"prompt": "What does DAO stand for?", "options": []string{"Decentralized Autonomous Organization", "Other"}, "correct_answer": 0},
			{"prompt": "Who votes?", "options": []string{"Admins", "Members"}, "correct_answer": 1},
		},
	}
	status, env := call(t, r, http.MethodPost, "/api/v1/admin/quizzes", alice.Token, payload)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, 40301, env.Code)

	status, env = call(t, r, http.MethodPost, "/api/v1/admin/quizzes", root.Token, payload)
	require.Equal(t, http.StatusCreated, status, env.Message)
	var created struct {
		ID          uint   `json:"id"`
		Description string `json:"description"`
	}
	decode(t, env, &created)
	assert.NotContains(t, created.Description, "script")

	path := "/api/v1/quizzes/" + jsonNumber(created.ID)
	status, env = call(t, r, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, string(env.Data), "correct_answer")

	status, env = call(t, r, http.MethodPost, path+"/submit", alice.Token, gin.H{"answers": []interface{}{0, nil}})
	require.Equal(t, http.StatusOK, status, env.Message)
	var sub struct {
		Score          int     `json:"score"`
		TotalQuestions int     `json:"total_questions"`
		PointsEarned   float64 `json:"points_earned"`
		Correctness    []bool  `json:"correctness"`
		Message        string  `json:"message"`
		TotalPoints    float64 `json:"total_points"`
	}
	decode(t, env, &sub)
	assert.Equal(t, 1, sub.Score)
	assert.Equal(t, 2, sub.TotalQuestions)
	assert.InDelta(t, 15.0, sub.PointsEarned, 1e-9)
	assert.Equal(t, []bool{true, false}, sub.Correctness)
	assert.Equal(t, "Quiz completed. You answered 1 of 2 correctly.", sub.Message)
	assert.InDelta(t, 15.0, sub.TotalPoints, 1e-9)

	status, env = call(t, r, http.MethodPost, path+"/submit", alice.Token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40020, env.Code)

	status, env = call(t, r, http.MethodPost, "/api/v1/quizzes/999/submit", alice.Token, gin.H{"answers": []int{0}})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40420, env.Code)

	status, env = call(t, r, http.MethodGet, "/api/v1/attempts", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var attempts struct {
		Items []struct {
			QuizID       uint    `json:"quiz_id"`
			PointsEarned float64 `json:"points_earned"`
		} `json:"items"`
	}
	decode(t, env, &attempts)
	require.Len(t, attempts.Items, 1)
	assert.Equal(t, created.ID, attempts.Items[0].QuizID)

	status, env = call(t, r, http.MethodGet, "/api/v1/leaderboard/quiz", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"username":"alice"`)

	status, _ = call(t, r, http.MethodDelete, path, root.Token, nil)
	assert.Equal(t, http.StatusNotFound, status, "public route has no DELETE")
	status, _ = call(t, r, http.MethodDelete, "/api/v1/admin/quizzes/"+jsonNumber(created.ID), root.Token, nil)
	assert.Equal(t, http.StatusOK, status)
	status, env = call(t, r, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40420, env.Code)
}

func TestReferralFlow(t *testing.T) {
	r := newTestRouter(t)
	alice := register(t, r, "alice", "")

	bob := register(t, r, "bob", alice.User.ReferralCode)
	require.NotNil(t, bob.Referral)
	assert.Equal(t, 50, bob.Referral.BonusPoints)
	assert.Equal(t, 100, bob.Referral.ReferrerReward)
	assert.Equal(t, "alice", bob.Referral.Referrer)

	status, env := call(t, r, http.MethodPost, "/api/v1/referrals/apply", bob.Token, gin.H{"code": alice.User.ReferralCode})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, 40930, env.Code)

	carol := register(t, r, "carol", "")
	status, env = call(t, r, http.MethodPost, "/api/v1/referrals/apply", carol.Token, gin.H{"code": carol.User.ReferralCode})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40031, env.Code)

	status, env = call(t, r, http.MethodPost, "/api/v1/referrals/apply", carol.Token, gin.H{"code": "NOPE"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40430, env.Code)

	status, env = call(t, r, http.MethodGet, "/api/v1/referrals/me", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var mine struct {
		ReferralsMade  int64 `json:"referrals_made"`
		ReferralPoints int   `json:"referral_points"`
	}
	decode(t, env, &mine)
	assert.Equal(t, int64(1), mine.ReferralsMade)
	assert.Equal(t, 100, mine.ReferralPoints)

	status, env = call(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "dave", "password": "secret123", "referral_code": "UNKNOWN1",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40430, env.Code)
	status, _ = call(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "dave", "password": "secret123"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = call(t, r, http.MethodGet, "/api/v1/leaderboard/referral", "", nil)
	require.Equal(t, http.StatusOK, status)
	var board struct {
		Items []struct {
			Username string  `json:"username"`
			Value    float64 `json:"value"`
		} `json:"items"`
	}
	decode(t, env, &board)
	require.Len(t, board.Items, 3)
	assert.Equal(t, "alice", board.Items[0].Username)
	assert.Equal(t, 100.0, board.Items[0].Value)
	assert.Equal(t, "carol", board.Items[2].Username)
	assert.Zero(t, board.Items[2].Value)
	assert.Equal(t, "bob", board.Items[1].Username)
}

func TestLoginLogout(t *testing.T) {
	r := newTestRouter(t)
	register(t, r, "alice", "")

	status, env := call(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40106, env.Code)

	status, env = call(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "alice", "password": "secret123"})
	require.Equal(t, http.StatusOK, status)
	var login struct {
		Token string `json:"token"`
	}
	decode(t, env, &login)

	status, _ = call(t, r, http.MethodGet, "/api/v1/auth/me", login.Token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = call(t, r, http.MethodPost, "/api/v1/auth/logout", login.Token, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = call(t, r, http.MethodGet, "/api/v1/auth/me", login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40104, env.Code)

	status, env = call(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": "alice", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, 40901, env.Code)
}

func TestAdminUsersAndStats(t *testing.T) {
	r := newTestRouter(t)
	root := register(t, r, "root", "")
	alice := register(t, r, "alice", "")
	status, _ := call(t, r, http.MethodPost, "/api/v1/streak/checkin", alice.Token, nil)
	require.Equal(t, http.StatusOK, status)

	status, env := call(t, r, http.MethodGet, "/api/v1/admin/stats?days=7", root.Token, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var stats struct {
		Totals struct {
			Users    int64 `json:"users"`
			CheckIns int64 `json:"checkins"`
		} `json:"totals"`
		Signups []struct {
			Day   string `json:"day"`
			Count int64  `json:"count"`
		} `json:"signups"`
	}
	decode(t, env, &stats)
	assert.Equal(t, int64(2), stats.Totals.Users)
	assert.Equal(t, int64(1), stats.Totals.CheckIns)
	require.Len(t, stats.Signups, 7)
	assert.Equal(t, int64(2), stats.Signups[6].Count)

	status, env = call(t, r, http.MethodGet, "/api/v1/admin/stats?days=0", root.Token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40000, env.Code)

	status, env = call(t, r, http.MethodGet, "/api/v1/admin/users?page=1&page_size=1", root.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Items      []struct{ Username string } `json:"items"`
		Pagination struct {
			Total      int64 `json:"total"`
			TotalPages int   `json:"total_pages"`
		} `json:"pagination"`
	}
	decode(t, env, &page)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, int64(2), page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	status, env = call(t, r, http.MethodDelete, "/api/v1/admin/users/"+jsonNumber(root.User.ID), root.Token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 40061, env.Code)

	status, _ = call(t, r, http.MethodDelete, "/api/v1/admin/users/"+jsonNumber(alice.User.ID), root.Token, nil)
	require.Equal(t, http.StatusOK, status)
	status, env = call(t, r, http.MethodGet, "/api/v1/leaderboard/streak", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, string(env.Data), "alice")
}

func jsonNumber(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
