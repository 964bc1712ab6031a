package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/guildhall/services"
	"github.com/cppla/guildhall/utils"
)

// LeaderboardController serves rankings and the personal dashboard.
type LeaderboardController struct {
	boards   *services.Leaderboards
	streaks  *services.StreakService
	accounts *services.AccountService
}

func NewLeaderboardController(boards *services.Leaderboards, streaks *services.StreakService, accounts *services.AccountService) *LeaderboardController {
	return &LeaderboardController{boards: boards, streaks: streaks, accounts: accounts}
}

// Leaderboard returns GET /leaderboard/:kind, optionally shortened by ?limit=.
func (l *LeaderboardController) Leaderboard(ctx *gin.Context) {
	kind, err := services.ParseLeaderboardKind(ctx.Param("kind"))
	if err != nil {
		fail(ctx, err, 50040, "failed to load leaderboard")
		return
	}
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	entries, err := l.boards.Top(ctx.Request.Context(), kind, limit)
	if err != nil {
		fail(ctx, err, 50040, "failed to load leaderboard")
		return
	}
	utils.Success(ctx, gin.H{"kind": kind, "items": entries})
}

// Dashboard returns the caller's balances and streak next to the streak leaders.
func (l *LeaderboardController) Dashboard(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	c := ctx.Request.Context()
	user, err := l.accounts.Profile(c, userID)
	if err != nil {
		fail(ctx, err, 50041, "failed to load dashboard")
		return
	}
	streak, err := l.streaks.GetStreak(c, userID)
	if err != nil {
		fail(ctx, err, 50041, "failed to load dashboard")
		return
	}
	top, err := l.boards.Top(c, services.StreakBoard, 0)
	if err != nil {
		fail(ctx, err, 50041, "failed to load dashboard")
		return
	}
	utils.Success(ctx, gin.H{
		"user":        userResponse(user),
		"streak":      streak,
		"checked_in":  streak.LastCheckin == l.streaks.Today(),
		"top_streaks": top,
	})
}
