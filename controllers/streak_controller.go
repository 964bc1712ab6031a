package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/guildhall/models"
	"github.com/cppla/guildhall/services"
	"github.com/cppla/guildhall/utils"
)

// StreakController handles daily check-in endpoints.
type StreakController struct {
	streaks *services.StreakService
}

func NewStreakController(streaks *services.StreakService) *StreakController {
	return &StreakController{streaks: streaks}
}

// GetStreak returns the caller's streak, or a zero streak before the first check-in.
func (s *StreakController) GetStreak(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	st, err := s.streaks.GetStreak(ctx.Request.Context(), userID)
	if err != nil {
		fail(ctx, err, 50031, "failed to load streak")
		return
	}
	utils.Success(ctx, st)
}

// CheckIn records today's check-in, or the day given as {"date": "YYYY-MM-DD"}.
func (s *StreakController) CheckIn(ctx *gin.Context) {
	type request struct {
		Date string `json:"date" binding:"omitempty,calendar_date"`
	}

	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req request
	// the body is optional
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		utils.Error(ctx, http.StatusBadRequest, 40030, "date must be YYYY-MM-DD")
		return
	}
	var day models.Date
	if req.Date != "" {
		day, _ = models.ParseDate(req.Date)
	}

	res, err := s.streaks.CheckIn(ctx.Request.Context(), userID, day)
	if err != nil {
		fail(ctx, err, 50030, "failed to record check-in")
		return
	}
	utils.Success(ctx, res)
}
