package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/guildhall/config"
	"github.com/cppla/guildhall/middleware"
	"github.com/cppla/guildhall/models"
	"github.com/cppla/guildhall/utils"
)

type errorMapping struct {
	err     error
	status  int
	code    int
	message string // empty means err.Error()
}

var errorMappings = []errorMapping{
	{models.ErrValidation, http.StatusBadRequest, 40000, ""},
	{models.ErrSelfReferral, http.StatusBadRequest, 40031, ""},
	{models.ErrInvalidCredentials, http.StatusUnauthorized, 40106, ""},
	{models.ErrUserNotFound, http.StatusNotFound, 40401, "user not found"},
	{models.ErrQuizNotFound, http.StatusNotFound, 40420, "quiz not found"},
	{models.ErrInvalidReferralCode, http.StatusNotFound, 40430, "invalid referral code"},
	{models.ErrUsernameTaken, http.StatusConflict, 40901, "username already exists"},
	{models.ErrAlreadyCheckedIn, http.StatusConflict, 40910, "already checked in today"},
	{models.ErrAlreadyReferred, http.StatusConflict, 40930, "referral already applied"},
}

// fail maps a service error to the response envelope. Unknown errors are logged and
// reported as a 500 with fallbackCode and a generic message.
func fail(ctx *gin.Context, err error, fallbackCode int, fallbackMsg string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			utils.Error(ctx, m.status, m.code, msg)
			return
		}
	}
	utils.L().Error(fallbackMsg,
		zap.String("path", ctx.FullPath()),
		zap.String("request_id", ctx.GetString(middleware.ContextRequestIDKey)),
		zap.Uint("user_id", ctx.GetUint(middleware.ContextUserIDKey)),
		zap.Error(err),
	)
	utils.Error(ctx, http.StatusInternalServerError, fallbackCode, fallbackMsg)
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok && id > 0
}

// requireUser writes 401 and returns false when the request carries no user.
func requireUser(ctx *gin.Context) (uint, bool) {
	id, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
	}
	return id, ok
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func parseID(ctx *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || n == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid "+name)
		return 0, false
	}
	return uint(n), true
}

func userResponse(user *models.User) gin.H {
	return gin.H{
		"id":                user.ID,
		"username":          user.Username,
		"referral_code":     user.ReferralCode,
		"quiz_points":       user.QuizPoints,
		"referral_points":   user.ReferralPoints,
		"total_points":      user.TotalPoints,
		"quizzes_completed": user.QuizzesCompleted,
		"created_at":        user.CreatedAt,
		"is_admin":          config.Get().IsAdmin(user.Username),
	}
}
