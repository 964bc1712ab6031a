package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/guildhall/middleware"
	"github.com/cppla/guildhall/models"
	"github.com/cppla/guildhall/services"
	"github.com/cppla/guildhall/utils"
)

// AuthController handles registration, login and session endpoints.
type AuthController struct {
	accounts *services.AccountService
}

// NewAuthController creates an AuthController.
func NewAuthController(accounts *services.AccountService) *AuthController {
	return &AuthController{accounts: accounts}
}

func issueToken(ctx *gin.Context, user *models.User) (string, bool) {
	token, _, err := utils.GenerateToken(user.ID, user.Username)
	if err != nil {
		fail(ctx, err, 50004, "failed to generate token")
		return "", false
	}
	return token, true
}

// Register creates an account, optionally redeeming a referral code.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		Username     string `json:"username" binding:"required"`
		Password     string `json:"password" binding:"required"`
		ReferralCode string `json:"referral_code"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	ip := ctx.ClientIP()
	if !utils.RegistrationAllowed(ctx.Request.Context(), ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42921, "daily registration limit reached")
		return
	}

	res, err := a.accounts.Register(ctx.Request.Context(), services.RegisterInput{
		Username:     req.Username,
		Password:     req.Password,
		ReferralCode: req.ReferralCode,
		IP:           ip,
	})
	if err != nil && res.User == nil {
		fail(ctx, err, 50002, "failed to create user")
		return
	}
	utils.RecordRegistration(ctx.Request.Context(), ip)

	payload := gin.H{"user": userResponse(res.User)}
	if err != nil {
		// account exists but the referral could not be applied
		utils.L().Warn("referral at registration failed", zap.Uint("user_id", res.User.ID), zap.Error(err))
		payload["referral_error"] = referralErrorMessage(err)
	}
	if res.Referral != nil {
		payload["referral"] = gin.H{
			"bonus_points":    res.Referral.BonusPoints,
			"referrer_reward": res.Referral.ReferrerReward,
			"referrer":        res.Referral.Referrer,
		}
	}
	token, ok := issueToken(ctx, res.User)
	if !ok {
		return
	}
	payload["token"] = token
	utils.Created(ctx, payload)
}

func referralErrorMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidReferralCode):
		return "invalid referral code"
	case errors.Is(err, models.ErrAlreadyReferred):
		return "referral already applied"
	default:
		return "referral could not be applied"
	}
}

// Login exchanges credentials for a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, "invalid request payload")
		return
	}

	user, err := a.accounts.Authenticate(ctx.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(ctx, err, 50003, "failed to log in")
		return
	}
	token, ok := issueToken(ctx, user)
	if !ok {
		return
	}
	utils.Success(ctx, gin.H{"token": token, "user": userResponse(user)})
}

// Logout invalidates the token by blacklisting it until expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	claims, ok := ctx.Get(middleware.ContextClaimsKey)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid authorization header")
		return
	}
	utils.BlacklistToken(ctx.Request.Context(), ctx.GetString(middleware.ContextTokenKey), claims.(*utils.Claims).Expiry())
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current authenticated user's information.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	user, err := a.accounts.Profile(ctx.Request.Context(), userID)
	if err != nil {
		fail(ctx, err, 50005, "failed to load user")
		return
	}
	utils.Success(ctx, userResponse(user))
}
