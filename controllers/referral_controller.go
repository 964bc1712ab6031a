package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/guildhall/services"
	"github.com/cppla/guildhall/utils"
)

// ReferralController lets users redeem and inspect referral codes.
type ReferralController struct {
	ledger *services.Ledger
}

func NewReferralController(ledger *services.Ledger) *ReferralController {
	return &ReferralController{ledger: ledger}
}

// Apply redeems {"code": "..."} for the caller.
func (r *ReferralController) Apply(ctx *gin.Context) {
	type request struct {
		Code string `json:"code" binding:"required"`
	}

	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40032, "referral code is required")
		return
	}

	res, err := r.ledger.ApplyReferral(ctx.Request.Context(), userID, req.Code)
	if err != nil {
		fail(ctx, err, 50032, "failed to apply referral")
		return
	}
	utils.Success(ctx, gin.H{
		"bonus_points":    res.BonusPoints,
		"referrer_reward": res.ReferrerReward,
		"referrer":        res.Referrer,
		"total_points":    res.User.TotalPoints,
	})
}

// Mine reports the caller's code and referral count.
func (r *ReferralController) Mine(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	summary, err := r.ledger.Summary(ctx.Request.Context(), userID)
	if err != nil {
		fail(ctx, err, 50033, "failed to load referrals")
		return
	}
	utils.Success(ctx, summary)
}
