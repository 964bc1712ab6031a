package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"

	"github.com/cppla/guildhall/config"
	"github.com/cppla/guildhall/controllers"
	"github.com/cppla/guildhall/metrics"
	"github.com/cppla/guildhall/middleware"
	"github.com/cppla/guildhall/services"
	"github.com/cppla/guildhall/utils"
)

// Services groups the domain services the HTTP layer exposes.
type Services struct {
	Streaks      *services.StreakService
	Ledger       *services.Ledger
	Leaderboards *services.Leaderboards
	Catalog      *services.QuizCatalog
	Accounts     *services.AccountService
	Admin        *services.AdminService
}

// NewServices wires the services over store and cache using cfg.
func NewServices(cfg config.AppConfig, store services.Store, cache services.Cache) *Services {
	boards := services.NewLeaderboards(store, store, cache, services.LeaderboardConfig{
		StreakSize: cfg.StreakLeaderboardSize,
		PointsSize: cfg.PointsLeaderboardSize,
		CacheTTL:   time.Duration(cfg.LeaderboardCacheSec) * time.Second,
	})
	ledger := services.NewLedger(store, store, store, services.LedgerConfig{
		ReferrerBonus: cfg.ReferrerBonus,
		ReferredBonus: cfg.ReferredBonus,
		AllowRepeat:   cfg.ReferralAllowRepeat,
	}, boards.Invalidate)
	return &Services{
		Streaks:      services.NewStreakService(store, boards.Invalidate),
		Ledger:       ledger,
		Leaderboards: boards,
		Catalog:      services.NewQuizCatalog(store, cache, time.Duration(cfg.QuizCacheSec)*time.Second),
		Accounts:     services.NewAccountService(store, ledger),
		Admin:        services.NewAdminService(store, store, boards.Invalidate),
	}
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(svc *Services) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	controllers.RegisterValidators()

	r := gin.New()
	// access log goes to its own rolling file
	gl := utils.NewRollingFileLogger(cfg, cfg.GinPath)
	r.Use(middleware.RequestID())
	r.Use(ginzap.Ginzap(gl, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(gl, true))
	r.Use(metrics.Middleware())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	authController := controllers.NewAuthController(svc.Accounts)
	streakController := controllers.NewStreakController(svc.Streaks)
	quizController := controllers.NewQuizController(svc.Catalog, svc.Ledger)
	referralController := controllers.NewReferralController(svc.Ledger)
	boardController := controllers.NewLeaderboardController(svc.Leaderboards, svc.Streaks, svc.Accounts)
	adminController := controllers.NewAdminController(svc.Catalog, svc.Admin)

	limiter := middleware.NewIPRateLimiter(cfg.RateLimitPerMinute)
	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(limiter))
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)

	api.GET("/quizzes", quizController.ListQuizzes)
	api.GET("/quizzes/:id", quizController.GetQuiz)
	api.GET("/leaderboard/:kind", boardController.Leaderboard)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware(limiter))
	protected.GET("/streak", streakController.GetStreak)
	protected.POST("/streak/checkin", streakController.CheckIn)
	protected.POST("/quizzes/:id/submit", quizController.Submit)
	protected.GET("/attempts", quizController.MyAttempts)
	protected.POST("/referrals/apply", referralController.Apply)
	protected.GET("/referrals/me", referralController.Mine)
	protected.GET("/dashboard", boardController.Dashboard)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
	admin.GET("/quizzes", adminController.ListQuizzes)
	admin.POST("/quizzes", adminController.CreateQuiz)
	admin.PUT("/quizzes/:id", adminController.UpdateQuiz)
	admin.DELETE("/quizzes/:id", adminController.DeleteQuiz)
	admin.GET("/users", adminController.ListUsers)
	admin.DELETE("/users/:id", adminController.DeleteUser)
	admin.GET("/stats", adminController.Stats)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
