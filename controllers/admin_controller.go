package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/guildhall/models"
	"github.com/cppla/guildhall/services"
	"github.com/cppla/guildhall/utils"
)

// AdminController backs the back-office: quiz authoring, user management and stats.
type AdminController struct {
	catalog *services.QuizCatalog
	admin   *services.AdminService
}

func NewAdminController(catalog *services.QuizCatalog, admin *services.AdminService) *AdminController {
	return &AdminController{catalog: catalog, admin: admin}
}

type questionPayload struct {
	Prompt        string   `json:"prompt" binding:"required"`
	Options       []string `json:"options" binding:"required,min=2,dive,required"`
	CorrectAnswer *int     `json:"correct_answer" binding:"required,min=0"`
}

type quizPayload struct {
	Title       string            `json:"title" binding:"required,max=255"`
	Description string            `json:"description"`
	Points      float64           `json:"points" binding:"min=0"`
	Active      *bool             `json:"active"`
	Questions   []questionPayload `json:"questions" binding:"dive"`
}

// toModel sanitizes the payload into a quiz. Titles, prompts and options are plain
// text; the description keeps safe markup.
func (p quizPayload) toModel() *models.Quiz {
	q := &models.Quiz{
		Title:       utils.SanitizePlain(p.Title),
		Description: utils.Sanitize(p.Description),
		Points:      p.Points,
		Active:      p.Active == nil || *p.Active,
	}
	for _, qp := range p.Questions {
		options := make([]string, len(qp.Options))
		for i, o := range qp.Options {
			options[i] = utils.SanitizePlain(o)
		}
		q.Questions = append(q.Questions, models.QuizQuestion{
			Prompt:        utils.SanitizePlain(qp.Prompt),
			Options:       options,
			CorrectAnswer: *qp.CorrectAnswer,
		})
	}
	return q
}

func bindQuiz(ctx *gin.Context) (*models.Quiz, bool) {
	var p quizPayload
	if err := ctx.ShouldBindJSON(&p); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40060, "invalid quiz payload")
		return nil, false
	}
	return p.toModel(), true
}

// ListQuizzes returns every quiz with answers.
func (a *AdminController) ListQuizzes(ctx *gin.Context) {
	quizzes, err := a.catalog.AllForAdmin(ctx.Request.Context())
	if err != nil {
		fail(ctx, err, 50060, "failed to list quizzes")
		return
	}
	utils.Success(ctx, gin.H{"items": quizzes})
}

func (a *AdminController) CreateQuiz(ctx *gin.Context) {
	quiz, ok := bindQuiz(ctx)
	if !ok {
		return
	}
	if err := a.catalog.Create(ctx.Request.Context(), quiz); err != nil {
		fail(ctx, err, 50061, "failed to create quiz")
		return
	}
	utils.Created(ctx, quiz)
}

func (a *AdminController) UpdateQuiz(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	quiz, ok := bindQuiz(ctx)
	if !ok {
		return
	}
	quiz.ID = id
	if err := a.catalog.Update(ctx.Request.Context(), quiz); err != nil {
		fail(ctx, err, 50062, "failed to update quiz")
		return
	}
	utils.Success(ctx, quiz)
}

func (a *AdminController) DeleteQuiz(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := a.catalog.Delete(ctx.Request.Context(), id); err != nil {
		fail(ctx, err, 50063, "failed to delete quiz")
		return
	}
	utils.Success(ctx, gin.H{"message": "quiz deleted"})
}

// ListUsers returns paginated users.
func (a *AdminController) ListUsers(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	res, err := a.admin.Users(ctx.Request.Context(), page, pageSize)
	if err != nil {
		fail(ctx, err, 50000, "failed to retrieve users")
		return
	}
	utils.Success(ctx, gin.H{
		"items": res.Items,
		"pagination": gin.H{
			"page":        res.Page,
			"page_size":   res.PageSize,
			"total":       res.Total,
			"total_pages": int((res.Total + int64(res.PageSize) - 1) / int64(res.PageSize)),
		},
	})
}

// DeleteUser removes a user with their streak, attempts, referrals and check-ins.
func (a *AdminController) DeleteUser(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if self, _ := getUserID(ctx); self == id {
		utils.Error(ctx, http.StatusBadRequest, 40061, "cannot delete your own account")
		return
	}
	if err := a.admin.DeleteUser(ctx.Request.Context(), id); err != nil {
		fail(ctx, err, 50064, "failed to delete user")
		return
	}
	utils.Success(ctx, gin.H{"message": "user deleted"})
}

// Stats returns totals and per-day charts for ?days= (default 30, at most 90).
func (a *AdminController) Stats(ctx *gin.Context) {
	days := 30
	if v := ctx.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40062, "days must be a number")
			return
		}
		days = n
	}
	stats, err := a.admin.Stats(ctx.Request.Context(), days)
	if err != nil {
		fail(ctx, err, 50065, "failed to load stats")
		return
	}
	utils.Success(ctx, stats)
}
