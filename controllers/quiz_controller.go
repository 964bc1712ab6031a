package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/guildhall/services"
	"github.com/cppla/guildhall/utils"
)

// QuizController serves quizzes to players and grades submissions.
type QuizController struct {
	catalog *services.QuizCatalog
	ledger  *services.Ledger
}

func NewQuizController(catalog *services.QuizCatalog, ledger *services.Ledger) *QuizController {
	return &QuizController{catalog: catalog, ledger: ledger}
}

// ListQuizzes returns active quizzes.
func (q *QuizController) ListQuizzes(ctx *gin.Context) {
	quizzes, err := q.catalog.List(ctx.Request.Context())
	if err != nil {
		fail(ctx, err, 50020, "failed to list quizzes")
		return
	}
	utils.Success(ctx, gin.H{"items": quizzes})
}

// GetQuiz returns one active quiz without its answers.
func (q *QuizController) GetQuiz(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	quiz, err := q.catalog.Get(ctx.Request.Context(), id)
	if err != nil {
		fail(ctx, err, 50021, "failed to load quiz")
		return
	}
	utils.Success(ctx, quiz)
}

// Submit grades {"answers": [...]} and credits the points. A null entry counts as
// a wrong answer.
func (q *QuizController) Submit(ctx *gin.Context) {
	type request struct {
		Answers []*int `json:"answers" binding:"required"`
	}

	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "answers must be a list of option indexes")
		return
	}

	answers := make([]int, len(req.Answers))
	for i, a := range req.Answers {
		answers[i] = -1
		if a != nil {
			answers[i] = *a
		}
	}

	res, err := q.ledger.SubmitQuiz(ctx.Request.Context(), userID, id, answers)
	if err != nil {
		fail(ctx, err, 50022, "failed to submit quiz")
		return
	}
	utils.Success(ctx, gin.H{
		"attempt_id":      res.AttemptID,
		"score":           res.Score.Score,
		"total_questions": res.TotalQuestions,
		"points_earned":   res.PointsEarned,
		"correctness":     res.Correctness,
		"message":         res.Message,
		"total_points":    res.User.TotalPoints,
	})
}

// MyAttempts lists the caller's recent submissions.
func (q *QuizController) MyAttempts(ctx *gin.Context) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	attempts, err := q.ledger.Attempts(ctx.Request.Context(), userID, limit)
	if err != nil {
		fail(ctx, err, 50023, "failed to list attempts")
		return
	}
	utils.Success(ctx, gin.H{"items": attempts})
}
