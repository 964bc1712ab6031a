package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cppla/guildhall/models"
)

const quizCachePrefix = "cache:quiz:"

// PublicQuestion is a question with its answer removed.
type PublicQuestion struct {
	ID       uint     `json:"id"`
	Position int      `json:"position"`
	Prompt   string   `json:"prompt"`
	Options  []string `json:"options"`
}

// PublicQuiz is the player-facing view of a quiz.
type PublicQuiz struct {
	ID            uint             `json:"id"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Points        float64          `json:"points"`
	QuestionCount int              `json:"question_count"`
	Questions     []PublicQuestion `json:"questions,omitempty"`
}

func publicView(q models.Quiz, withQuestions bool) PublicQuiz {
	out := PublicQuiz{
		ID:            q.ID,
		Title:         q.Title,
		Description:   q.Description,
		Points:        q.Points,
		QuestionCount: len(q.Questions),
	}
	if withQuestions {
		out.Questions = make([]PublicQuestion, 0, len(q.Questions))
		for _, qq := range q.Questions {
			out.Questions = append(out.Questions, PublicQuestion{ID: qq.ID, Position: qq.Position, Prompt: qq.Prompt, Options: qq.Options})
		}
	}
	return out
}

// QuizCatalog serves quiz reads through the cache and owns quiz authoring.
type QuizCatalog struct {
	store QuizStore
	cache Cache
	ttl   time.Duration
	sf    singleflight.Group
	keys  keyspace
}

func NewQuizCatalog(store QuizStore, cache Cache, ttl time.Duration) *QuizCatalog {
	c := &QuizCatalog{store: store, cache: orNop(cache), ttl: ttl}
	c.keys.prefix = quizCachePrefix
	return c
}

// List returns active quizzes without their questions.
func (c *QuizCatalog) List(ctx context.Context) ([]PublicQuiz, error) {
	key := c.keys.key("list")
	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		lctx := detached(ctx)
		return cached(lctx, c.cache, key, c.ttl, func() ([]PublicQuiz, error) {
			quizzes, err := c.store.ListQuizzes(lctx, true)
			if err != nil {
				return nil, err
			}
			out := make([]PublicQuiz, 0, len(quizzes))
			for _, q := range quizzes {
				out = append(out, publicView(q, false))
			}
			return out, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return v.([]PublicQuiz), nil
}

// Get returns an active quiz with its questions but no answers.
func (c *QuizCatalog) Get(ctx context.Context, id uint) (PublicQuiz, error) {
	key := c.keys.key(strconv.FormatUint(uint64(id), 10))
	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		lctx := detached(ctx)
		return cached(lctx, c.cache, key, c.ttl, func() (PublicQuiz, error) {
			q, err := c.store.FindQuiz(lctx, id)
			if err != nil {
				return PublicQuiz{}, err
			}
			if !q.Active {
				return PublicQuiz{}, models.ErrQuizNotFound
			}
			return publicView(*q, true), nil
		})
	})
	if err != nil {
		return PublicQuiz{}, err
	}
	return v.(PublicQuiz), nil
}

// AllForAdmin lists every quiz, answers included.
func (c *QuizCatalog) AllForAdmin(ctx context.Context) ([]models.Quiz, error) {
	return c.store.ListQuizzes(ctx, false)
}

// ValidateQuiz checks a quiz definition before it is stored.
func ValidateQuiz(q *models.Quiz) error {
	if strings.TrimSpace(q.Title) == "" {
		return fmt.Errorf("%w: title is required", models.ErrValidation)
	}
	if q.Points < 0 {
		return fmt.Errorf("%w: points must not be negative", models.ErrValidation)
	}
	for i, qq := range q.Questions {
		if strings.TrimSpace(qq.Prompt) == "" {
			return fmt.Errorf("%w: question %d has no prompt", models.ErrValidation, i+1)
		}
		if len(qq.Options) < 2 {
			return fmt.Errorf("%w: question %d needs at least two options", models.ErrValidation, i+1)
		}
		if qq.CorrectAnswer < 0 || qq.CorrectAnswer >= len(qq.Options) {
			return fmt.Errorf("%w: question %d correct_answer is out of range", models.ErrValidation, i+1)
		}
	}
	return nil
}

func numberQuestions(q *models.Quiz) {
	for i := range q.Questions {
		q.Questions[i].Position = i
	}
}

func (c *QuizCatalog) Create(ctx context.Context, q *models.Quiz) error {
	if err := ValidateQuiz(q); err != nil {
		return err
	}
	numberQuestions(q)
	if err := c.store.CreateQuiz(ctx, q); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

func (c *QuizCatalog) Update(ctx context.Context, q *models.Quiz) error {
	if err := ValidateQuiz(q); err != nil {
		return err
	}
	numberQuestions(q)
	if err := c.store.UpdateQuiz(ctx, q); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

func (c *QuizCatalog) Delete(ctx context.Context, id uint) error {
	if err := c.store.DeleteQuiz(ctx, id); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

// Invalidate drops every cached quiz view.
func (c *QuizCatalog) Invalidate(ctx context.Context) {
	c.keys.invalidate(ctx, c.cache)
}
