package services

import (
	"context"
	"fmt"
	"time"

	"github.com/cppla/guildhall/models"
)

const maxStatsDays = 90

// Stats is the admin dashboard payload.
type Stats struct {
	Totals   models.Totals     `json:"totals"`
	Signups  []models.DayCount `json:"signups"`
	CheckIns []models.DayCount `json:"checkins"`
}

// UserPage is one page of the admin user list.
type UserPage struct {
	Items    []models.User `json:"items"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Total    int64         `json:"total"`
}

// AdminService backs the back-office endpoints.
type AdminService struct {
	users    UserStore
	stats    StatsStore
	now      func() time.Time
	onChange func(ctx context.Context)
}

func NewAdminService(users UserStore, stats StatsStore, onChange func(ctx context.Context)) *AdminService {
	return &AdminService{users: users, stats: stats, now: time.Now, onChange: onChange}
}

func (a *AdminService) Users(ctx context.Context, page, pageSize int) (UserPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	items, total, err := a.users.ListUsers(ctx, page, pageSize)
	if err != nil {
		return UserPage{}, err
	}
	return UserPage{Items: items, Page: page, PageSize: pageSize, Total: total}, nil
}

// DeleteUser removes a user and everything they own.
func (a *AdminService) DeleteUser(ctx context.Context, id uint) error {
	if err := a.users.DeleteUser(ctx, id); err != nil {
		return err
	}
	if a.onChange != nil {
		a.onChange(ctx)
	}
	return nil
}

// Stats returns platform totals and per-day charts covering the last days days,
// today included. Days without activity are reported with a zero count.
func (a *AdminService) Stats(ctx context.Context, days int) (Stats, error) {
	if days < 1 || days > maxStatsDays {
		return Stats{}, fmt.Errorf("%w: days must be between 1 and %d", models.ErrValidation, maxStatsDays)
	}
	today := models.DateOf(a.now())
	since := today.AddDays(-(days - 1))

	totals, err := a.stats.Totals(ctx)
	if err != nil {
		return Stats{}, err
	}
	signups, err := a.stats.SignupsByDay(ctx, since)
	if err != nil {
		return Stats{}, err
	}
	checkins, err := a.stats.CheckInsByDay(ctx, since)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Totals:   totals,
		Signups:  FillDays(signups, since, today),
		CheckIns: FillDays(checkins, since, today),
	}, nil
}

// FillDays returns one bucket per day from since to until inclusive.
func FillDays(counts []models.DayCount, since, until models.Date) []models.DayCount {
	byDay := make(map[string]int64, len(counts))
	for _, c := range counts {
		byDay[c.Day] += c.Count
	}
	out := make([]models.DayCount, 0, until.DaysSince(since)+1)
	for d := since; !d.After(until.Date); d = d.AddDays(1) {
		day := d.String()
		out = append(out, models.DayCount{Day: day, Count: byDay[day]})
	}
	return out
}
