package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cppla/guildhall/models"
)

// LeaderboardKind selects the ranking metric.
type LeaderboardKind string

const (
	StreakBoard   LeaderboardKind = "streak"
	QuizBoard     LeaderboardKind = "quiz"
	ReferralBoard LeaderboardKind = "referral"
	TotalBoard    LeaderboardKind = "total"
)

const leaderboardCachePrefix = "cache:leaderboard:"

// ParseLeaderboardKind validates a kind coming from a request path.
func ParseLeaderboardKind(s string) (LeaderboardKind, error) {
	switch k := LeaderboardKind(s); k {
	case StreakBoard, QuizBoard, ReferralBoard, TotalBoard:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown leaderboard %q", models.ErrValidation, s)
	}
}

// LeaderboardConfig sets page sizes and cache lifetime.
type LeaderboardConfig struct {
	StreakSize int
	PointsSize int
	CacheTTL   time.Duration
}

// Leaderboards serves the ranked lists. Reads never mutate state.
type Leaderboards struct {
	streaks StreakStore
	users   UserStore
	cache   Cache
	cfg     LeaderboardConfig
	sf      singleflight.Group
	keys    keyspace
}

func NewLeaderboards(streaks StreakStore, users UserStore, cache Cache, cfg LeaderboardConfig) *Leaderboards {
	if cfg.StreakSize <= 0 {
		cfg.StreakSize = 20
	}
	if cfg.PointsSize <= 0 {
		cfg.PointsSize = 100
	}
	l := &Leaderboards{streaks: streaks, users: users, cache: orNop(cache), cfg: cfg}
	l.keys.prefix = leaderboardCachePrefix
	return l
}

// Size is the maximum number of entries kind returns.
func (l *Leaderboards) Size(kind LeaderboardKind) int {
	if kind == StreakBoard {
		return l.cfg.StreakSize
	}
	return l.cfg.PointsSize
}

// Top returns up to limit entries of kind, ranked from 1. A limit of zero, or one
// above the board size, yields the full board.
func (l *Leaderboards) Top(ctx context.Context, kind LeaderboardKind, limit int) ([]models.LeaderboardEntry, error) {
	size := l.Size(kind)
	if limit <= 0 || limit > size {
		limit = size
	}
	key := l.keys.key(string(kind), strconv.Itoa(limit))

	v, err, _ := l.sf.Do(key, func() (interface{}, error) {
		lctx := detached(ctx)
		return cached(lctx, l.cache, key, l.cfg.CacheTTL, func() ([]models.LeaderboardEntry, error) {
			return l.load(lctx, kind, limit)
		})
	})
	if err != nil {
		return nil, err
	}
	entries := v.([]models.LeaderboardEntry)
	out := make([]models.LeaderboardEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (l *Leaderboards) load(ctx context.Context, kind LeaderboardKind, limit int) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	var err error
	switch kind {
	case StreakBoard:
		entries, err = l.streaks.TopStreaks(ctx, limit)
	case QuizBoard:
		entries, err = l.users.TopUsers(ctx, models.QuizPointsColumn, limit)
	case ReferralBoard:
		entries, err = l.users.TopUsers(ctx, models.ReferralPointsColumn, limit)
	case TotalBoard:
		entries, err = l.users.TopUsers(ctx, models.TotalPointsColumn, limit)
	default:
		return nil, fmt.Errorf("%w: unknown leaderboard %q", models.ErrValidation, kind)
	}
	if err != nil {
		return nil, err
	}
	return Rank(entries), nil
}

// Rank numbers entries 1..n in their stored order.
func Rank(entries []models.LeaderboardEntry) []models.LeaderboardEntry {
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Invalidate drops every cached board.
func (l *Leaderboards) Invalidate(ctx context.Context) {
	l.keys.invalidate(ctx, l.cache)
}
