// Package leaderboard renders trivia standings for chat: top scorers,
// per-user stats, ranks, streaks, and channel summaries.
package leaderboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/trivia-tender/db"
)

// Store is the query surface the leaderboard needs. *db.AttemptStore
// satisfies it.
type Store interface {
	TopByCorrect(ctx context.Context, channel string, limit int) ([]db.LeaderRow, error)
	StatsFor(ctx context.Context, channel, user string) (*db.UserStats, error)
	RankFor(ctx context.Context, channel, user string) (int, error)
	CurrentStreaks(ctx context.Context, channel string, limit int) ([]db.StreakRow, error)
	SummaryFor(ctx context.Context, channel string) (*db.ChannelSummary, error)
}

// Board formats chat replies for the leaderboard commands. A nil store
// answers every command with an unavailable notice.
type Board struct {
	store Store
}

func New(store Store) *Board {
	return &Board{store: store}
}

const unavailable = "📊 Stats are not available right now."

var medals = []string{"🥇", "🥈", "🥉"}

// Top renders the channel leaderboard.
func (b *Board) Top(ctx context.Context, channel string) string {
	if b.store == nil {
		return unavailable
	}
	rows, err := b.store.TopByCorrect(ctx, channel, 5)
	if err != nil {
		slog.Warn("leaderboard query failed", slog.String("channel", channel), slog.Any("err", err))
		return unavailable
	}
	if len(rows) == 0 {
		return "📊 No trivia answers recorded yet. Start with !trivia!"
	}
	parts := make([]string, 0, len(rows))
	for i, r := range rows {
		badge := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			badge = medals[i]
		}
		parts = append(parts, fmt.Sprintf("%s %s (%d/%d)", badge, r.User, r.Correct, r.Total))
	}
	return "🏆 Trivia leaderboard: " + strings.Join(parts, " | ")
}

// Stats renders one user's record.
func (b *Board) Stats(ctx context.Context, channel, user string) string {
	if b.store == nil {
		return unavailable
	}
	s, err := b.store.StatsFor(ctx, channel, user)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Sprintf("📊 @%s hasn't answered any trivia yet.", user)
	}
	if err != nil {
		slog.Warn("stats query failed", slog.String("channel", channel), slog.Any("err", err))
		return unavailable
	}
	reply := fmt.Sprintf("📊 @%s: %d/%d correct (%.0f%%)", s.User, s.Correct, s.Total, s.Accuracy*100)
	if s.BestMs > 0 {
		reply += fmt.Sprintf(", fastest %.1fs", float64(s.BestMs)/1000)
	}
	return reply
}

// Rank renders one user's leaderboard position.
func (b *Board) Rank(ctx context.Context, channel, user string) string {
	if b.store == nil {
		return unavailable
	}
	rank, err := b.store.RankFor(ctx, channel, user)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Sprintf("📊 @%s isn't on the leaderboard yet.", user)
	}
	if err != nil {
		slog.Warn("rank query failed", slog.String("channel", channel), slog.Any("err", err))
		return unavailable
	}
	return fmt.Sprintf("📊 @%s is ranked #%d in this channel.", user, rank)
}

// Streaks renders the live correct-answer streaks.
func (b *Board) Streaks(ctx context.Context, channel string) string {
	if b.store == nil {
		return unavailable
	}
	rows, err := b.store.CurrentStreaks(ctx, channel, 5)
	if err != nil {
		slog.Warn("streaks query failed", slog.String("channel", channel), slog.Any("err", err))
		return unavailable
	}
	if len(rows) == 0 {
		return "🔥 No active streaks. Answer correctly to start one!"
	}
	parts := make([]string, 0, len(rows))
	for _, r := range rows {
		parts = append(parts, fmt.Sprintf("%s (%d)", r.User, r.Streak))
	}
	return "🔥 Current streaks: " + strings.Join(parts, " | ")
}

// Summary renders channel-wide totals.
func (b *Board) Summary(ctx context.Context, channel string) string {
	if b.store == nil {
		return unavailable
	}
	s, err := b.store.SummaryFor(ctx, channel)
	if err != nil {
		slog.Warn("summary query failed", slog.String("channel", channel), slog.Any("err", err))
		return unavailable
	}
	if s.Questions == 0 {
		return "📊 No trivia played here yet. Start with !trivia!"
	}
	pct := float64(s.Correct) / float64(s.Questions) * 100
	return fmt.Sprintf("📊 Channel totals: %d answers from %d players, %d correct (%.0f%%).",
		s.Questions, s.Players, s.Correct, pct)
}
