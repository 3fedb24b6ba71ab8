package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/trivia-tender/trivia"
)

// AttemptStore persists judged trivia answers and serves the aggregate
// queries behind the leaderboard commands. It implements
// trivia.AttemptRecorder.
type AttemptStore struct {
	DB *sql.DB
}

// RecordAttempt stores one judged answer. Failures are logged, never
// propagated; stats are best-effort.
func (a *AttemptStore) RecordAttempt(ctx context.Context, channel, user string, q *trivia.Question, correct bool, elapsed time.Duration) {
	_, err := a.DB.ExecContext(ctx,
		`INSERT INTO trivia_attempts(channel, username, question, category, correct, elapsed_ms)
		 VALUES($1,$2,$3,$4,$5,$6)`,
		channel, user, q.Text, q.Category, correct, elapsed.Milliseconds())
	if err != nil {
		slog.Warn("record attempt failed", slog.String("channel", channel), slog.String("user", user), slog.Any("err", err))
	}
}

// UserStats aggregates one user's attempts in a channel.
type UserStats struct {
	User     string
	Correct  int
	Total    int
	AvgMs    int64
	BestMs   int64
	Accuracy float64
}

// LeaderRow is one leaderboard entry.
type LeaderRow struct {
	User    string
	Correct int
	Total   int
}

// TopByCorrect returns the channel leaderboard ordered by correct answers.
func (a *AttemptStore) TopByCorrect(ctx context.Context, channel string, limit int) ([]LeaderRow, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := a.DB.QueryContext(ctx,
		`SELECT username,
		        COUNT(*) FILTER (WHERE correct) AS correct,
		        COUNT(*) AS total
		 FROM trivia_attempts
		 WHERE channel = $1
		 GROUP BY username
		 ORDER BY correct DESC, total ASC
		 LIMIT $2`, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []LeaderRow
	for rows.Next() {
		var r LeaderRow
		if err := rows.Scan(&r.User, &r.Correct, &r.Total); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StatsFor returns one user's aggregate stats in a channel. sql.ErrNoRows is
// returned unchanged when the user never answered.
func (a *AttemptStore) StatsFor(ctx context.Context, channel, user string) (*UserStats, error) {
	var s UserStats
	var avg, best sql.NullInt64
	err := a.DB.QueryRowContext(ctx,
		`SELECT username,
		        COUNT(*) FILTER (WHERE correct) AS correct,
		        COUNT(*) AS total,
		        AVG(elapsed_ms) FILTER (WHERE correct)::BIGINT,
		        MIN(elapsed_ms) FILTER (WHERE correct)
		 FROM trivia_attempts
		 WHERE channel = $1 AND LOWER(username) = LOWER($2)
		 GROUP BY username`, channel, user).
		Scan(&s.User, &s.Correct, &s.Total, &avg, &best)
	if err != nil {
		return nil, err
	}
	s.AvgMs = avg.Int64
	s.BestMs = best.Int64
	if s.Total > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.Total)
	}
	return &s, nil
}

// RankFor returns the user's 1-based leaderboard position by correct answers.
func (a *AttemptStore) RankFor(ctx context.Context, channel, user string) (int, error) {
	var rank int
	err := a.DB.QueryRowContext(ctx,
		`SELECT rank FROM (
		    SELECT username,
		           RANK() OVER (ORDER BY COUNT(*) FILTER (WHERE correct) DESC) AS rank
		    FROM trivia_attempts
		    WHERE channel = $1
		    GROUP BY username
		 ) ranked
		 WHERE LOWER(username) = LOWER($2)`, channel, user).Scan(&rank)
	if err != nil {
		return 0, err
	}
	return rank, nil
}

// StreakRow is a user's current run of consecutive correct answers.
type StreakRow struct {
	User   string
	Streak int
}

// CurrentStreaks returns users whose most recent attempts in the channel are
// an unbroken run of correct answers, longest first.
func (a *AttemptStore) CurrentStreaks(ctx context.Context, channel string, limit int) ([]StreakRow, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := a.DB.QueryContext(ctx,
		`SELECT username, COUNT(*) AS streak
		 FROM trivia_attempts t
		 WHERE channel = $1 AND correct
		   AND NOT EXISTS (
		     SELECT 1 FROM trivia_attempts x
		     WHERE x.channel = t.channel AND x.username = t.username
		       AND NOT x.correct AND x.created_at > t.created_at
		   )
		 GROUP BY username
		 HAVING COUNT(*) > 0
		 ORDER BY streak DESC
		 LIMIT $2`, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("streaks query: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []StreakRow
	for rows.Next() {
		var r StreakRow
		if err := rows.Scan(&r.User, &r.Streak); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ChannelSummary aggregates a channel's activity.
type ChannelSummary struct {
	Questions int
	Correct   int
	Players   int
}

// SummaryFor returns the channel-wide totals.
func (a *AttemptStore) SummaryFor(ctx context.Context, channel string) (*ChannelSummary, error) {
	var s ChannelSummary
	err := a.DB.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE correct),
		        COUNT(DISTINCT username)
		 FROM trivia_attempts
		 WHERE channel = $1`, channel).
		Scan(&s.Questions, &s.Correct, &s.Players)
	if err != nil {
		return nil, fmt.Errorf("summary query: %w", err)
	}
	return &s, nil
}
