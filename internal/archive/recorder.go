// Package archive persists finished session outcomes to Postgres so results
// survive the authority closing the room.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizroom-client/internal/domain"
)

// Entry is one participant's archived outcome for one finished session.
type Entry struct {
	ID             int64
	RoomCode       string
	SessionID      int64
	MemberID       int64
	Nickname       string
	Position       int
	TotalScore     int
	TotalQuestions int
	FinishedAt     time.Time
}

// Recorder writes and reads archived outcomes.
type Recorder struct {
	pool *pgxpool.Pool
}

func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// RecordFinish archives the standings of a finished session, one row per
// participant. Re-recording the same session replaces its rows.
func (r *Recorder) RecordFinish(ctx context.Context, roomCode string, session *domain.Session, standings []domain.LeaderboardEntry) error {
	if session == nil || session.Status != domain.StatusFinished {
		return fmt.Errorf("session is not finished")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM session_results WHERE session_id=$1`, session.ID); err != nil {
		return fmt.Errorf("clear previous archive rows: %w", err)
	}
	now := time.Now().UTC()
	for _, entry := range standings {
		_, err := tx.Exec(ctx, `
			INSERT INTO session_results
				(room_code, session_id, member_id, nickname, position, total_score, total_questions, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			roomCode, session.ID, entry.MemberID, entry.Nickname,
			entry.Position, entry.TotalScore, session.TotalQuestions, now,
		)
		if err != nil {
			return fmt.Errorf("archive result for member %d: %w", entry.MemberID, err)
		}
	}
	return tx.Commit(ctx)
}

// RoomHistory returns every archived outcome for a room, newest session
// first, best position first within a session.
func (r *Recorder) RoomHistory(ctx context.Context, roomCode string) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, room_code, session_id, member_id, nickname, position, total_score, total_questions, finished_at
		FROM session_results
		WHERE room_code=$1
		ORDER BY finished_at DESC, position ASC`, roomCode)
	if err != nil {
		return nil, fmt.Errorf("query room history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// MemberHistory returns a member's archived outcomes across rooms, newest
// first.
func (r *Recorder) MemberHistory(ctx context.Context, memberID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, room_code, session_id, member_id, nickname, position, total_score, total_questions, finished_at
		FROM session_results
		WHERE member_id=$1
		ORDER BY finished_at DESC`, memberID)
	if err != nil {
		return nil, fmt.Errorf("query member history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanEntries(rows pgxRows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(&e.ID, &e.RoomCode, &e.SessionID, &e.MemberID, &e.Nickname,
			&e.Position, &e.TotalScore, &e.TotalQuestions, &e.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
