package domain

import (
	"time"

	"github.com/victornm/livequiz/internal/errors"
)

// Answer is an immutable record of one player's response to one question.
type Answer struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	PlayerID         string    `json:"player_id"`
	QuestionID       string    `json:"question_id"`
	SelectedItemID   string    `json:"selected_item_id"`
	IsCorrect        bool      `json:"is_correct"`
	PointsEarned     int       `json:"points_earned"`
	TimeTakenSeconds int       `json:"time_taken_seconds"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// Submission carries what a player sends for one question. Correctness and
// points are decided by the quiz content owner and trusted as given.
type Submission struct {
	AnswerID         string
	PlayerID         string
	QuestionID       string
	SelectedItemID   string
	IsCorrect        bool
	PointsEarned     int
	TimeTakenSeconds int
}

func NewAnswer(sessionID string, sub Submission, submittedAt time.Time) (*Answer, error) {
	var v errors.Validation
	v.Check(sub.AnswerID != "", "id", "is required")
	v.Check(sessionID != "", "session_id", "is required")
	v.Check(sub.PlayerID != "", "player_id", "is required")
	v.Check(sub.QuestionID != "", "question_id", "is required")
	v.Check(sub.SelectedItemID != "", "selected_item_id", "is required")
	v.Check(sub.PointsEarned >= 0, "points_earned", "must not be negative")
	v.Check(sub.TimeTakenSeconds >= 0, "time_taken_seconds", "must not be negative")
	if err := v.Err(ReasonInvalidAnswer); err != nil {
		return nil, err
	}

	return &Answer{
		ID:               sub.AnswerID,
		SessionID:        sessionID,
		PlayerID:         sub.PlayerID,
		QuestionID:       sub.QuestionID,
		SelectedItemID:   sub.SelectedItemID,
		IsCorrect:        sub.IsCorrect,
		PointsEarned:     sub.PointsEarned,
		TimeTakenSeconds: sub.TimeTakenSeconds,
		SubmittedAt:      submittedAt,
	}, nil
}
