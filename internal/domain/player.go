package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/victornm/livequiz/internal/errors"
)

const MaxDisplayNameLength = 50

// Player is a participant's standing within one session. Players are never
// removed from a session, only deactivated, so the final leaderboard survives
// disconnects.
type Player struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"session_id"`
	UserID         string     `json:"user_id"`
	DisplayName    string     `json:"display_name"`
	TotalScore     int        `json:"total_score"`
	CorrectAnswers int        `json:"correct_answers"`
	IsActive       bool       `json:"is_active"`
	JoinedAt       time.Time  `json:"joined_at"`
	LeftAt         *time.Time `json:"left_at,omitempty"`
}

// NewPlayer creates an active player with a zero score. The display name is
// stored trimmed.
func NewPlayer(id, sessionID, userID, displayName string, joinedAt time.Time) (*Player, error) {
	name := strings.TrimSpace(displayName)

	var v errors.Validation
	v.Check(id != "", "id", "is required")
	v.Check(sessionID != "", "session_id", "is required")
	v.Check(userID != "", "user_id", "is required")
	v.Check(name != "", "display_name", "is required")
	v.Check(utf8.RuneCountInString(name) <= MaxDisplayNameLength, "display_name", "must be at most 50 characters")
	if err := v.Err(ReasonInvalidPlayer); err != nil {
		return nil, err
	}

	return &Player{
		ID:          id,
		SessionID:   sessionID,
		UserID:      userID,
		DisplayName: name,
		IsActive:    true,
		JoinedAt:    joinedAt,
	}, nil
}

// AddScore is the only way a player's score changes. It either applies fully
// or returns an error without touching the player.
func (p *Player) AddScore(points int, isCorrect bool) error {
	if !p.IsActive {
		return ErrPlayerInactive
	}

	if points < 0 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithReason(ReasonInvalidAnswer),
			errors.WithMessagef("points must not be negative"),
			errors.WithFieldViolation("points_earned", "must not be negative"))
	}

	p.TotalScore += points
	if isCorrect {
		p.CorrectAnswers++
	}

	return nil
}

// Leave deactivates the player. It can happen only once.
func (p *Player) Leave(at time.Time) error {
	if !p.IsActive {
		return ErrPlayerAlreadyLeft
	}

	p.IsActive = false
	p.LeftAt = &at
	return nil
}

func (p *Player) clone() Player {
	c := *p
	if p.LeftAt != nil {
		t := *p.LeftAt
		c.LeftAt = &t
	}

	return c
}
