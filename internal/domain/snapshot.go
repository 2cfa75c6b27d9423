package domain

import (
	"fmt"
	"time"

	"github.com/victornm/livequiz/internal/errors"
)

// SessionSnapshot is the persisted form of a Session, including the full
// roster and answer log in their original order.
type SessionSnapshot struct {
	ID                   string       `json:"id"`
	QuizID               string       `json:"quiz_id"`
	HostID               string       `json:"host_id"`
	Code                 string       `json:"code"`
	State                SessionState `json:"state"`
	MaxPlayers           int          `json:"max_players"`
	CurrentQuestionIndex int          `json:"current_question_index"`
	TotalQuestions       int          `json:"total_questions"`
	CreatedAt            time.Time    `json:"created_at"`
	StartedAt            *time.Time   `json:"started_at,omitempty"`
	CompletedAt          *time.Time   `json:"completed_at,omitempty"`
	CancelledAt          *time.Time   `json:"cancelled_at,omitempty"`
	Players              []Player     `json:"players"`
	Answers              []Answer     `json:"answers"`
	Version              int64        `json:"version"`
}

func (s *Session) Snapshot() SessionSnapshot {
	return SessionSnapshot{
		ID:                   s.id,
		QuizID:               s.quizID,
		HostID:               s.hostID,
		Code:                 s.code,
		State:                s.state,
		MaxPlayers:           s.maxPlayers,
		CurrentQuestionIndex: s.currentQuestionIndex,
		TotalQuestions:       s.totalQuestions,
		CreatedAt:            s.createdAt,
		StartedAt:            copyTime(s.startedAt),
		CompletedAt:          copyTime(s.completedAt),
		CancelledAt:          copyTime(s.cancelledAt),
		Players:              s.Players(),
		Answers:              s.Answers(),
		Version:              s.version,
	}
}

// RestoreSession rebuilds a session from its snapshot without raising events.
// Snapshots that break a session invariant are rejected.
func RestoreSession(snap SessionSnapshot, opts ...Option) (*Session, error) {
	if err := validateSession(snap.ID, snap.QuizID, snap.HostID, snap.Code, snap.MaxPlayers, snap.TotalQuestions); err != nil {
		return nil, err
	}

	if err := checkSnapshot(snap); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithReason(ReasonInvalidSnapshot),
			errors.WithMessagef("session %s: %v", snap.ID, err))
	}

	s := newSession(opts)
	s.id = snap.ID
	s.quizID = snap.QuizID
	s.hostID = snap.HostID
	s.code = snap.Code
	s.state = snap.State
	s.maxPlayers = snap.MaxPlayers
	s.currentQuestionIndex = snap.CurrentQuestionIndex
	s.totalQuestions = snap.TotalQuestions
	s.createdAt = snap.CreatedAt
	s.startedAt = copyTime(snap.StartedAt)
	s.completedAt = copyTime(snap.CompletedAt)
	s.cancelledAt = copyTime(snap.CancelledAt)
	s.version = snap.Version

	s.players = make([]*Player, 0, len(snap.Players))
	for _, p := range snap.Players {
		c := p.clone()
		s.players = append(s.players, &c)
	}

	s.answers = append([]Answer(nil), snap.Answers...)
	for _, a := range s.answers {
		s.answered[answerKey{playerID: a.PlayerID, questionID: a.QuestionID}] = struct{}{}
	}

	return s, nil
}

func checkSnapshot(snap SessionSnapshot) error {
	if !snap.State.Valid() {
		return fmt.Errorf("unknown state %q", snap.State)
	}

	if snap.CurrentQuestionIndex < 0 || snap.CurrentQuestionIndex >= snap.TotalQuestions {
		return fmt.Errorf("question index %d out of range [0, %d)", snap.CurrentQuestionIndex, snap.TotalQuestions)
	}

	var (
		ids    = make(map[string]struct{}, len(snap.Players))
		users  = make(map[string]struct{}, len(snap.Players))
		active int
	)
	for _, p := range snap.Players {
		if p.SessionID != snap.ID {
			return fmt.Errorf("player %s belongs to session %s", p.ID, p.SessionID)
		}
		if _, ok := ids[p.ID]; ok {
			return fmt.Errorf("duplicate player %s", p.ID)
		}
		ids[p.ID] = struct{}{}

		if !p.IsActive {
			continue
		}
		active++
		if _, ok := users[p.UserID]; ok {
			return fmt.Errorf("user %s has more than one active player", p.UserID)
		}
		users[p.UserID] = struct{}{}
	}

	if active > snap.MaxPlayers {
		return fmt.Errorf("%d active players exceed capacity %d", active, snap.MaxPlayers)
	}

	answered := make(map[answerKey]struct{}, len(snap.Answers))
	for _, a := range snap.Answers {
		if _, ok := ids[a.PlayerID]; !ok {
			return fmt.Errorf("answer %s references unknown player %s", a.ID, a.PlayerID)
		}

		k := answerKey{playerID: a.PlayerID, questionID: a.QuestionID}
		if _, ok := answered[k]; ok {
			return fmt.Errorf("player %s answered question %s twice", a.PlayerID, a.QuestionID)
		}
		answered[k] = struct{}{}
	}

	return nil
}

// SetVersion records the persistence version after a successful save.
func (s *Session) SetVersion(v int64) {
	s.version = v
}
