package domain

import "time"

const (
	EventNameSessionCreated     = "session.created"
	EventNamePlayerJoined       = "player.joined"
	EventNamePlayerLeft         = "player.left"
	EventNameSessionStarted     = "session.started"
	EventNameAnswerSubmitted    = "answer.submitted"
	EventNameQuestionAdvanced   = "question.advanced"
	EventNameSessionCompleted   = "session.completed"
	EventNameSessionCancelled   = "session.cancelled"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

// Event is a fact raised by a Session. Events are buffered in the aggregate and
// drained with Session.PullEvents once the new state has been persisted.
type Event interface {
	Name() string
	Header() EventHeader
}

type EventHeader struct {
	SessionID  string    `json:"session_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (h EventHeader) Header() EventHeader { return h }

// Key keeps the events of one session in order on the event bus.
func (h EventHeader) Key() string { return h.SessionID }

type EventSessionCreated struct {
	EventHeader
	QuizID         string `json:"quiz_id"`
	HostID         string `json:"host_id"`
	Code           string `json:"code"`
	MaxPlayers     int    `json:"max_players"`
	TotalQuestions int    `json:"total_questions"`
}

func (EventSessionCreated) Name() string { return EventNameSessionCreated }

type EventPlayerJoined struct {
	EventHeader
	PlayerID    string    `json:"player_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

func (EventPlayerJoined) Name() string { return EventNamePlayerJoined }

type EventPlayerLeft struct {
	EventHeader
	PlayerID string    `json:"player_id"`
	UserID   string    `json:"user_id"`
	LeftAt   time.Time `json:"left_at"`
}

func (EventPlayerLeft) Name() string { return EventNamePlayerLeft }

type EventSessionStarted struct {
	EventHeader
	ActivePlayers int       `json:"active_players"`
	StartedAt     time.Time `json:"started_at"`
}

func (EventSessionStarted) Name() string { return EventNameSessionStarted }

type EventAnswerSubmitted struct {
	EventHeader
	AnswerID         string `json:"answer_id"`
	PlayerID         string `json:"player_id"`
	QuestionID       string `json:"question_id"`
	IsCorrect        bool   `json:"is_correct"`
	PointsEarned     int    `json:"points_earned"`
	TimeTakenSeconds int    `json:"time_taken_seconds"`
	TotalScore       int    `json:"total_score"`
}

func (EventAnswerSubmitted) Name() string { return EventNameAnswerSubmitted }

type EventQuestionAdvanced struct {
	EventHeader
	QuestionIndex int `json:"question_index"`
}

func (EventQuestionAdvanced) Name() string { return EventNameQuestionAdvanced }

type EventSessionCompleted struct {
	EventHeader
	ActivePlayers int       `json:"active_players"`
	CompletedAt   time.Time `json:"completed_at"`
}

func (EventSessionCompleted) Name() string { return EventNameSessionCompleted }

type EventSessionCancelled struct {
	EventHeader
	CancelledAt time.Time `json:"cancelled_at"`
}

func (EventSessionCancelled) Name() string { return EventNameSessionCancelled }

// EventLeaderboardUpdated is raised by the leaderboard service, not by Session.
type EventLeaderboardUpdated struct {
	EventHeader
	Leaderboard Leaderboard `json:"leaderboard"`
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
