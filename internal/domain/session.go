package domain

import (
	"time"

	"github.com/victornm/livequiz/internal/errors"
)

const (
	SessionCodeLength = 6
	MinPlayers        = 2
	MaxPlayers        = 100
)

type SessionState string

const (
	SessionStateWaiting   SessionState = "waiting"
	SessionStateActive    SessionState = "active"
	SessionStateCompleted SessionState = "completed"
	SessionStateCancelled SessionState = "cancelled"
)

func (s SessionState) Valid() bool {
	switch s {
	case SessionStateWaiting, SessionStateActive, SessionStateCompleted, SessionStateCancelled:
		return true
	}

	return false
}

// Session is one live playthrough of a quiz. It owns the player roster and
// the answer log and enforces every cross-entity rule.
//
// A Session is not safe for concurrent use. Callers serialize mutations per
// session and resolve cross-process races at the persistence boundary.
type Session struct {
	id                   string
	quizID               string
	hostID               string
	code                 string
	state                SessionState
	maxPlayers           int
	currentQuestionIndex int
	totalQuestions       int
	createdAt            time.Time
	startedAt            *time.Time
	completedAt          *time.Time
	cancelledAt          *time.Time
	version              int64

	players  []*Player
	answers  []Answer
	answered map[answerKey]struct{}

	events []Event
	now    func() time.Time
}

type answerKey struct {
	playerID   string
	questionID string
}

type Option func(*Session)

// WithClock sets the time source used to stamp joins, answers and transitions.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// defaultClock keeps microsecond precision, the finest a SQL timestamp stores.
func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NewSession creates a session waiting for players and raises SessionCreated.
func NewSession(id, quizID, hostID, code string, maxPlayers, totalQuestions int, opts ...Option) (*Session, error) {
	if err := validateSession(id, quizID, hostID, code, maxPlayers, totalQuestions); err != nil {
		return nil, err
	}

	s := newSession(opts)
	s.id = id
	s.quizID = quizID
	s.hostID = hostID
	s.code = code
	s.state = SessionStateWaiting
	s.maxPlayers = maxPlayers
	s.totalQuestions = totalQuestions
	s.createdAt = s.now()

	s.raise(EventSessionCreated{
		EventHeader:    s.header(s.createdAt),
		QuizID:         quizID,
		HostID:         hostID,
		Code:           code,
		MaxPlayers:     maxPlayers,
		TotalQuestions: totalQuestions,
	})

	return s, nil
}

func newSession(opts []Option) *Session {
	s := &Session{
		answered: make(map[answerKey]struct{}),
		now:      defaultClock,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func validateSession(id, quizID, hostID, code string, maxPlayers, totalQuestions int) error {
	var v errors.Validation
	v.Check(id != "", "id", "is required")
	v.Check(quizID != "", "quiz_id", "is required")
	v.Check(hostID != "", "host_id", "is required")
	v.Check(ValidSessionCode(code), "session_code", "must be exactly 6 alphanumeric characters")
	v.Check(maxPlayers >= MinPlayers && maxPlayers <= MaxPlayers, "max_players", "must be between 2 and 100")
	v.Check(totalQuestions > 0, "total_questions", "must be positive")
	return v.Err(ReasonInvalidSession)
}

// ValidSessionCode reports whether code is exactly 6 ASCII letters or digits.
func ValidSessionCode(code string) bool {
	if len(code) != SessionCodeLength {
		return false
	}

	for i := 0; i < len(code); i++ {
		c := code[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}

	return true
}

func (s *Session) ID() string { return s.id }
func (s *Session) QuizID() string { return s.quizID }
func (s *Session) HostID() string { return s.hostID }
func (s *Session) Code() string { return s.code }
func (s *Session) State() SessionState { return s.state }
func (s *Session) MaxPlayers() int { return s.maxPlayers }
func (s *Session) CurrentQuestionIndex() int { return s.currentQuestionIndex }
func (s *Session) TotalQuestions() int { return s.totalQuestions }
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) StartedAt() *time.Time { return copyTime(s.startedAt) }
func (s *Session) CompletedAt() *time.Time { return copyTime(s.completedAt) }
func (s *Session) CancelledAt() *time.Time { return copyTime(s.cancelledAt) }
func (s *Session) Version() int64 { return s.version }
func (s *Session) IsEnded() bool { return s.state == SessionStateCompleted || s.state == SessionStateCancelled }
func (s *Session) HasMoreQuestions() bool { return s.currentQuestionIndex < s.totalQuestions-1 }

func (s *Session) header(at time.Time) EventHeader {
	return EventHeader{SessionID: s.id, OccurredAt: at}
}

// Players returns a snapshot of the roster in join order.
func (s *Session) Players() []Player {
	ps := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		ps = append(ps, p.clone())
	}

	return ps
}

// Answers returns a snapshot of the answer log in submission order.
func (s *Session) Answers() []Answer {
	as := make([]Answer, len(s.answers))
	copy(as, s.answers)
	return as
}

// Player returns a copy of the player with the given id.
func (s *Session) Player(id string) (Player, bool) {
	p := s.findPlayer(id)
	if p == nil {
		return Player{}, false
	}

	return p.clone(), true
}

// ActivePlayerByUser returns the active player record of a user, if any.
func (s *Session) ActivePlayerByUser(userID string) (Player, bool) {
	for _, p := range s.players {
		if p.IsActive && p.UserID == userID {
			return p.clone(), true
		}
	}

	return Player{}, false
}

func (s *Session) ActivePlayerCount() int {
	n := 0
	for _, p := range s.players {
		if p.IsActive {
			n++
		}
	}

	return n
}

func (s *Session) findPlayer(id string) *Player {
	for _, p := range s.players {
		if p.ID == id {
			return p
		}
	}

	return nil
}

// AddPlayer joins a user to a waiting session. A user who left may join again
// and gets a fresh player record; the old record stays inactive.
func (s *Session) AddPlayer(playerID, userID, displayName string) (Player, error) {
	if s.state != SessionStateWaiting {
		return Player{}, ErrSessionNotWaiting
	}

	if s.ActivePlayerCount() >= s.maxPlayers {
		return Player{}, ErrSessionFull
	}

	if _, ok := s.ActivePlayerByUser(userID); ok {
		return Player{}, ErrAlreadyJoined
	}

	p, err := NewPlayer(playerID, s.id, userID, displayName, s.now())
	if err != nil {
		return Player{}, err
	}

	if s.findPlayer(p.ID) != nil {
		return Player{}, ErrPlayerIDTaken.With(errors.WithMessagef("player id %s is already used in this session", p.ID))
	}

	s.players = append(s.players, p)

	s.raise(EventPlayerJoined{
		EventHeader: s.header(p.JoinedAt),
		PlayerID:    p.ID,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		JoinedAt:    p.JoinedAt,
	})

	return p.clone(), nil
}

// RemovePlayer deactivates a player. Players may leave mid-game and keep their
// answers and score; a completed session's roster is frozen.
func (s *Session) RemovePlayer(playerID string) error {
	if s.state == SessionStateCompleted {
		return ErrSessionCompleted
	}

	p := s.findPlayer(playerID)
	if p == nil {
		return ErrPlayerNotFound
	}

	at := s.now()
	if err := p.Leave(at); err != nil {
		return err
	}

	s.raise(EventPlayerLeft{
		EventHeader: s.header(at),
		PlayerID:    p.ID,
		UserID:      p.UserID,
		LeftAt:      at,
	})

	return nil
}

func (s *Session) Start() error {
	if s.state != SessionStateWaiting {
		return ErrSessionNotWaiting
	}

	active := s.ActivePlayerCount()
	if active < 1 {
		return ErrNoActivePlayers
	}

	at := s.now()
	s.state = SessionStateActive
	s.startedAt = &at

	s.raise(EventSessionStarted{
		EventHeader:   s.header(at),
		ActivePlayers: active,
		StartedAt:     at,
	})

	return nil
}

// SubmitAnswer records a player's answer and credits its points. An answer is
// write-once per (player, question); the log entry and the score update land
// together or not at all.
func (s *Session) SubmitAnswer(sub Submission) (Answer, error) {
	if s.state != SessionStateActive {
		return Answer{}, ErrSessionNotActive
	}

	p := s.findPlayer(sub.PlayerID)
	if p == nil || !p.IsActive {
		return Answer{}, ErrPlayerNotFound
	}

	key := answerKey{playerID: sub.PlayerID, questionID: sub.QuestionID}
	if _, ok := s.answered[key]; ok {
		return Answer{}, ErrAlreadyAnswered
	}

	a, err := NewAnswer(s.id, sub, s.now())
	if err != nil {
		return Answer{}, err
	}

	// AddScore leaves the player untouched on failure, so nothing needs undoing.
	if err := p.AddScore(a.PointsEarned, a.IsCorrect); err != nil {
		return Answer{}, err
	}

	s.answers = append(s.answers, *a)
	s.answered[key] = struct{}{}

	s.raise(EventAnswerSubmitted{
		EventHeader:      s.header(a.SubmittedAt),
		AnswerID:         a.ID,
		PlayerID:         a.PlayerID,
		QuestionID:       a.QuestionID,
		IsCorrect:        a.IsCorrect,
		PointsEarned:     a.PointsEarned,
		TimeTakenSeconds: a.TimeTakenSeconds,
		TotalScore:       p.TotalScore,
	})

	return *a, nil
}

// AdvanceToNextQuestion moves to the next question. Pacing is up to the caller.
func (s *Session) AdvanceToNextQuestion() error {
	if s.state != SessionStateActive {
		return ErrSessionNotActive
	}

	if !s.HasMoreQuestions() {
		return ErrNoMoreQuestions
	}

	s.currentQuestionIndex++

	s.raise(EventQuestionAdvanced{
		EventHeader:   s.header(s.now()),
		QuestionIndex: s.currentQuestionIndex,
	})

	return nil
}

func (s *Session) Complete() error {
	if s.state != SessionStateActive {
		return ErrSessionNotActive
	}

	at := s.now()
	s.state = SessionStateCompleted
	s.completedAt = &at

	s.raise(EventSessionCompleted{
		EventHeader:   s.header(at),
		ActivePlayers: s.ActivePlayerCount(),
		CompletedAt:   at,
	})

	return nil
}

func (s *Session) Cancel() error {
	if s.IsEnded() {
		return ErrSessionEnded
	}

	at := s.now()
	s.state = SessionStateCancelled
	s.cancelledAt = &at

	s.raise(EventSessionCancelled{
		EventHeader: s.header(at),
		CancelledAt: at,
	})

	return nil
}

// Leaderboard ranks the active players. It does not mutate the session.
func (s *Session) Leaderboard() []Player {
	ps := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		if p.IsActive {
			ps = append(ps, p.clone())
		}
	}

	SortByRank(ps)
	return ps
}

func (s *Session) raise(e Event) {
	s.events = append(s.events, e)
}

// PullEvents returns the events raised since the last call, in emission order,
// and clears the buffer.
func (s *Session) PullEvents() []Event {
	es := s.events
	s.events = nil
	return es
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	c := *t
	return &c
}
