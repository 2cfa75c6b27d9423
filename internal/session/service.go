package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/score"
	"github.com/victornm/livequiz/internal/telemetry"
)

const defaultMaxRetries = 3

type Config struct {
	Store    Store
	EventBus *event.Bus
	Score    *score.Policy

	// MaxRetries bounds retries after concurrent modifications and session code collisions.
	MaxRetries int

	// Clock and NewID are replaced in tests.
	Clock func() time.Time
	NewID func() (string, error)
}

// Service loads a session, applies one operation, saves it and publishes the
// raised events. Operations on the same session are serialized in process;
// concurrent writers in other processes are detected by the store.
type Service struct {
	store      Store
	eb         *event.Bus
	score      *score.Policy
	maxRetries int
	now        func() time.Time
	newID      func() (string, error)
	locks      *keyedMutex
}

func NewService(c Config) *Service {
	s := &Service{
		store:      c.Store,
		eb:         c.EventBus,
		score:      c.Score,
		maxRetries: c.MaxRetries,
		now:        c.Clock,
		newID:      c.NewID,
		locks:      newKeyedMutex(),
	}

	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	if s.newID == nil {
		s.newID = newUUID
	}
	if s.score == nil {
		s.score = score.NewPolicy(score.Config{})
	}

	return s
}

func newUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

// CreateSessionRequest represents a request to create a new quiz session.
type CreateSessionRequest struct {
	QuizID string
	HostID string
	// Code is optional, a random one is generated when empty.
	Code           string
	MaxPlayers     int
	TotalQuestions int
}

// CreateSession creates a new quiz session waiting for players.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (ss *domain.Session, err error) {
	defer func(start time.Time) {
		telemetry.ObserveSessionOperation("create", start, err)
	}(time.Now())

	id, err := s.newID()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate session ID: %w", err))
	}

	attempts := s.maxRetries
	if req.Code != "" {
		attempts = 1
	}

	for range attempts {
		code := req.Code
		if code == "" {
			if code, err = generateCode(); err != nil {
				return nil, errors.Internal(err)
			}
		}

		ss, err = domain.NewSession(id, req.QuizID, req.HostID, code, req.MaxPlayers, req.TotalQuestions,
			domain.WithClock(s.now))
		if err != nil {
			return nil, err
		}

		var v int64
		v, err = s.store.Create(ctx, ss.Snapshot())
		if stderrors.Is(err, domain.ErrSessionCodeTaken) {
			slog.WarnContext(ctx, "session: code collision", "code", code)
			continue
		}
		if err != nil {
			return nil, err
		}

		ss.SetVersion(v)
		s.publish(ctx, ss.PullEvents())

		slog.InfoContext(ctx, "session: created",
			"session_id", ss.ID(),
			"quiz_id", ss.QuizID(),
			"code", ss.Code(),
		)
		return ss, nil
	}

	return nil, err
}

func (s *Service) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return s.load(ctx, id)
}

func (s *Service) GetSessionByCode(ctx context.Context, code string) (*domain.Session, error) {
	if !domain.ValidSessionCode(code) {
		return nil, domain.ErrSessionNotFound
	}

	snap, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	return s.restore(snap)
}

func (s *Service) load(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, domain.ErrSessionNotFound
	}

	snap, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.restore(snap)
}

func (s *Service) restore(snap domain.SessionSnapshot) (*domain.Session, error) {
	ss, err := domain.RestoreSession(snap, domain.WithClock(s.now))
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("restore session %s: %w", snap.ID, err))
	}

	return ss, nil
}

// mutate runs fn against the latest stored state of the session and saves the
// result. fn may run more than once when another writer got there first.
func (s *Service) mutate(ctx context.Context, op, id string, fn func(ss *domain.Session) error) (ss *domain.Session, err error) {
	defer func(start time.Time) {
		telemetry.ObserveSessionOperation(op, start, err)
	}(time.Now())

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("lock session %s: %w", id, err))
	}
	defer unlock()

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			telemetry.CountSessionRetry(op)
			slog.WarnContext(ctx, "session: retrying after concurrent modification",
				"session_id", id,
				"operation", op,
				"attempt", attempt,
			)
		}

		ss, err = s.load(ctx, id)
		if err != nil {
			return nil, err
		}

		if err = fn(ss); err != nil {
			return nil, err
		}

		var v int64
		v, err = s.store.Save(ctx, ss.Snapshot())
		if errors.IsRetriable(err) {
			continue
		}
		if err != nil {
			return nil, err
		}

		ss.SetVersion(v)
		s.publish(ctx, ss.PullEvents())
		return ss, nil
	}

	return nil, err
}

func (s *Service) publish(ctx context.Context, des []domain.Event) {
	if s.eb == nil || len(des) == 0 {
		return
	}

	es := make([]event.Event, 0, len(des))
	for _, e := range des {
		telemetry.CountEvent(e.Name())
		es = append(es, e)
	}

	s.eb.Publish(ctx, es...)
}

type JoinSessionRequest struct {
	SessionID   string
	UserID      string
	DisplayName string
}

type JoinSessionResponse struct {
	Session *domain.Session
	Player  domain.Player
}

func (s *Service) JoinSession(ctx context.Context, req JoinSessionRequest) (*JoinSessionResponse, error) {
	playerID, err := s.newID()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate player ID: %w", err))
	}

	var p domain.Player
	ss, err := s.mutate(ctx, "join", req.SessionID, func(ss *domain.Session) (err error) {
		p, err = ss.AddPlayer(playerID, req.UserID, req.DisplayName)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session: player joined",
		"session_id", ss.ID(),
		"player_id", p.ID,
		"user_id", p.UserID,
	)

	return &JoinSessionResponse{Session: ss, Player: p}, nil
}

type JoinSessionByCodeRequest struct {
	Code        string
	UserID      string
	DisplayName string
}

// JoinSessionByCode resolves the code and joins the session it points to.
func (s *Service) JoinSessionByCode(ctx context.Context, req JoinSessionByCodeRequest) (*JoinSessionResponse, error) {
	ss, err := s.GetSessionByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	return s.JoinSession(ctx, JoinSessionRequest{
		SessionID:   ss.ID(),
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
	})
}

type LeaveSessionRequest struct {
	SessionID string
	PlayerID  string
}

func (s *Service) LeaveSession(ctx context.Context, req LeaveSessionRequest) (*domain.Session, error) {
	return s.mutate(ctx, "leave", req.SessionID, func(ss *domain.Session) error {
		return ss.RemovePlayer(req.PlayerID)
	})
}

func (s *Service) StartSession(ctx context.Context, id string) (*domain.Session, error) {
	ss, err := s.mutate(ctx, "start", id, (*domain.Session).Start)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session: started",
		"session_id", ss.ID(),
		"active_players", ss.ActivePlayerCount(),
	)
	return ss, nil
}

type SubmitAnswerRequest struct {
	SessionID      string
	PlayerID       string
	QuestionID     string
	SelectedItemID string
	IsCorrect      bool
	// PointsEarned is computed by the score policy when nil.
	PointsEarned     *int
	TimeTakenSeconds int
}

type SubmitAnswerResponse struct {
	Answer     domain.Answer
	TotalScore int
}

// SubmitAnswer records a player's answer and returns the player's new total.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	answerID, err := s.newID()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate answer ID: %w", err))
	}

	points := s.score.Points(req.IsCorrect, req.TimeTakenSeconds)
	if req.PointsEarned != nil {
		points = *req.PointsEarned
	}

	var a domain.Answer
	ss, err := s.mutate(ctx, "submit_answer", req.SessionID, func(ss *domain.Session) (err error) {
		a, err = ss.SubmitAnswer(domain.Submission{
			AnswerID:         answerID,
			PlayerID:         req.PlayerID,
			QuestionID:       req.QuestionID,
			SelectedItemID:   req.SelectedItemID,
			IsCorrect:        req.IsCorrect,
			PointsEarned:     points,
			TimeTakenSeconds: req.TimeTakenSeconds,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	p, _ := ss.Player(a.PlayerID)
	return &SubmitAnswerResponse{
		Answer:     a,
		TotalScore: p.TotalScore,
	}, nil
}

func (s *Service) AdvanceQuestion(ctx context.Context, id string) (*domain.Session, error) {
	return s.mutate(ctx, "advance", id, (*domain.Session).AdvanceToNextQuestion)
}

func (s *Service) CompleteSession(ctx context.Context, id string) (*domain.Session, error) {
	ss, err := s.mutate(ctx, "complete", id, (*domain.Session).Complete)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session: completed", "session_id", ss.ID())
	return ss, nil
}

func (s *Service) CancelSession(ctx context.Context, id string) (*domain.Session, error) {
	ss, err := s.mutate(ctx, "cancel", id, (*domain.Session).Cancel)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "session: cancelled", "session_id", ss.ID())
	return ss, nil
}

// GetLeaderboard ranks the active players from the stored session.
func (s *Service) GetLeaderboard(ctx context.Context, id string) (*domain.Leaderboard, error) {
	ss, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	l := domain.NewLeaderboard(ss.ID(), ss.Leaderboard())
	l.Version = ss.Version()
	return &l, nil
}
