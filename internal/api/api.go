package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/session"
)

const reasonInvalidRequest = "INVALID_REQUEST"

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Session      *session.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	ss *session.Service
	ls *leaderboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		ss:     c.Session,
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// HTTP APIs
	r := c.Router
	r.POST("/sessions", a.CreateSession)
	r.GET("/sessions/:id", a.GetSession)
	r.POST("/sessions/:id/players", a.JoinSession)
	r.DELETE("/sessions/:id/players/:player_id", a.LeaveSession)
	r.POST("/sessions/:id/start", a.StartSession)
	r.POST("/sessions/:id/answers", a.SubmitAnswer)
	r.POST("/sessions/:id/advance", a.AdvanceQuestion)
	r.POST("/sessions/:id/complete", a.CompleteSession)
	r.POST("/sessions/:id/cancel", a.CancelSession)
	r.GET("/sessions/:id/leaderboard", a.GetLeaderboard)
	r.GET("/codes/:code", a.GetSessionByCode)
	r.POST("/codes/:code/players", a.JoinSessionByCode)

	// Register event handlers
	c.EventBus.SubscribeAll(func(ctx context.Context, e event.Event) error {
		return a.PublishSessionEvent(ctx, e.(domain.Event))
	})
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

type (
	Session struct {
		ID                   string              `json:"id"`
		QuizID               string              `json:"quiz_id"`
		HostID               string              `json:"host_id"`
		Code                 string              `json:"code"`
		State                domain.SessionState `json:"state"`
		MaxPlayers           int                 `json:"max_players"`
		CurrentQuestionIndex int                 `json:"current_question_index"`
		TotalQuestions       int                 `json:"total_questions"`
		ActivePlayers        int                 `json:"active_players"`
		CreatedAt            time.Time           `json:"created_at"`
		StartedAt            *time.Time          `json:"started_at,omitempty"`
		CompletedAt          *time.Time          `json:"completed_at,omitempty"`
		CancelledAt          *time.Time          `json:"cancelled_at,omitempty"`
		Players              []domain.Player     `json:"players"`
		Version              int64               `json:"version"`
	}

	CreateSessionRequest struct {
		QuizID         string `json:"quiz_id"`
		HostID         string `json:"host_id"`
		Code           string `json:"code"`
		MaxPlayers     int    `json:"max_players"`
		TotalQuestions int    `json:"total_questions"`
	}

	JoinSessionRequest struct {
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
	}

	JoinSessionResponse struct {
		Session Session       `json:"session"`
		Player  domain.Player `json:"player"`
	}

	SubmitAnswerRequest struct {
		PlayerID         string `json:"player_id"`
		QuestionID       string `json:"question_id"`
		SelectedItemID   string `json:"selected_item_id"`
		IsCorrect        bool   `json:"is_correct"`
		PointsEarned     *int   `json:"points_earned"`
		TimeTakenSeconds int    `json:"time_taken_seconds"`
	}

	SubmitAnswerResponse struct {
		Answer     domain.Answer `json:"answer"`
		TotalScore int           `json:"total_score"`
	}

	GetLeaderboardRequest struct {
		Limit int `form:"limit" binding:"min=0"`
	}

	ErrorResponse struct {
		Code            string                  `json:"code"`
		Reason          string                  `json:"reason,omitempty"`
		Message         string                  `json:"message"`
		FieldViolations []errors.FieldViolation `json:"field_violations,omitempty"`
	}
)

func newSession(ss *domain.Session) Session {
	return Session{
		ID:                   ss.ID(),
		QuizID:               ss.QuizID(),
		HostID:               ss.HostID(),
		Code:                 ss.Code(),
		State:                ss.State(),
		MaxPlayers:           ss.MaxPlayers(),
		CurrentQuestionIndex: ss.CurrentQuestionIndex(),
		TotalQuestions:       ss.TotalQuestions(),
		ActivePlayers:        ss.ActivePlayerCount(),
		CreatedAt:            ss.CreatedAt(),
		StartedAt:            ss.StartedAt(),
		CompletedAt:          ss.CompletedAt(),
		CancelledAt:          ss.CancelledAt(),
		Players:              ss.Players(),
		Version:              ss.Version(),
	}
}

func (a *API) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if !bind(c, c.ShouldBindJSON, &req) {
		return
	}

	ss, err := a.ss.CreateSession(c.Request.Context(), session.CreateSessionRequest{
		QuizID:         req.QuizID,
		HostID:         req.HostID,
		Code:           req.Code,
		MaxPlayers:     req.MaxPlayers,
		TotalQuestions: req.TotalQuestions,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, newSession(ss))
}

func (a *API) GetSession(c *gin.Context) {
	respondSession(c)(a.ss.GetSession(c.Request.Context(), c.Param("id")))
}

func (a *API) GetSessionByCode(c *gin.Context) {
	respondSession(c)(a.ss.GetSessionByCode(c.Request.Context(), c.Param("code")))
}

func (a *API) JoinSession(c *gin.Context) {
	var req JoinSessionRequest
	if !bind(c, c.ShouldBindJSON, &req) {
		return
	}

	resp, err := a.ss.JoinSession(c.Request.Context(), session.JoinSessionRequest{
		SessionID:   c.Param("id"),
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
	})
	respondJoin(c, resp, err)
}

func (a *API) JoinSessionByCode(c *gin.Context) {
	var req JoinSessionRequest
	if !bind(c, c.ShouldBindJSON, &req) {
		return
	}

	resp, err := a.ss.JoinSessionByCode(c.Request.Context(), session.JoinSessionByCodeRequest{
		Code:        c.Param("code"),
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
	})
	respondJoin(c, resp, err)
}

func (a *API) LeaveSession(c *gin.Context) {
	respondSession(c)(a.ss.LeaveSession(c.Request.Context(), session.LeaveSessionRequest{
		SessionID: c.Param("id"),
		PlayerID:  c.Param("player_id"),
	}))
}

func (a *API) StartSession(c *gin.Context) {
	respondSession(c)(a.ss.StartSession(c.Request.Context(), c.Param("id")))
}

func (a *API) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if !bind(c, c.ShouldBindJSON, &req) {
		return
	}

	resp, err := a.ss.SubmitAnswer(c.Request.Context(), session.SubmitAnswerRequest{
		SessionID:        c.Param("id"),
		PlayerID:         req.PlayerID,
		QuestionID:       req.QuestionID,
		SelectedItemID:   req.SelectedItemID,
		IsCorrect:        req.IsCorrect,
		PointsEarned:     req.PointsEarned,
		TimeTakenSeconds: req.TimeTakenSeconds,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, SubmitAnswerResponse{
		Answer:     resp.Answer,
		TotalScore: resp.TotalScore,
	})
}

func (a *API) AdvanceQuestion(c *gin.Context) {
	respondSession(c)(a.ss.AdvanceQuestion(c.Request.Context(), c.Param("id")))
}

func (a *API) CompleteSession(c *gin.Context) {
	respondSession(c)(a.ss.CompleteSession(c.Request.Context(), c.Param("id")))
}

func (a *API) CancelSession(c *gin.Context) {
	respondSession(c)(a.ss.CancelSession(c.Request.Context(), c.Param("id")))
}

func (a *API) GetLeaderboard(c *gin.Context) {
	var req GetLeaderboardRequest
	if !bind(c, c.ShouldBindQuery, &req) {
		return
	}

	l, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		SessionID: c.Param("id"),
		Limit:     req.Limit,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, l)
}

func respondSession(c *gin.Context) func(*domain.Session, error) {
	return func(ss *domain.Session, err error) {
		if err != nil {
			abort(c, err)
			return
		}

		c.JSON(http.StatusOK, newSession(ss))
	}
}

func respondJoin(c *gin.Context, resp *session.JoinSessionResponse, err error) {
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, JoinSessionResponse{
		Session: newSession(resp.Session),
		Player:  resp.Player,
	})
}

func bind(c *gin.Context, fn func(any) error, req any) bool {
	if err := fn(req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument,
			errors.WithReason(reasonInvalidRequest),
			errors.WithMessagef("invalid request: %v", err),
			errors.WithCause(err),
		))
		return false
	}

	return true
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), ErrorResponse{
		Code:            e.Code.String(),
		Reason:          e.Reason,
		Message:         e.Message,
		FieldViolations: e.Violations,
	})
}
