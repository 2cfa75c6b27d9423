package pgstore

import (
	"context"
	_ "embed"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

const (
	codeUniqueViolation = "23505"
	constraintCode      = "sessions_code_key"
	constraintAnswer    = "session_answers_once"
)

//go:embed schema.sql
var schema string

type Config struct {
	DB *pgxpool.Pool
}

// Store keeps sessions in three tables: sessions, session_players and
// session_answers. Rows carry their list position so ordering survives.
type Store struct {
	db *pgxpool.Pool
}

func New(c Config) *Store {
	return &Store{db: c.DB}
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	return nil
}

func (s *Store) Create(ctx context.Context, snap domain.SessionSnapshot) (_ int64, err error) {
	snap.Version = 1

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const stmt = `
INSERT INTO sessions (session_id, quiz_id, host_id, code, state, max_players, current_question_index,
	total_questions, create_time, start_time, complete_time, cancel_time, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`

	_, err = tx.Exec(ctx, stmt, snap.ID, snap.QuizID, snap.HostID, snap.Code, snap.State, snap.MaxPlayers,
		snap.CurrentQuestionIndex, snap.TotalQuestions, snap.CreatedAt, snap.StartedAt, snap.CompletedAt,
		snap.CancelledAt, snap.Version)
	if err != nil {
		return 0, convertError(err)
	}

	if err = s.saveChildren(ctx, tx, snap); err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	return snap.Version, nil
}

// Save updates the session row guarded by its version, then upserts players
// and appends new answers in the same transaction.
func (s *Store) Save(ctx context.Context, snap domain.SessionSnapshot) (_ int64, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const stmt = `
UPDATE sessions
SET state = $3, current_question_index = $4, start_time = $5, complete_time = $6, cancel_time = $7,
	version = version + 1
WHERE session_id = $1 AND version = $2;`

	tag, err := tx.Exec(ctx, stmt, snap.ID, snap.Version, snap.State, snap.CurrentQuestionIndex,
		snap.StartedAt, snap.CompletedAt, snap.CancelledAt)
	if err != nil {
		return 0, fmt.Errorf("update session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE session_id = $1);`, snap.ID).Scan(&exists); err != nil {
			return 0, fmt.Errorf("check session: %w", err)
		}
		if !exists {
			return 0, domain.ErrSessionNotFound
		}
		return 0, domain.ErrConcurrentModification
	}

	if err = s.saveChildren(ctx, tx, snap); err != nil {
		return 0, err
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	return snap.Version + 1, nil
}

func (s *Store) saveChildren(ctx context.Context, tx pgx.Tx, snap domain.SessionSnapshot) error {
	const (
		upsertPlayerStmt = `
INSERT INTO session_players (session_id, player_id, position, user_id, display_name, total_score,
	correct_answers, is_active, join_time, leave_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (session_id, player_id) DO UPDATE
SET total_score = EXCLUDED.total_score, correct_answers = EXCLUDED.correct_answers,
	is_active = EXCLUDED.is_active, leave_time = EXCLUDED.leave_time;`

		insertAnswerStmt = `
INSERT INTO session_answers (session_id, answer_id, position, player_id, question_id, selected_item_id,
	is_correct, points_earned, time_taken_seconds, submit_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (session_id, answer_id) DO NOTHING;`
	)

	b := &pgx.Batch{}
	for i, p := range snap.Players {
		b.Queue(upsertPlayerStmt, snap.ID, p.ID, i, p.UserID, p.DisplayName, p.TotalScore,
			p.CorrectAnswers, p.IsActive, p.JoinedAt, p.LeftAt)
	}
	for i, a := range snap.Answers {
		b.Queue(insertAnswerStmt, snap.ID, a.ID, i, a.PlayerID, a.QuestionID, a.SelectedItemID,
			a.IsCorrect, a.PointsEarned, a.TimeTakenSeconds, a.SubmittedAt)
	}

	if b.Len() == 0 {
		return nil
	}

	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return convertError(err)
	}

	return nil
}

var readOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// querier is a pool or a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Get reads the session row, its players and its answers from one snapshot of the database.
func (s *Store) Get(ctx context.Context, id string) (snap domain.SessionSnapshot, err error) {
	err = pgx.BeginTxFunc(ctx, s.db, readOptions, func(tx pgx.Tx) error {
		snap, err = s.get(ctx, tx, id)
		return err
	})
	return snap, err
}

func (s *Store) GetByCode(ctx context.Context, code string) (snap domain.SessionSnapshot, err error) {
	err = pgx.BeginTxFunc(ctx, s.db, readOptions, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `SELECT session_id FROM sessions WHERE code = $1;`, code).Scan(&id)
		if stderrors.Is(err, pgx.ErrNoRows) {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("get session code %s: %w", code, err)
		}

		snap, err = s.get(ctx, tx, id)
		return err
	})
	return snap, err
}

func (s *Store) get(ctx context.Context, q querier, id string) (domain.SessionSnapshot, error) {
	const stmt = `
SELECT session_id, quiz_id, host_id, code, state, max_players, current_question_index, total_questions,
	create_time, start_time, complete_time, cancel_time, version
FROM sessions
WHERE session_id = $1;`

	var snap domain.SessionSnapshot
	err := q.QueryRow(ctx, stmt, id).Scan(&snap.ID, &snap.QuizID, &snap.HostID, &snap.Code, &snap.State,
		&snap.MaxPlayers, &snap.CurrentQuestionIndex, &snap.TotalQuestions, &snap.CreatedAt, &snap.StartedAt,
		&snap.CompletedAt, &snap.CancelledAt, &snap.Version)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("get session %s: %w", id, err)
	}

	snap.CreatedAt = snap.CreatedAt.UTC()
	snap.StartedAt = utc(snap.StartedAt)
	snap.CompletedAt = utc(snap.CompletedAt)
	snap.CancelledAt = utc(snap.CancelledAt)

	if snap.Players, err = listPlayers(ctx, q, id); err != nil {
		return domain.SessionSnapshot{}, err
	}
	if snap.Answers, err = listAnswers(ctx, q, id); err != nil {
		return domain.SessionSnapshot{}, err
	}

	return snap, nil
}

func listPlayers(ctx context.Context, q querier, sessionID string) ([]domain.Player, error) {
	const stmt = `
SELECT player_id, session_id, user_id, display_name, total_score, correct_answers, is_active, join_time, leave_time
FROM session_players
WHERE session_id = $1
ORDER BY position;`

	rows, err := q.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}

	ps, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Player, error) {
		var p domain.Player
		if err := r.Scan(&p.ID, &p.SessionID, &p.UserID, &p.DisplayName, &p.TotalScore, &p.CorrectAnswers,
			&p.IsActive, &p.JoinedAt, &p.LeftAt); err != nil {
			return domain.Player{}, err
		}
		p.JoinedAt = p.JoinedAt.UTC()
		p.LeftAt = utc(p.LeftAt)
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}

	return ps, nil
}

func listAnswers(ctx context.Context, q querier, sessionID string) ([]domain.Answer, error) {
	const stmt = `
SELECT answer_id, session_id, player_id, question_id, selected_item_id, is_correct, points_earned,
	time_taken_seconds, submit_time
FROM session_answers
WHERE session_id = $1
ORDER BY position;`

	rows, err := q.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	as, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Answer, error) {
		var a domain.Answer
		if err := r.Scan(&a.ID, &a.SessionID, &a.PlayerID, &a.QuestionID, &a.SelectedItemID, &a.IsCorrect,
			&a.PointsEarned, &a.TimeTakenSeconds, &a.SubmittedAt); err != nil {
			return domain.Answer{}, err
		}
		a.SubmittedAt = a.SubmittedAt.UTC()
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	return as, nil
}

func convertError(err error) error {
	var pgErr *pgconn.PgError
	if !stderrors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return fmt.Errorf("write session: %w", err)
	}

	switch pgErr.ConstraintName {
	case constraintCode:
		return domain.ErrSessionCodeTaken.With(errors.WithCause(err))
	case constraintAnswer:
		return domain.ErrAlreadyAnswered.With(errors.WithCause(err))
	}

	return errors.New(errors.CodeAlreadyExists, errors.WithCause(err))
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	u := t.UTC()
	return &u
}
