package domain

import (
	"github.com/victornm/livequiz/internal/errors"
)

const (
	ReasonInvalidSession  = "INVALID_SESSION"
	ReasonInvalidPlayer   = "INVALID_PLAYER"
	ReasonInvalidAnswer   = "INVALID_ANSWER"
	ReasonInvalidSnapshot = "INVALID_SNAPSHOT"
)

var (
	ErrSessionNotFound = errors.New(errors.CodeNotFound,
		errors.WithReason("SESSION_NOT_FOUND"),
		errors.WithMessagef("session not found"))

	ErrPlayerNotFound = errors.New(errors.CodeNotFound,
		errors.WithReason("PLAYER_NOT_FOUND"),
		errors.WithMessagef("player not found"))

	ErrSessionNotWaiting = errors.New(errors.CodeFailedPrecondition,
		errors.WithReason("SESSION_NOT_WAITING"),
		errors.WithMessagef("session is not waiting for players"))

	ErrSessionNotActive = errors.New(errors.CodeFailedPrecondition,
		errors.WithReason("SESSION_NOT_ACTIVE"),
		errors.WithMessagef("session is not active"))

	ErrSessionEnded = errors.New(errors.CodeFailedPrecondition,
		errors.WithReason("SESSION_ENDED"),
		errors.WithMessagef("session is already completed or cancelled"))

	ErrSessionCompleted = errors.New(errors.CodeFailedPrecondition,
		errors.WithReason("SESSION_COMPLETED"),
		errors.WithMessagef("session is completed"))

	ErrNoActivePlayers = errors.New(errors.CodeFailedPrecondition,
		errors.WithReason("NO_ACTIVE_PLAYERS"),
		errors.WithMessagef("session must have at least 1 active player"))

	ErrNoMoreQuestions = errors.New(errors.CodeFailedPrecondition,
		errors.WithReason("NO_MORE_QUESTIONS"),
		errors.WithMessagef("no more questions available"))

	ErrPlayerInactive = errors.New(errors.CodeFailedPrecondition,
		errors.WithReason("PLAYER_INACTIVE"),
		errors.WithMessagef("cannot add score to inactive player"))

	ErrPlayerAlreadyLeft = errors.New(errors.CodeFailedPrecondition,
		errors.WithReason("PLAYER_ALREADY_LEFT"),
		errors.WithMessagef("player has already left the session"))

	ErrSessionFull = errors.New(errors.CodeResourceExhausted,
		errors.WithReason("SESSION_FULL"),
		errors.WithMessagef("session is full"))

	ErrAlreadyJoined = errors.New(errors.CodeAlreadyExists,
		errors.WithReason("ALREADY_JOINED"),
		errors.WithMessagef("user has already joined the session"))

	ErrPlayerIDTaken = errors.New(errors.CodeAlreadyExists,
		errors.WithReason("PLAYER_ID_TAKEN"),
		errors.WithMessagef("player id is already used in this session"))

	ErrAlreadyAnswered = errors.New(errors.CodeAlreadyExists,
		errors.WithReason("ALREADY_ANSWERED"),
		errors.WithMessagef("player has already answered this question"))

	ErrConcurrentModification = errors.New(errors.CodeAborted,
		errors.WithReason("CONCURRENT_MODIFICATION"),
		errors.WithMessagef("session was modified concurrently"))

	ErrSessionCodeTaken = errors.New(errors.CodeAlreadyExists,
		errors.WithReason("SESSION_CODE_TAKEN"),
		errors.WithMessagef("session code is already in use"))
)
