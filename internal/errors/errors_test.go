package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/victornm/livequiz/internal/errors"
)

var errFull = errors.New(errors.CodeResourceExhausted,
	errors.WithReason("SESSION_FULL"),
	errors.WithMessagef("session is full"))

func TestError_Is(t *testing.T) {
	tests := map[string]struct {
		err    error
		target error
		want   bool
	}{
		"same sentinel": {
			err:    errFull,
			target: errFull,
			want:   true,
		},
		"copy with cause": {
			err:    errFull.With(errors.WithCause(fmt.Errorf("boom"))),
			target: errFull,
			want:   true,
		},
		"wrapped": {
			err:    fmt.Errorf("join: %w", errFull),
			target: errFull,
			want:   true,
		},
		"code only target": {
			err:    errFull,
			target: errors.New(errors.CodeResourceExhausted),
			want:   true,
		},
		"different reason": {
			err:    errors.New(errors.CodeResourceExhausted, errors.WithReason("OTHER")),
			target: errFull,
			want:   false,
		},
		"different code": {
			err:    errors.New(errors.CodeNotFound, errors.WithReason("SESSION_FULL")),
			target: errFull,
			want:   false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, stderrors.Is(tt.err, tt.target))
		})
	}
}

func TestError_WithDoesNotMutate(t *testing.T) {
	cause := fmt.Errorf("boom")
	e := errFull.With(errors.WithCause(cause), errors.WithFieldViolation("id", "is required"))

	assert.ErrorIs(t, e, cause)
	assert.NoError(t, errFull.Unwrap())
	assert.Empty(t, errFull.Violations)
}

func TestError_HTTPStatusCode(t *testing.T) {
	tests := map[errors.Code]int{
		errors.CodeInvalidArgument:    http.StatusBadRequest,
		errors.CodeNotFound:           http.StatusNotFound,
		errors.CodeAlreadyExists:      http.StatusConflict,
		errors.CodeFailedPrecondition: http.StatusConflict,
		errors.CodeResourceExhausted:  http.StatusConflict,
		errors.CodeAborted:            http.StatusConflict,
		errors.CodeUnauthenticated:    http.StatusUnauthorized,
		errors.CodeInternal:           http.StatusInternalServerError,
		errors.Code(codes.DataLoss):   http.StatusInternalServerError,
	}

	for code, want := range tests {
		t.Run(code.String(), func(t *testing.T) {
			assert.Equal(t, want, errors.New(code).HTTPStatusCode())
		})
	}
}

func TestError_GRPCStatus(t *testing.T) {
	var v errors.Validation
	v.Check(false, "quiz_id", "is required")
	v.Check(true, "host_id", "is required")
	v.Check(false, "max_players", "must be between 2 and 100")
	err := v.Err("INVALID_SESSION")
	require.Error(t, err)

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.InvalidArgument, st.Code())
	assert.Equal(t, "quiz_id is required; max_players must be between 2 and 100", st.Message())

	var (
		info *errdetails.ErrorInfo
		br   *errdetails.BadRequest
	)
	for _, d := range st.Details() {
		switch d := d.(type) {
		case *errdetails.ErrorInfo:
			info = d
		case *errdetails.BadRequest:
			br = d
		}
	}
	require.NotNil(t, info)
	assert.Equal(t, "INVALID_SESSION", info.Reason)
	require.NotNil(t, br)
	require.Len(t, br.FieldViolations, 2)
	assert.Equal(t, "quiz_id", br.FieldViolations[0].Field)
	assert.Equal(t, "max_players", br.FieldViolations[1].Field)
}

func TestValidation_NoViolations(t *testing.T) {
	var v errors.Validation
	v.Check(true, "id", "is required")
	assert.NoError(t, v.Err("INVALID"))
}

func TestConvert(t *testing.T) {
	assert.Same(t, errFull, errors.Convert(fmt.Errorf("wrap: %w", errFull)))

	e := errors.Convert(fmt.Errorf("plain"))
	assert.Equal(t, errors.CodeInternal, e.Code)
	assert.False(t, errors.IsRetriable(e))

	assert.True(t, errors.IsRetriable(fmt.Errorf("save: %w", errors.New(errors.CodeAborted))))
	assert.True(t, errors.HasCode(errFull, errors.CodeResourceExhausted))
	assert.False(t, errors.HasCode(fmt.Errorf("plain"), errors.CodeInternal))
}
