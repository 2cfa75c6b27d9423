package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"
)

const domain = "livequiz"

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeResourceExhausted  = Code(codes.ResourceExhausted)
	CodeAborted            = Code(codes.Aborted)
	CodeInternal           = Code(codes.Internal)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusConflict,
	CodeResourceExhausted:  http.StatusConflict,
	CodeAborted:            http.StatusConflict,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
}

func (c Code) String() string {
	return codes.Code(c).String()
}

// FieldViolation describes one malformed input field.
type FieldViolation struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

type Error struct {
	Code       Code             `json:"code"`
	Reason     string           `json:"reason,omitempty"`
	Message    string           `json:"message"`
	Violations []FieldViolation `json:"field_violations,omitempty"`
	err        error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.Reason != "" {
		s += fmt.Sprintf(", reason: %s", e.Reason)
	}
	if len(e.Violations) > 0 {
		vs := make([]string, 0, len(e.Violations))
		for _, v := range e.Violations {
			vs = append(vs, v.Field+": "+v.Description)
		}
		s += fmt.Sprintf(", fields: [%s]", strings.Join(vs, "; "))
	}
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether target is an *Error with the same code and reason.
// A target without a reason matches on code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	if e.Code != t.Code {
		return false
	}

	return t.Reason == "" || e.Reason == t.Reason
}

// With returns a copy of e with the options applied. Sentinel errors are shared,
// so callers that need a cause or a more specific message must not mutate them.
func (e *Error) With(opts ...Option) *Error {
	c := *e
	c.Violations = append([]FieldViolation(nil), e.Violations...)
	for _, opt := range opts {
		opt.apply(&c)
	}

	return &c
}

func (e *Error) GRPCStatus() *status.Status {
	st := status.New(codes.Code(e.Code), e.Message)

	var details []protoadapt.MessageV1
	if e.Reason != "" {
		details = append(details, &errdetails.ErrorInfo{
			Reason: e.Reason,
			Domain: domain,
		})
	}
	if len(e.Violations) > 0 {
		br := &errdetails.BadRequest{}
		for _, v := range e.Violations {
			br.FieldViolations = append(br.FieldViolations, &errdetails.BadRequest_FieldViolation{
				Field:       v.Field,
				Description: v.Description,
			})
		}
		details = append(details, br)
	}

	if len(details) == 0 {
		return st
	}

	ds, err := st.WithDetails(details...)
	if err != nil {
		return st
	}

	return ds
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

// IsRetriable reports whether the whole load-mutate-save cycle may be retried.
func IsRetriable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeAborted
}

// HasCode reports whether err is an *Error carrying code.
func HasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

func WithReason(reason string) Option {
	return optionFunc(func(e *Error) {
		e.Reason = reason
	})
}

func WithFieldViolation(field, description string) Option {
	return optionFunc(func(e *Error) {
		e.Violations = append(e.Violations, FieldViolation{
			Field:       field,
			Description: description,
		})
	})
}

// Validation collects field violations and turns them into a single
// InvalidArgument error.
type Validation struct {
	violations []FieldViolation
}

// Check records a violation for field when ok is false.
func (v *Validation) Check(ok bool, field, description string) {
	if !ok {
		v.violations = append(v.violations, FieldViolation{Field: field, Description: description})
	}
}

// Err returns nil when no violation was recorded.
func (v *Validation) Err(reason string) error {
	if len(v.violations) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(v.violations))
	for _, fv := range v.violations {
		msgs = append(msgs, fv.Field+" "+fv.Description)
	}

	return &Error{
		Code:       CodeInvalidArgument,
		Reason:     reason,
		Message:    strings.Join(msgs, "; "),
		Violations: append([]FieldViolation(nil), v.violations...),
	}
}
