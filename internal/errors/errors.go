package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeDeadlineExceeded   = Code(codes.DeadlineExceeded)
	CodeInternal           = Code(codes.Internal)
)

// Reason tells apart errors sharing the same code.
type Reason string

const (
	ReasonAlreadyActive      Reason = "ALREADY_ACTIVE"
	ReasonSessionNotOpen     Reason = "SESSION_NOT_OPEN"
	ReasonInvalidMemberState Reason = "INVALID_MEMBER_STATE"
	ReasonMemberNotFound     Reason = "MEMBER_NOT_FOUND"
	ReasonValidation         Reason = "VALIDATION"
	ReasonAuthoringTimeout   Reason = "AUTHORING_TIMEOUT"
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusConflict,
	CodeDeadlineExceeded:   http.StatusRequestTimeout,
	CodeInternal:           http.StatusInternalServerError,
}

type Error struct {
	Code    Code   `json:"code"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message"`
	err     error
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
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
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

// HasReason reports whether any error in err's chain is an *Error with reason r.
func HasReason(err error, r Reason) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	return e.Reason == r
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

func AlreadyActive(channelID string) *Error {
	return New(CodeAlreadyExists,
		WithReason(ReasonAlreadyActive),
		WithMessagef("already active in channel %s", channelID),
	)
}

func SessionNotOpen(sessionID string) *Error {
	return New(CodeFailedPrecondition,
		WithReason(ReasonSessionNotOpen),
		WithMessagef("session %s is not open", sessionID),
	)
}

func InvalidMemberState(format string, args ...any) *Error {
	return New(CodeFailedPrecondition,
		WithReason(ReasonInvalidMemberState),
		WithMessagef(format, args...),
	)
}

func MemberNotFound(userID string, cause error) *Error {
	return New(CodeNotFound,
		WithReason(ReasonMemberNotFound),
		WithMessagef("member not found: user=%s", userID),
		WithCause(cause),
	)
}

func Validation(format string, args ...any) *Error {
	return New(CodeInvalidArgument,
		WithReason(ReasonValidation),
		WithMessagef(format, args...),
	)
}

func AuthoringTimeout(step string) *Error {
	return New(CodeDeadlineExceeded,
		WithReason(ReasonAuthoringTimeout),
		WithMessagef("no answer to %s in time", step),
	)
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

func WithReason(r Reason) Option {
	return optionFunc(func(e *Error) {
		e.Reason = r
	})
}
