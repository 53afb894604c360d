package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"

	// Identity and OTP session outcomes.
	CodeAuthFailure            Code = "AUTH_FAILURE"
	CodeSessionNotFound        Code = "SESSION_NOT_FOUND"
	CodeSessionExpired         Code = "SESSION_EXPIRED"
	CodeSessionAlreadyConsumed Code = "SESSION_ALREADY_CONSUMED"
	CodeCodeMismatch           Code = "CODE_MISMATCH"
	CodeAttemptsExceeded       Code = "ATTEMPTS_EXCEEDED"
	CodeInvalidRefresh         Code = "INVALID_OR_EXPIRED_REFRESH"
	CodeDeliveryFailure        Code = "DELIVERY_FAILURE"

	// Pickup payload and purchase lifecycle outcomes.
	CodeMalformedPayload    Code = "MALFORMED_PAYLOAD"
	CodeIllegalTransition   Code = "ILLEGAL_TRANSITION"
	CodeAlreadyTerminal     Code = "ALREADY_TERMINAL"
	CodePersistenceConflict Code = "PERSISTENCE_CONFLICT"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// ExposeMessage lets handlers surface the typed message instead of PublicMessage.
	ExposeMessage bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
		ExposeMessage:  true,
	},
	CodeUnauthorized: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "authentication required",
		ExposeMessage: true,
	},
	CodeForbidden: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "access denied",
		ExposeMessage: true,
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
		ExposeMessage: true,
	},
	CodeConflict: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "resource conflict",
		ExposeMessage: true,
	},
	CodeIdempotency: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "idempotency key reused",
		ExposeMessage: true,
	},
	CodeRateLimit: {
		HTTPStatus:    http.StatusTooManyRequests,
		PublicMessage: "rate limit exceeded",
		ExposeMessage: true,
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
	CodeAuthFailure: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "invalid credentials",
	},
	CodeSessionNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "verification session not found",
	},
	CodeSessionExpired: {
		HTTPStatus:    http.StatusGone,
		PublicMessage: "verification code expired",
	},
	CodeSessionAlreadyConsumed: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "verification code already used",
	},
	CodeCodeMismatch: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "invalid verification code",
		DetailsAllowed: true,
	},
	CodeAttemptsExceeded: {
		HTTPStatus:    http.StatusTooManyRequests,
		PublicMessage: "too many verification attempts",
	},
	CodeInvalidRefresh: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "invalid or expired refresh token",
	},
	CodeDeliveryFailure: {
		HTTPStatus:    http.StatusBadGateway,
		Retryable:     true,
		PublicMessage: "verification code could not be delivered",
	},
	CodeMalformedPayload: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "malformed pickup payload",
	},
	CodeIllegalTransition: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
		ExposeMessage:  true,
	},
	CodeAlreadyTerminal: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "purchase already finalized",
		DetailsAllowed: true,
	},
	CodePersistenceConflict: {
		HTTPStatus:    http.StatusConflict,
		Retryable:     true,
		PublicMessage: "concurrent update detected",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost typed error in err's chain carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// CodeOf returns the typed code carried by err, or "" when err is untyped.
func CodeOf(err error) string {
	if typed := As(err); typed != nil {
		return string(typed.code)
	}
	return ""
}
