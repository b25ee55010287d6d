// Package errors provides the coded error type shared by the cutline API,
// its collaborators and the Go client. A code decides the HTTP status and
// survives a round trip through the JSON error envelope.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Code categorizes an error.
type Code string

const (
	CodeInternal    Code = "INTERNAL_ERROR"
	CodeValidation  Code = "VALIDATION_ERROR"
	CodeBadRequest  Code = "BAD_REQUEST"
	CodeNotFound    Code = "NOT_FOUND"
	CodeTimeout     Code = "TIMEOUT"
	CodeUnavailable Code = "UNAVAILABLE"
	// CodeUpstream marks a failure reported by the render worker.
	CodeUpstream Code = "UPSTREAM_ERROR"
)

var httpStatus = map[Code]int{
	CodeValidation:  http.StatusBadRequest,
	CodeBadRequest:  http.StatusBadRequest,
	CodeNotFound:    http.StatusNotFound,
	CodeUpstream:    http.StatusBadGateway,
	CodeUnavailable: http.StatusServiceUnavailable,
	CodeTimeout:     http.StatusGatewayTimeout,
}

// HTTPStatus maps the code to a response status; unknown codes are 500.
func (c Code) HTTPStatus() int {
	if s, ok := httpStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error carries a code plus the operation that failed, structured fields
// for the error envelope and the stack at creation.
type Error struct {
	Code    Code
	Message string
	// Op names the failing operation, e.g. "gateway.submit".
	Op     string
	Err    error
	Fields map[string]any
	Stack  []Frame
}

// Frame is one captured stack frame.
type Frame struct {
	File     string
	Line     int
	Function string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Code != "" {
		fmt.Fprintf(&b, "[%s] ", e.Code)
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithField attaches a detail shown in the error envelope.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

func (e *Error) HTTPStatus() int { return e.Code.HTTPStatus() }

// StackTrace formats the captured stack, one frame per line.
func (e *Error) StackTrace() string {
	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Stack: captureStack(2)}
}

// Wrap adds context to err, keeping its code and fields when it is already
// an *Error and classifying it as internal otherwise.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}
	w := &Error{Code: CodeInternal, Message: message, Op: op, Err: err, Stack: captureStack(2)}
	var e *Error
	if errors.As(err, &e) {
		w.Code = e.Code
		w.Fields = e.Fields
	}
	return w
}

// WrapWithCode wraps err under an explicit code.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Op: op, Err: err, Stack: captureStack(2)}
}

func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// ValidationField reports an invalid request field.
func ValidationField(field string, message string) *Error {
	return New(CodeValidation, message).WithField("field", field)
}

// NotFound reports a missing resource, e.g. NotFound("job", id).
func NotFound(resource string, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", resource, id)).
		WithField("resource", resource).
		WithField("id", id)
}

func Timeout(operation string) *Error {
	return New(CodeTimeout, "operation timed out: "+operation).WithField("operation", operation)
}

// Unavailable reports a dependency that is disabled or unreachable.
func Unavailable(service string) *Error {
	return New(CodeUnavailable, "service unavailable: "+service).WithField("service", service)
}

// Upstream wraps a failure returned by an external collaborator.
func Upstream(service string, err error) *Error {
	e := WrapWithCode(err, CodeUpstream, service, "upstream request failed")
	if e == nil {
		e = New(CodeUpstream, "upstream request failed")
	}
	return e.WithField("service", service)
}

// GetCode returns err's code, CodeInternal for foreign errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func GetHTTPStatus(err error) int { return GetCode(err).HTTPStatus() }

func GetFields(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

func IsNotFound(err error) bool   { return GetCode(err) == CodeNotFound }
func IsValidation(err error) bool { return GetCode(err) == CodeValidation }

func captureStack(skip int) []Frame {
	var pcs [32]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	out := make([]Frame, 0, 10)
	for len(out) < 10 {
		f, more := frames.Next()
		if !strings.Contains(f.File, "runtime/") {
			out = append(out, Frame{File: f.File, Line: f.Line, Function: f.Function})
		}
		if !more {
			break
		}
	}
	return out
}

func As(err error, target any) bool { return errors.As(err, target) }
func Is(err, target error) bool     { return errors.Is(err, target) }
