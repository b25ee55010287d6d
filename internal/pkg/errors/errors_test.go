package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"code only", New(CodeValidation, "invalid"), "[VALIDATION_ERROR] invalid"},
		{"with op", &Error{Code: CodeInternal, Message: "ingest failed", Op: "jobs.ingest"}, "jobs.ingest: [INTERNAL_ERROR] ingest failed"},
		{"with cause", &Error{Code: CodeUpstream, Message: "submit", Err: fmt.Errorf("connection refused")}, "[UPSTREAM_ERROR] submit: connection refused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeBadRequest, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeUpstream, http.StatusBadGateway},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeInternal, http.StatusInternalServerError},
		{Code("SOMETHING_NEW"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "x").HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}

	if got := GetHTTPStatus(fmt.Errorf("plain")); got != http.StatusInternalServerError {
		t.Errorf("foreign error status = %d, want 500", got)
	}
}

func TestWrapKeepsCodeAndFields(t *testing.T) {
	inner := ValidationField("progress", "progress must be between 0 and 100")
	wrapped := Wrap(inner, "handlers.renderComplete", "rejected update")

	if wrapped.Code != CodeValidation {
		t.Errorf("code = %s, want %s", wrapped.Code, CodeValidation)
	}
	if GetFields(wrapped)["field"] != "progress" {
		t.Errorf("fields = %v, want field=progress", GetFields(wrapped))
	}
	if !errors.Is(wrapped, inner) {
		t.Error("wrapped error should match its cause")
	}
	if errors.Unwrap(wrapped) != inner {
		t.Error("Unwrap should return the cause")
	}
}

func TestWrapForeignError(t *testing.T) {
	cause := fmt.Errorf("disk full")

	wrapped := Wrap(cause, "storage.put", "write sidecar")
	if wrapped.Code != CodeInternal {
		t.Errorf("code = %s, want %s", wrapped.Code, CodeInternal)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should reach the cause")
	}

	coded := WrapWithCode(cause, CodeUnavailable, "storage.put", "write sidecar")
	if coded.Code != CodeUnavailable {
		t.Errorf("code = %s, want %s", coded.Code, CodeUnavailable)
	}

	if Wrap(nil, "op", "msg") != nil || WrapWithCode(nil, CodeInternal, "op", "msg") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		code   Code
		fields map[string]any
	}{
		{"not found", NotFound("job", "J2"), CodeNotFound, map[string]any{"resource": "job", "id": "J2"}},
		{"validation field", ValidationField("jobId", "jobId is required"), CodeValidation, map[string]any{"field": "jobId"}},
		{"unavailable", Unavailable("journal"), CodeUnavailable, map[string]any{"service": "journal"}},
		{"timeout", Timeout("render worker request"), CodeTimeout, map[string]any{"operation": "render worker request"}},
		{"upstream", Upstream("render-worker", fmt.Errorf("boom")), CodeUpstream, map[string]any{"service": "render-worker"}},
		{"upstream without cause", Upstream("render-worker", nil), CodeUpstream, map[string]any{"service": "render-worker"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("code = %s, want %s", tt.err.Code, tt.code)
			}
			for k, v := range tt.fields {
				if tt.err.Fields[k] != v {
					t.Errorf("field %s = %v, want %v", k, tt.err.Fields[k], v)
				}
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	if !IsNotFound(NotFound("job", "J1")) {
		t.Error("IsNotFound should match NOT_FOUND")
	}
	if !IsValidation(Wrap(Validation("bad"), "op", "ctx")) {
		t.Error("IsValidation should see through Wrap")
	}
	if IsNotFound(fmt.Errorf("plain")) || IsValidation(nil) {
		t.Error("foreign and nil errors match no code")
	}
	if GetCode(fmt.Errorf("wrapped: %w", Unavailable("redis"))) != CodeUnavailable {
		t.Error("GetCode should see through fmt wrapping")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	if !errors.Is(NotFound("job", "J1"), New(CodeNotFound, "")) {
		t.Error("errors with the same code should match")
	}
	if errors.Is(NotFound("job", "J1"), New(CodeValidation, "")) {
		t.Error("errors with different codes should not match")
	}
}

func TestStackTrace(t *testing.T) {
	err := New(CodeInternal, "boom")
	if len(err.Stack) == 0 {
		t.Fatal("expected a captured stack")
	}
	if !strings.Contains(err.StackTrace(), "TestStackTrace") {
		t.Errorf("stack should include the caller, got:\n%s", err.StackTrace())
	}
	if (&Error{}).StackTrace() != "" {
		t.Error("empty stack should format as empty string")
	}
}
