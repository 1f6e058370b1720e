package response

import (
	"Huddle/internal/service"
	"errors"
	"fmt"
	"testing"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"sentinel", service.ErrNotAuthor, Forbidden, service.ErrNotAuthor.Error()},
		{"wrapped sentinel", fmt.Errorf("edit: %w", service.ErrEditWindowClosed), BadRequest, "edit: " + service.ErrEditWindowClosed.Error()},
		{"unknown", errors.New("connection reset"), InternalServerError, service.UnExpectedError.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := Describe(tt.err)
			if code != tt.code || msg != tt.msg {
				t.Errorf("Describe() = %d %q, want %d %q", code, msg, tt.code, tt.msg)
			}
		})
	}
}
