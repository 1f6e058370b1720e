package middleware

import (
	"Huddle/internal/pkg/security"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware(), CORSMiddleware())
	r.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(UserIDKey))
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	token, err := security.GenerateToken("u1")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{"bearer header", "/me", "Bearer " + token, "u1"},
		{"query token", "/me?token=" + token, "", "u1"},
		{"missing", "/me", "", ""},
		{"bad scheme", "/me", "Basic abc", ""},
		{"bad token", "/me?token=abc", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			newEngine().ServeHTTP(w, req)

			if tt.want != "" {
				if w.Body.String() != tt.want {
					t.Errorf("body = %q, want %q", w.Body.String(), tt.want)
				}
				return
			}
			var resp struct {
				Code int `json:"code"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Code != 401 {
				t.Errorf("code = %d, want 401", resp.Code)
			}
		})
	}
}

func TestTraceAndPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/me", nil)
	req.Header.Set("Origin", "https://chat.example.com")
	req.Header.Set("X-Trace-ID", "trace-1")
	w := httptest.NewRecorder()
	newEngine().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
	if got := w.Header().Get("X-Trace-ID"); got != "trace-1" {
		t.Errorf("trace header = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://chat.example.com" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestTraceIDSources(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{"header wins", "/me?trace_id=q-1", "h-1", "h-1"},
		{"query for sockets", "/me?trace_id=q-1", "", "q-1"},
		{"oversized header replaced", "/me", strings.Repeat("x", 65), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(TraceHeader, tt.header)
			}
			w := httptest.NewRecorder()
			newEngine().ServeHTTP(w, req)

			got := w.Header().Get(TraceHeader)
			if tt.want != "" && got != tt.want {
				t.Errorf("trace = %q, want %q", got, tt.want)
			}
			if got == "" || len(got) > maxTraceLen {
				t.Errorf("trace = %q", got)
			}
		})
	}
}
