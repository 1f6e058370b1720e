package wire

import (
	"Huddle/internal/api/config"
	"Huddle/internal/pkg/docstore"
	"Huddle/internal/pkg/presence"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestBuildApplicationWithMemoryBackends(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Chat: config.DefaultChat()}
	app, err := BuildApplication(Backends{
		Store:    docstore.NewMemStore(),
		Presence: presence.NewMemory(),
	}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := app.CronMgr.RegisterJobs(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/api/ping", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/api/attachments", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		app.Router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		if w.Code != tt.status {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, w.Code, tt.status)
		}
	}
}
