package chassis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
)

type denyAll struct{}

func (denyAll) Authorize(*http.Request) error { return errors.New("no") }

type allowAll struct{}

func (allowAll) Authorize(*http.Request) error { return nil }

func newTestServer(t *testing.T, authorizer Authorizer) *Server {
	t.Helper()
	s, err := New(Config{
		Addr:        ":0",
		ServiceName: "bqgate",
		MCPServer:   server.NewMCPServer("bqgate", "test"),
		Authorizer:  authorizer,
	})
	if err != nil {
		t.Fatalf("new chassis: %v", err)
	}
	return s
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	for _, path := range []string{"/", "/health"} {
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("GET %s: bad body: %v", path, err)
		}
		if body["status"] != "healthy" || body["service"] != "bqgate" {
			t.Fatalf("GET %s: unexpected body %v", path, body)
		}
	}
}

func TestMessagingRequiresAuth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, denyAll{})
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/messages", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHealthIsPublicWithAuth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, denyAll{})
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health must stay public, got %d", rec.Code)
	}
}

func TestStopBeforeStartNeverServes(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start after stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("start after stop must return without listening")
	}
}

func TestDevelopmentTLSConfig(t *testing.T) {
	t.Parallel()

	cfg, err := DevelopmentTLSConfig()
	if err != nil {
		t.Fatalf("dev tls: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected one certificate, got %d", len(cfg.Certificates))
	}
}
