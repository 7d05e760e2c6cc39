package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"rollcall/internal/attendance"
)

func authorizeServer(t *testing.T, status int, allowed bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/authorize" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			UserID  string `json:"user_id"`
			ClassID string `json:"class_id"`
			Action  string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.UserID != "lect-1" || req.ClassID != "class-1" || req.Action != "manage_sessions" {
			t.Errorf("request = %+v", req)
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]bool{"allowed": allowed})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCanManage(t *testing.T) {
	t.Parallel()

	t.Run("allowed", func(t *testing.T) {
		t.Parallel()
		srv := authorizeServer(t, http.StatusOK, true)
		c := New(srv.URL, false)
		if err := c.CanManage(context.Background(), "lect-1", "class-1"); err != nil {
			t.Fatalf("CanManage() = %v, want nil", err)
		}
	})

	t.Run("denied by body", func(t *testing.T) {
		t.Parallel()
		srv := authorizeServer(t, http.StatusOK, false)
		c := New(srv.URL, false)
		if err := c.CanManage(context.Background(), "lect-1", "class-1"); !errors.Is(err, attendance.ErrNotAllowed) {
			t.Fatalf("CanManage() = %v, want ErrNotAllowed", err)
		}
	})

	t.Run("denied by status", func(t *testing.T) {
		t.Parallel()
		srv := authorizeServer(t, http.StatusForbidden, false)
		c := New(srv.URL, false)
		if err := c.CanManage(context.Background(), "lect-1", "class-1"); !errors.Is(err, attendance.ErrNotAllowed) {
			t.Fatalf("CanManage() = %v, want ErrNotAllowed", err)
		}
	})

	t.Run("server error is not a denial", func(t *testing.T) {
		t.Parallel()
		srv := authorizeServer(t, http.StatusInternalServerError, false)
		c := New(srv.URL, false)
		err := c.CanManage(context.Background(), "lect-1", "class-1")
		if err == nil || errors.Is(err, attendance.ErrNotAllowed) {
			t.Fatalf("CanManage() = %v, want plain error", err)
		}
	})

	t.Run("unreachable service", func(t *testing.T) {
		t.Parallel()
		c := New("http://127.0.0.1:1", false)
		err := c.CanManage(context.Background(), "lect-1", "class-1")
		if err == nil || errors.Is(err, attendance.ErrNotAllowed) {
			t.Fatalf("CanManage() = %v, want plain error", err)
		}
	})

	t.Run("skip passes without a server", func(t *testing.T) {
		t.Parallel()
		c := New("http://127.0.0.1:1", true)
		if err := c.CanManage(context.Background(), "lect-1", "class-1"); err != nil {
			t.Fatalf("CanManage() = %v, want nil", err)
		}
	})
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	if err := New(srv.URL, false).Health(context.Background()); err != nil {
		t.Fatalf("Health() = %v, want nil", err)
	}
	if err := New("http://127.0.0.1:1", false).Health(context.Background()); err == nil {
		t.Fatal("Health() on unreachable service = nil, want error")
	}
}
