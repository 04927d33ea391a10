package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, h *Handler, path string, ctx context.Context) (*httptest.ResponseRecorder, report) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	req := httptest.NewRequest("GET", path, nil)
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	t.Run("always ok", func(t *testing.T) {
		rec, body := serve(t, New(), "/healthz", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if body.Status != "ok" {
			t.Errorf("body status = %q, want ok", body.Status)
		}
	})

	t.Run("ok even while dependencies fail", func(t *testing.T) {
		h := New(Checker{Name: "postgres", Check: func(context.Context) error {
			return errors.New("connection refused")
		}})
		rec, _ := serve(t, h, "/healthz", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("json content type", func(t *testing.T) {
		rec, _ := serve(t, New(), "/healthz", nil)
		if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
			t.Errorf("Content-Type = %q", ct)
		}
	})
}

func TestReadyz(t *testing.T) {
	ok := func(context.Context) error { return nil }

	t.Run("all checks pass", func(t *testing.T) {
		h := New(
			Checker{Name: "postgres", Check: ok},
			Checker{Name: "redis", Check: ok},
		)
		rec, body := serve(t, h, "/readyz", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if body.Status != "ok" {
			t.Errorf("body status = %q, want ok", body.Status)
		}
		if body.Checks["postgres"] != "ok" || body.Checks["redis"] != "ok" {
			t.Errorf("checks = %v", body.Checks)
		}
	})

	t.Run("one failing check flips the probe", func(t *testing.T) {
		h := New(
			Checker{Name: "postgres", Check: func(context.Context) error {
				return errors.New("connection refused")
			}},
			Checker{Name: "redis", Check: ok},
		)
		rec, body := serve(t, h, "/readyz", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
		if body.Status != "fail" {
			t.Errorf("body status = %q, want fail", body.Status)
		}
		if body.Checks["postgres"] != "fail: connection refused" {
			t.Errorf("postgres check = %q", body.Checks["postgres"])
		}
		if body.Checks["redis"] != "ok" {
			t.Errorf("redis check = %q", body.Checks["redis"])
		}
	})

	t.Run("every check is reported even after a failure", func(t *testing.T) {
		h := New(
			Checker{Name: "postgres", Check: func(context.Context) error {
				return errors.New("timeout")
			}},
			Checker{Name: "embeddings", Check: func(context.Context) error {
				return errors.New("model not loaded")
			}},
		)
		_, body := serve(t, h, "/readyz", nil)
		if body.Checks["postgres"] != "fail: timeout" {
			t.Errorf("postgres check = %q", body.Checks["postgres"])
		}
		if body.Checks["embeddings"] != "fail: model not loaded" {
			t.Errorf("embeddings check = %q", body.Checks["embeddings"])
		}
	})

	t.Run("no checks means ready", func(t *testing.T) {
		rec, body := serve(t, New(), "/readyz", nil)
		if rec.Code != http.StatusOK || body.Status != "ok" {
			t.Errorf("status = %d body = %q", rec.Code, body.Status)
		}
	})

	t.Run("cancelled request cancels the checks", func(t *testing.T) {
		h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		rec, _ := serve(t, h, "/readyz", ctx)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}
