package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"matchBack/utils"
)

func testApp(t *testing.T) *application {
	t.Helper()
	tokens, err := utils.NewManager("test-secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return &application{
		infoLog:  log.New(io.Discard, "", 0),
		errorLog: log.New(io.Discard, "", 0),
		tokens:   tokens,
	}
}

func TestJWTMiddleware(t *testing.T) {
	app := testApp(t)
	var gotUser int
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = r.Context().Value("user_id").(int)
	})
	h := app.JWTMiddleware(next)

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/iap/premium", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("valid bearer", func(t *testing.T) {
		token, _ := app.tokens.NewJWT(42, "client", time.Hour)
		req := httptest.NewRequest(http.MethodGet, "/iap/premium", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || gotUser != 42 {
			t.Fatalf("status %d, user %d", rec.Code, gotUser)
		}
	})

	t.Run("query token only for upgrades", func(t *testing.T) {
		token, _ := app.tokens.NewJWT(7, "client", time.Hour)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/iap/premium?access_token="+token, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 without upgrade, got %d", rec.Code)
		}

		req := httptest.NewRequest(http.MethodGet, "/ws/billing?platform=ios&access_token="+token, nil)
		req.Header.Set("Upgrade", "websocket")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || gotUser != 7 {
			t.Fatalf("status %d, user %d", rec.Code, gotUser)
		}
	})

	t.Run("tampered token", func(t *testing.T) {
		token, _ := app.tokens.NewJWT(42, "client", time.Hour)
		req := httptest.NewRequest(http.MethodGet, "/iap/premium", nil)
		req.Header.Set("Authorization", "Bearer "+token+"x")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestRecoverPanic(t *testing.T) {
	app := testApp(t)
	h := app.recoverPanic(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if rec.Header().Get("Connection") != "close" {
		t.Fatal("expected Connection: close")
	}
}

func TestBillingWebSocketRejectsBadPlatform(t *testing.T) {
	app := testApp(t)
	req := httptest.NewRequest(http.MethodGet, "/ws/billing?platform=web", nil)
	rec := httptest.NewRecorder()
	app.BillingWebSocketHandler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user, got %d", rec.Code)
	}

	req = req.WithContext(context.WithValue(req.Context(), "user_id", 42))
	rec = httptest.NewRecorder()
	app.BillingWebSocketHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown platform, got %d", rec.Code)
	}
}
