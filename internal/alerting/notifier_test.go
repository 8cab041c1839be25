package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSlackNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	notifier := NewSlackNotifier(srv.URL, time.Second, testLogger())
	if err := notifier.Send(context.Background(), "strike 22000 up 120%"); err != nil {
		t.Fatalf("Send should succeed: %v", err)
	}
	if received["text"] != "strike 22000 up 120%" {
		t.Fatalf("unexpected payload: %#v", received)
	}
}

func TestSlackNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer srv.Close()

	notifier := NewSlackNotifier(srv.URL, time.Second, testLogger())
	err := notifier.Send(context.Background(), "x")
	if err == nil {
		t.Fatal("403 should fail")
	}
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid_token") {
		t.Fatalf("error should carry response body: %v", err)
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Telegram Send should succeed: %v", err)
	}
	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id mismatch: %#v", received)
	}
	if received["text"] != "hello" {
		t.Fatalf("text mismatch: %#v", received)
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Send(context.Background(), "hello"); !errors.Is(err, ErrTransport) {
		t.Fatalf("ok=false should be a transport error, got %v", err)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	good := &recordingNotifier{}
	bad := &recordingNotifier{failOn: map[string]bool{"m": true}}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := Fanout{bad, good}.Send(ctx, "m")
	if err == nil {
		t.Fatal("fanout should report the failing notifier")
	}
	if len(good.sent) != 1 {
		t.Fatalf("healthy notifier should still receive the message")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
