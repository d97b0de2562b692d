package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"es-maker-bot/internal/config"

	"go.uber.org/zap"
)

func TestTelegramDisabledIsNoop(t *testing.T) {
	tg := NewTelegram(config.TelegramConfig{Enabled: false}, zap.NewNop())
	if err := tg.Send(context.Background(), "ignored"); err != nil {
		t.Fatalf("disabled send must be a no-op, got %v", err)
	}
}

func TestTelegramSend(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tg := newTelegram(config.TelegramConfig{Enabled: true, Token: "tok", ChatID: "42"}, zap.NewNop(), server.URL, server.Client())
	if err := tg.Send(context.Background(), "regime tripped"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if gotPath != "/bottok/sendMessage" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody["chat_id"] != "42" || gotBody["text"] != "regime tripped" {
		t.Fatalf("unexpected payload %v", gotBody)
	}
}

func TestTelegramSendFailureSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	tg := newTelegram(config.TelegramConfig{Enabled: true, Token: "tok", ChatID: "42"}, zap.NewNop(), server.URL, server.Client())
	if err := tg.Send(context.Background(), "x"); err == nil {
		t.Fatalf("expected error on non-2xx response")
	}
}

func TestTelegramMissingCredentials(t *testing.T) {
	tg := NewTelegram(config.TelegramConfig{Enabled: true}, zap.NewNop())
	if err := tg.Send(context.Background(), "x"); err == nil {
		t.Fatalf("expected error without token and chat id")
	}
}
