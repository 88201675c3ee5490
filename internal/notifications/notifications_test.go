package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type recordingSender struct {
	mu       sync.Mutex
	sent     []int64
	failFor  map[int64]bool
	messages []Message
}

func (r *recordingSender) Send(ctx context.Context, chatID int64, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[chatID] {
		return fmt.Errorf("delivery refused for %d", chatID)
	}
	r.sent = append(r.sent, chatID)
	r.messages = append(r.messages, msg)
	return nil
}

func TestNotify_FansOutToAllRecipients(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender)

	d.Notify(context.Background(), []int64{1, 2, 3}, Message{Text: "node down"})

	if len(sender.sent) != 3 {
		t.Errorf("sent to %d recipients, want 3", len(sender.sent))
	}
}

func TestNotify_FailureDoesNotBlockOthers(t *testing.T) {
	sender := &recordingSender{failFor: map[int64]bool{2: true}}
	d := NewDispatcher(sender)

	d.Notify(context.Background(), []int64{1, 2, 3}, Message{Text: "node down"})

	if len(sender.sent) != 2 {
		t.Fatalf("sent to %d recipients, want 2", len(sender.sent))
	}
	for _, id := range sender.sent {
		if id == 2 {
			t.Error("failing recipient should not appear in sent list")
		}
	}
}

func TestNotify_NoRecipientsIsNoop(t *testing.T) {
	sender := &recordingSender{}
	NewDispatcher(sender).Notify(context.Background(), nil, Message{Text: "x"})
	if len(sender.sent) != 0 {
		t.Errorf("sent = %v, want none", sender.sent)
	}
}

func TestTelegramSender_Send(t *testing.T) {
	var got struct {
		ChatID    int64  `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode failed: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sender := NewTelegramSender("TOKEN")
	sender.apiBase = srv.URL

	err := sender.Send(context.Background(), 42, Message{Text: "hello", ParseMode: ParseModeMarkdown})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got.ChatID != 42 || got.Text != "hello" || got.ParseMode != "Markdown" {
		t.Errorf("payload = %+v", got)
	}
}

func TestTelegramSender_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"description":"bot was blocked"}`))
	}))
	defer srv.Close()

	sender := NewTelegramSender("TOKEN")
	sender.apiBase = srv.URL

	if err := sender.Send(context.Background(), 42, Message{Text: "hello"}); err == nil {
		t.Fatal("expected error on 403")
	}
}
