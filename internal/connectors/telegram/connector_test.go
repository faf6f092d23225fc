package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dwizi/region-relay/internal/catalog"
	"github.com/dwizi/region-relay/internal/dispatch"
	"github.com/dwizi/region-relay/internal/gateway"
	"github.com/dwizi/region-relay/internal/relay"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingHandler struct {
	mu       sync.Mutex
	messages []gateway.Message
}

func (h *recordingHandler) HandleMessage(_ context.Context, message gateway.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, message)
	return nil
}

type fullDispatcher struct{}

func (fullDispatcher) Enqueue(dispatch.Job) (dispatch.Job, error) {
	return dispatch.Job{}, dispatch.ErrQueueFull
}

type adminHandler struct {
	recordingHandler
	admins []int64
}

func (h *adminHandler) AdminIDs(context.Context) ([]int64, error) {
	return h.admins, nil
}

type commandSync struct {
	Commands []botCommand `json:"commands"`
	Scope    *struct {
		Type   string `json:"type"`
		ChatID int64  `json:"chat_id"`
	} `json:"scope"`
}

func TestSyncCommandsScopesAdminMenu(t *testing.T) {
	var mu sync.Mutex
	var syncs []commandSync
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.Contains(req.URL.Path, "/setMyCommands") {
			http.NotFound(w, req)
			return
		}
		var payload commandSync
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		mu.Lock()
		syncs = append(syncs, payload)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": true})
	}))
	defer server.Close()

	connector := New("test-token", server.URL, 1, testLogger())
	connector.SetHandler(&adminHandler{admins: []int64{1, 5}})
	if err := connector.syncCommands(context.Background()); err != nil {
		t.Fatalf("syncCommands failed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(syncs) != 3 {
		t.Fatalf("expected public menu plus two admin menus, got %d calls", len(syncs))
	}

	public := syncs[0]
	if public.Scope != nil {
		t.Fatalf("expected default scope for the public menu, got %+v", public.Scope)
	}
	publicNames := []string{}
	for _, command := range public.Commands {
		publicNames = append(publicNames, command.Command)
	}
	if diff := cmp.Diff([]string{"start", "help"}, publicNames); diff != "" {
		t.Fatalf("public menu mismatch (-want +got):\n%s", diff)
	}

	for index, adminID := range []int64{1, 5} {
		scoped := syncs[index+1]
		if scoped.Scope == nil || scoped.Scope.Type != "chat" || scoped.Scope.ChatID != adminID {
			t.Fatalf("expected chat scope for admin %d, got %+v", adminID, scoped.Scope)
		}
		if len(scoped.Commands) != len(gateway.SlashCommands()) {
			t.Fatalf("expected %d admin commands, got %d", len(gateway.SlashCommands()), len(scoped.Commands))
		}
		for _, command := range scoped.Commands {
			if command.Command == "" || command.Description == "" {
				t.Fatalf("incomplete command %+v", command)
			}
		}
	}
}

func TestSyncCommandsWithoutAdminDirectory(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": true})
	}))
	defer server.Close()

	connector := New("test-token", server.URL, 1, testLogger())
	connector.SetHandler(&recordingHandler{})
	if err := connector.syncCommands(context.Background()); err != nil {
		t.Fatalf("syncCommands failed: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected only the public menu, got %d calls", got)
	}
}

func TestSendCallsCarryTelegramFields(t *testing.T) {
	var mu sync.Mutex
	calls := map[string][]map[string]any{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body := map[string]any{}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		method := req.URL.Path[strings.LastIndex(req.URL.Path, "/")+1:]
		mu.Lock()
		calls[method] = append(calls[method], body)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": 1}})
	}))
	defer server.Close()

	connector := New("test-token", server.URL, 1, testLogger())
	ctx := context.Background()
	if err := connector.SendMessage(ctx, 42, "Region: CENTRAL"); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if err := connector.ReplyTo(ctx, -100, 7, "Accepted 1"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if err := connector.ForwardMessage(ctx, 42, -100, 7); err != nil {
		t.Fatalf("forward: %v", err)
	}

	want := map[string][]map[string]any{
		"sendMessage": {
			{"chat_id": float64(42), "text": "Region: CENTRAL"},
			{"chat_id": float64(-100), "text": "Accepted 1", "reply_to_message_id": float64(7)},
		},
		"forwardMessage": {
			{"chat_id": float64(42), "from_chat_id": float64(-100), "message_id": float64(7)},
		},
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRetryAfterIsHonoured(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":          false,
				"error_code":  429,
				"description": "Too Many Requests: retry after 2",
				"parameters":  map[string]any{"retry_after": 2},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": true})
	}))
	defer server.Close()

	connector := New("test-token", server.URL, 1, testLogger())
	connector.retryUnit = time.Millisecond
	if err := connector.SendMessage(context.Background(), 1, "hello"); err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected three attempts, got %d", got)
	}
}

func TestRetryAfterIsBounded(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"error_code":  429,
			"description": "Too Many Requests: retry after 1",
			"parameters":  map[string]any{"retry_after": 1},
		})
	}))
	defer server.Close()

	connector := New("test-token", server.URL, 1, testLogger(), WithMaxSendRetries(2))
	connector.retryUnit = time.Millisecond
	err := connector.ForwardMessage(context.Background(), 1, 2, 3)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 429 || apiErr.Method != "forwardMessage" {
		t.Fatalf("expected 429 APIError, got %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected initial call plus two retries, got %d", got)
	}
}

func TestAPIErrorWithoutRetryFailsFast(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"error_code":  400,
			"description": "Bad Request: message to forward not found",
		})
	}))
	defer server.Close()

	connector := New("test-token", server.URL, 1, testLogger())
	if err := connector.ForwardMessage(context.Background(), 1, 2, 3); err == nil {
		t.Fatal("expected error")
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestPollOnceConvertsUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.Contains(req.URL.Path, "/getUpdates") {
			http.NotFound(w, req)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": []map[string]any{
				{
					"update_id": 10,
					"message": map[string]any{
						"message_id": 5,
						"from":       map[string]any{"id": 77, "username": "reporter"},
						"chat":       map[string]any{"id": -100, "type": "supergroup", "title": "Feed"},
						"caption":    "photo caption",
					},
				},
				{
					"update_id": 11,
					"message": map[string]any{
						"message_id": 6,
						"from":       map[string]any{"id": 77},
						"chat":       map[string]any{"id": 77, "type": "private"},
						"text":       "capital 24",
					},
				},
				{
					"update_id": 12,
					"message": map[string]any{
						"message_id":         7,
						"chat":               map[string]any{"id": -100, "type": "group"},
						"migrate_to_chat_id": -1000100,
					},
				},
				{"update_id": 13},
			},
		})
	}))
	defer server.Close()

	handler := &recordingHandler{}
	connector := New("test-token", server.URL, 1, testLogger())
	connector.SetHandler(handler)
	if err := connector.pollOnce(context.Background()); err != nil {
		t.Fatalf("poll once: %v", err)
	}
	if connector.offset != 14 {
		t.Fatalf("expected offset 14, got %d", connector.offset)
	}
	want := []gateway.Message{
		{ChatID: -100, MessageID: 5, FromUserID: 77},
		{ChatID: 77, MessageID: 6, FromUserID: 77, Private: true, Text: "capital 24"},
		{ChatID: -100, MessageID: 7, MigrateToChatID: -1000100},
	}
	if diff := cmp.Diff(want, handler.messages); diff != "" {
		t.Fatalf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestRouteThroughDispatcher(t *testing.T) {
	handler := &recordingHandler{}
	engine := dispatch.New(2, 4, testLogger())
	connector := New("test-token", "http://unused", 1, testLogger(), WithDispatcher(engine))
	connector.SetHandler(handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = engine.Start(ctx)
		close(done)
	}()
	connector.route(ctx, 1, gateway.Message{ChatID: -100, MessageID: 1, Text: "first"})
	connector.route(ctx, 2, gateway.Message{ChatID: -100, MessageID: 2, Text: "second"})

	deadline := time.After(2 * time.Second)
	for {
		handler.mu.Lock()
		count := len(handler.messages)
		handler.mu.Unlock()
		if count == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for dispatched messages")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if handler.messages[0].Text != "first" || handler.messages[1].Text != "second" {
		t.Fatalf("expected chat order to be kept, got %+v", handler.messages)
	}

	dropping := New("test-token", "http://unused", 1, testLogger(), WithDispatcher(fullDispatcher{}))
	dropping.SetHandler(handler)
	dropping.route(context.Background(), 3, gateway.Message{ChatID: -100, Text: "dropped"})
	if len(handler.messages) != 2 {
		t.Fatalf("expected dropped message not to be handled, got %d", len(handler.messages))
	}
}

func TestStartDisabledWithoutToken(t *testing.T) {
	connector := New("", "", 0, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = connector.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected disabled connector to stop on cancel")
	}
}

func TestTelegramCommandName(t *testing.T) {
	cases := map[string]string{
		"list_users":  "list_users",
		"Admin-Chan":  "admin_chan",
		" statdb ":    "statdb",
		"bad name!!":  "badname",
		"__private__": "private",
	}
	for input, want := range cases {
		if got := telegramCommandName(input); got != want {
			t.Fatalf("telegramCommandName(%q) = %q, want %q", input, got, want)
		}
	}
}

type discardWriter struct{}

func (discardWriter) InsertBatch(context.Context, []relay.StoredMessage) error { return nil }

func TestCaptionedMediaIsBuffered(t *testing.T) {
	cat, err := catalog.New([]catalog.Region{{Code: "CENTRAL", Aliases: []string{"capital"}}}, []string{"A"})
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	buffer := relay.NewChatBuffer(-100, cat, discardWriter{})

	for index, caption := range []string{"look at this", "capital"} {
		var update telegramUpdate
		raw := fmt.Sprintf(`{"update_id": %d, "message": {"message_id": %d, "chat": {"id": -100, "type": "supergroup"}, "caption": %q, "photo": [{"file_id": "x"}]}}`, index, index+1, caption)
		if err := json.Unmarshal([]byte(raw), &update); err != nil {
			t.Fatalf("decode update: %v", err)
		}
		message := toGatewayMessage(*update.Message)
		if message.Text != "" {
			t.Fatalf("expected caption to be dropped, got %q", message.Text)
		}
		outcome, err := buffer.Handle(context.Background(), message.MessageID, message.Text)
		if err != nil {
			t.Fatalf("handle captioned media %q: %v", caption, err)
		}
		if outcome.Kind != relay.OutcomeRemembered || outcome.Count != index+1 {
			t.Fatalf("expected media %q to be remembered, got %+v", caption, outcome)
		}
	}
	if buffer.Len() != 2 {
		t.Fatalf("expected two buffered media messages, got %d", buffer.Len())
	}
}
