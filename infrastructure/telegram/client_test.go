package telegram

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"secret-santa/domain"
	"secret-santa/errors"
)

const token = "123:test"

// fakeAPI answers Bot API calls with canned bodies, one per call, the last one repeating.
type fakeAPI struct {
	mu      sync.Mutex
	answers map[string][]string
	calls   map[string][]map[string]any
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{answers: map[string][]string{}, calls: map[string][]map[string]any{}}
}

func (f *fakeAPI) on(method string, bodies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[method] = bodies
}

func (f *fakeAPI) requests(method string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/bot"+token+"/")
	raw, _ := io.ReadAll(r.Body)
	var payload map[string]any
	_ = json.Unmarshal(raw, &payload)

	f.mu.Lock()
	f.calls[method] = append(f.calls[method], payload)
	bodies := f.answers[method]
	n := len(f.calls[method])
	f.mu.Unlock()

	if len(bodies) == 0 {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		return
	}
	body := bodies[min(n, len(bodies))-1]
	var probe response
	_ = json.Unmarshal([]byte(body), &probe)
	if !probe.OK && probe.ErrorCode != 0 {
		w.WriteHeader(probe.ErrorCode)
	}
	_, _ = w.Write([]byte(body))
}

func newTestClient(t *testing.T, api *fakeAPI, retries int) *Client {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	return NewClient(server.URL, token, retries, slog.Default(),
		WithRetryDelay(time.Millisecond), WithHTTPClient(server.Client()))
}

func TestClient_SendText_Inline_Keyboard(t *testing.T) {
	req := require.New(t)
	api := newFakeAPI()
	api.on("sendMessage", `{"ok":true,"result":{"message_id":77,"chat":{"id":42,"type":"private"}}}`)
	client := newTestClient(t, api, 0)

	ref, err := client.SendText(context.Background(), 42, domain.Message{
		Text:      "<b>hi</b>",
		ParseMode: domain.HTML,
		Keyboard: &domain.Keyboard{Inline: true, Rows: [][]domain.Button{
			{{Text: "Join", Payload: "accept"}},
		}},
	})

	req.NoError(err)
	req.Equal(domain.MessageRef{ChatID: 42, MessageID: 77}, ref)
	sent := api.requests("sendMessage")
	req.Len(sent, 1)
	req.EqualValues(42, sent[0]["chat_id"])
	req.Equal("HTML", sent[0]["parse_mode"])
	req.Equal(map[string]any{
		"inline_keyboard": []any{[]any{map[string]any{"text": "Join", "callback_data": "accept"}}},
	}, sent[0]["reply_markup"])
}

func TestClient_SendText_Without_Keyboard(t *testing.T) {
	req := require.New(t)
	api := newFakeAPI()
	api.on("sendMessage", `{"ok":true,"result":{"message_id":1,"chat":{"id":42,"type":"private"}}}`)
	client := newTestClient(t, api, 0)

	_, err := client.SendText(context.Background(), 42, domain.Message{Text: "plain"})

	req.NoError(err)
	sent := api.requests("sendMessage")[0]
	req.NotContains(sent, "reply_markup")
	req.NotContains(sent, "parse_mode")
}

func TestClient_Retries_When_Rate_Limited(t *testing.T) {
	req := require.New(t)
	api := newFakeAPI()
	api.on("sendMessage",
		`{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":0}}`,
		`{"ok":false,"error_code":502,"description":"Bad Gateway"}`,
		`{"ok":true,"result":{"message_id":5,"chat":{"id":42,"type":"private"}}}`,
	)
	client := newTestClient(t, api, 3)

	ref, err := client.SendText(context.Background(), 42, domain.Message{Text: "hi"})

	req.NoError(err)
	req.Equal(int64(5), ref.MessageID)
	req.Len(api.requests("sendMessage"), 3)
}

func TestClient_Gives_Up_After_Retries(t *testing.T) {
	req := require.New(t)
	api := newFakeAPI()
	api.on("sendMessage", `{"ok":false,"error_code":429,"description":"Too Many Requests"}`)
	client := newTestClient(t, api, 2)

	_, err := client.SendText(context.Background(), 42, domain.Message{Text: "hi"})

	req.ErrorIs(err, errors.ErrRateLimited)
	req.ErrorIs(err, errors.ErrTransport)
	req.Len(api.requests("sendMessage"), 3)
}

func TestClient_Does_Not_Retry_Client_Errors(t *testing.T) {
	req := require.New(t)
	api := newFakeAPI()
	api.on("sendMessage", `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`)
	client := newTestClient(t, api, 5)

	_, err := client.SendText(context.Background(), 42, domain.Message{Text: "hi"})

	req.ErrorIs(err, errors.ErrTransport)
	req.NotErrorIs(err, errors.ErrRateLimited)
	req.Contains(err.Error(), "blocked")
	req.Len(api.requests("sendMessage"), 1)
}

func TestClient_EditText_And_Acknowledge(t *testing.T) {
	req := require.New(t)
	api := newFakeAPI()
	api.on("editMessageText", `{"ok":true,"result":true}`)
	api.on("answerCallbackQuery", `{"ok":true,"result":true}`)
	client := newTestClient(t, api, 0)

	req.NoError(client.EditText(context.Background(), domain.MessageRef{ChatID: 42, MessageID: 9}, domain.Message{
		Text:     "menu",
		Keyboard: &domain.Keyboard{Rows: [][]domain.Button{{{Text: "reply key"}}}},
	}))
	req.NoError(client.AcknowledgeInteraction(context.Background(), "cb-1", ""))

	edit := api.requests("editMessageText")[0]
	req.EqualValues(9, edit["message_id"])
	// Reply keyboards cannot be attached to an edited message
	req.NotContains(edit, "reply_markup")
	req.Equal("cb-1", api.requests("answerCallbackQuery")[0]["callback_query_id"])
}

func TestClient_GetMe(t *testing.T) {
	req := require.New(t)
	api := newFakeAPI()
	api.on("getMe", `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Santa","username":"santa_bot"}}`)
	client := newTestClient(t, api, 0)

	me, err := client.GetMe(context.Background())

	req.NoError(err)
	req.Equal("santa_bot", me.Username)
	req.True(me.IsBot)
}

func TestSource_Translates_Updates_And_Advances_Offset(t *testing.T) {
	req := require.New(t)
	api := newFakeAPI()
	api.on("getUpdates", `{"ok":true,"result":[
		{"update_id":10,"message":{"message_id":1,"from":{"id":7,"first_name":"Ann","last_name":"Lee","username":"ann"},"chat":{"id":7,"type":"private"},"text":"/start"}},
		{"update_id":11,"message":{"message_id":2,"from":{"id":8,"first_name":""},"chat":{"id":-5,"type":"group"},"text":"hello"}},
		{"update_id":12,"callback_query":{"id":"cb","from":{"id":8,"first_name":" "},"message":{"message_id":3,"chat":{"id":8,"type":"private"}},"data":"budget:500"}}
	]}`, `{"ok":true,"result":[]}`)
	client := newTestClient(t, api, 0)
	source := NewSource(client, 100, 0, slog.Default())

	events, err := source.Poll(context.Background())
	req.NoError(err)

	// Group messages are ignored
	req.Len(events, 2)
	req.Equal(domain.TextEvent{
		ID:     10,
		Sender: domain.Sender{ID: 7, DisplayName: "Ann Lee", Handle: "ann"},
		Text:   "/start",
	}, events[0])
	req.Equal(domain.InteractionEvent{
		ID:            12,
		Sender:        domain.Sender{ID: 8, DisplayName: "User_8"},
		InteractionID: "cb",
		Payload:       "budget:500",
		Origin:        &domain.MessageRef{ChatID: 8, MessageID: 3},
	}, events[1])

	// The next poll confirms everything fetched so far
	_, err = source.Poll(context.Background())
	req.NoError(err)
	polls := api.requests("getUpdates")
	req.Len(polls, 2)
	req.EqualValues(13, polls[1]["offset"])
}

func TestSource_Keeps_Offset_On_Error(t *testing.T) {
	req := require.New(t)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":502,"description":"Bad Gateway"}`))
	}))
	defer server.Close()
	source := NewSource(NewClient(server.URL, token, 3, slog.Default()), 100, 0, slog.Default())

	_, err := source.Poll(context.Background())

	req.ErrorIs(err, errors.ErrTransport)
	req.Equal(int64(0), source.offset)
	// Polling itself is never retried by the client
	req.Equal(int32(1), calls.Load())
}
