package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	alerts []Alert
	err    error
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestThrottled(t *testing.T) {
	rec := &recorder{}
	th := NewThrottled(rec, time.Minute)
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, th.Send(ctx, Alert{Title: "aggregation failed"}))
	require.NoError(t, th.Send(ctx, Alert{Title: "aggregation failed"}))
	require.NoError(t, th.Send(ctx, Alert{Title: "redis circuit open"}))
	assert.Len(t, rec.alerts, 2, "repeat within cooldown dropped")

	now = now.Add(61 * time.Second)
	require.NoError(t, th.Send(ctx, Alert{Title: "aggregation failed"}))
	assert.Len(t, rec.alerts, 3)
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("boom")}
	err := Multi{bad, ok}.Send(context.Background(), Alert{Title: "x"})
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, ok.alerts, 1, "later notifiers still run")
}

func TestWebhook(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{
		Level: AlertCritical, Title: "aggregation failed", Message: "store down",
	})
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL", got["level"])
	assert.Equal(t, "aggregation failed", got["title"])
	assert.Equal(t, "btcpulse", got["service"])
}

func TestWebhook_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"})
	assert.ErrorContains(t, err, "502")
}

func TestTelegram(t *testing.T) {
	var body struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottok123/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("tok123", "-100")
	tn.baseURL = srv.URL
	require.NoError(t, tn.Send(context.Background(), Alert{Level: AlertWarning, Title: "redis circuit open", Message: "5 failures."}))

	assert.Equal(t, "-100", body.ChatID)
	assert.Equal(t, "MarkdownV2", body.ParseMode)
	assert.Contains(t, body.Text, `5 failures\.`)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\*c\.d\!`, escapeMarkdown("a_b*c.d!"))
}

func TestNew_LogOnly(t *testing.T) {
	n := New(Config{}, nil)
	assert.NoError(t, n.Send(context.Background(), Alert{Level: AlertInfo, Title: "hello"}))
}
