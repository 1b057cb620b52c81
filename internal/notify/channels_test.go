package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage() Message {
	return Message{
		IncidentID: "evt-1",
		RuleName:   "High CPU",
		Severity:   "critical",
		ScopeKey:   "mta-1",
		Title:      "High CPU fired",
		Body:       "cpu_percent at 97.00",
		FiredAt:    time.Now().UTC(),
	}
}

func TestWebhookChannelSend(t *testing.T) {
	var got Message
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhookChannel("hook", srv.URL, map[string]string{"X-Token": "secret"})
	require.NoError(t, ch.Send(context.Background(), sampleMessage()))

	assert.Equal(t, "evt-1", got.IncidentID)
	assert.Equal(t, "High CPU", got.RuleName)
	assert.Equal(t, "secret", gotHeader)
}

func TestWebhookChannelErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := NewWebhookChannel("hook", srv.URL, nil)
	err := ch.Send(context.Background(), sampleMessage())
	assert.ErrorContains(t, err, "502")
}

func TestSlackChannelSend(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewSlackChannel("slack", srv.URL)
	require.NoError(t, ch.Send(context.Background(), sampleMessage()))

	assert.Contains(t, payload["text"], "CRITICAL")
	assert.Contains(t, payload["text"], "High CPU fired")
	assert.Contains(t, payload["text"], "mta-1")
}

func TestEmailChannelSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	ch := NewEmailChannel("mail", "smtp.example.com", 587, "user", "pass",
		"alerts@example.com", []string{"oncall@example.com"})
	ch.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	require.NoError(t, ch.Send(context.Background(), sampleMessage()))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "alerts@example.com", gotFrom)
	assert.Equal(t, []string{"oncall@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: [CRITICAL] High CPU fired")
	assert.Contains(t, string(gotMsg), "Rule: High CPU")
}

func TestEmailChannelSendFailure(t *testing.T) {
	ch := NewEmailChannel("mail", "smtp.example.com", 0, "", "", "", []string{"x@example.com"})
	ch.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("connection refused")
	}

	err := ch.Send(context.Background(), sampleMessage())
	assert.ErrorContains(t, err, "connection refused")
}

func TestEmailChannelContextTimeout(t *testing.T) {
	ch := NewEmailChannel("mail", "smtp.example.com", 587, "", "", "", []string{"x@example.com"})
	ch.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		time.Sleep(time.Second)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := ch.Send(ctx, sampleMessage())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmailChannelMissingConfig(t *testing.T) {
	ch := NewEmailChannel("mail", "", 0, "", "", "", nil)
	err := ch.Send(context.Background(), sampleMessage())
	assert.Error(t, err)
}

func TestTelegramChannelFormatsMarkdown(t *testing.T) {
	// The Bot API URL embeds the token, so point the request at a local
	// server by rewriting through the client transport.
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/sendMessage"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewTelegramChannel("tg", "token123", "-100500")
	ch.client = srv.Client()
	ch.client.Transport = rewriteTransport{base: srv.Client().Transport, target: srv.URL}

	require.NoError(t, ch.Send(context.Background(), sampleMessage()))

	assert.Equal(t, "-100500", payload["chat_id"])
	assert.Equal(t, "Markdown", payload["parse_mode"])
	assert.Contains(t, payload["text"], "High CPU fired")
}

type rewriteTransport struct {
	base   http.RoundTripper
	target string
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rewritten, err := http.NewRequestWithContext(req.Context(), req.Method,
		t.target+req.URL.Path, req.Body)
	if err != nil {
		return nil, err
	}
	rewritten.Header = req.Header
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(rewritten)
}
