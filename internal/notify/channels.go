// Package notify implements notification delivery for incident transitions.
// The engine hands a Message to the Dispatcher; channels deliver it to
// Telegram, email, Slack, or generic webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

// Message is one incident notification to be delivered.
type Message struct {
	IncidentID string    `json:"incident_id"`
	RuleName   string    `json:"rule_name"`
	Severity   string    `json:"severity"`
	ScopeKey   string    `json:"scope_key"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	FiredAt    time.Time `json:"fired_at"`
}

// Channel is the interface for all notification backends. Implementations
// must not share mutable state with the engine.
type Channel interface {
	// Send delivers a notification. Returns an error if delivery fails.
	Send(ctx context.Context, msg Message) error

	// ID returns the configured channel identifier rules refer to.
	ID() string

	// Type returns the channel type name.
	Type() string
}

// --- Telegram ---

// TelegramChannel sends notifications via the Telegram Bot API.
type TelegramChannel struct {
	id       string
	botToken string
	chatID   string
	client   *http.Client
}

func NewTelegramChannel(id, botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		id:       id,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramChannel) ID() string   { return t.id }
func (t *TelegramChannel) Type() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, msg Message) error {
	text := fmt.Sprintf("%s *%s*\n%s\n_%s / %s_",
		severityEmoji(msg.Severity), msg.Title, msg.Body, msg.RuleName, msg.ScopeKey)

	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, _ := json.Marshal(payload)
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// --- Email ---

// EmailChannel sends notifications over SMTP. The send function is
// injectable for tests.
type EmailChannel struct {
	id       string
	host     string
	port     int
	user     string
	password string
	from     string
	to       []string

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailChannel(id, host string, port int, user, password, from string, to []string) *EmailChannel {
	if port == 0 {
		port = 587
	}
	if from == "" {
		from = "mailwatch@localhost"
	}
	return &EmailChannel{
		id:       id,
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     from,
		to:       to,
		sendMail: smtp.SendMail,
	}
}

func (e *EmailChannel) ID() string   { return e.id }
func (e *EmailChannel) Type() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, msg Message) error {
	if e.host == "" || len(e.to) == 0 {
		return fmt.Errorf("email channel %s: missing smtp host or recipients", e.id)
	}

	var auth smtp.Auth
	if e.user != "" {
		auth = smtp.PlainAuth("", e.user, e.password, e.host)
	}
	addr := fmt.Sprintf("%s:%d", e.host, e.port)

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(msg.Severity), msg.Title)
	body := fmt.Sprintf("Rule: %s\nEntity: %s\nFired: %s\n\n%s\n",
		msg.RuleName, msg.ScopeKey, msg.FiredAt.Format(time.RFC3339), msg.Body)

	mail := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n%s\r\n",
		e.from, strings.Join(e.to, ","), subject, body))

	// net/smtp has no context support; the dispatcher's timeout bounds us.
	done := make(chan error, 1)
	go func() {
		done <- e.sendMail(addr, auth, e.from, e.to, mail)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("email send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- Slack ---

// SlackChannel sends notifications to Slack via incoming webhook.
type SlackChannel struct {
	id         string
	webhookURL string
	client     *http.Client
}

func NewSlackChannel(id, webhookURL string) *SlackChannel {
	return &SlackChannel{
		id:         id,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackChannel) ID() string   { return s.id }
func (s *SlackChannel) Type() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, msg Message) error {
	text := fmt.Sprintf("%s *[%s] %s*\n%s\nEntity: `%s`",
		severityEmoji(msg.Severity), strings.ToUpper(msg.Severity), msg.Title, msg.Body, msg.ScopeKey)

	body, _ := json.Marshal(map[string]string{"text": text})

	req, err := http.NewRequestWithContext(ctx, "POST", s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// --- Generic webhook ---

// WebhookChannel POSTs the message as JSON to an arbitrary endpoint.
type WebhookChannel struct {
	id      string
	url     string
	headers map[string]string
	client  *http.Client
}

func NewWebhookChannel(id, url string, headers map[string]string) *WebhookChannel {
	return &WebhookChannel{
		id:      id,
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookChannel) ID() string   { return w.id }
func (w *WebhookChannel) Type() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

func severityEmoji(severity string) string {
	switch severity {
	case "critical":
		return "🚨"
	case "warning":
		return "⚠️"
	default:
		return "ℹ️"
	}
}
