// Package telegram implements a notify.Sink posting to the Telegram Bot
// API's sendMessage endpoint directly over net/http, mirroring the
// original orchestrator's lib/telegram_notifier.py (which used
// python-telegram-bot) without depending on a Go Telegram SDK — none
// exists in the retrieved example pack.
package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Hey-Diga/imploid/internal/notify"
)

const apiBase = "https://api.telegram.org"

// Sink posts formatted messages to a single Telegram chat.
type Sink struct {
	BotToken   string
	ChatID     string
	HTTPClient *http.Client
	// BaseURL overrides apiBase; used by tests.
	BaseURL string
}

// New returns a Sink posting to chatID with botToken.
func New(botToken, chatID string) *Sink {
	return &Sink{BotToken: botToken, ChatID: chatID, HTTPClient: http.DefaultClient}
}

func (s *Sink) base() string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return apiBase
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// SendMessage truncates message to 4000 chars (appending a truncation
// marker) and posts it with Markdown parsing.
func (s *Sink) SendMessage(message string) error {
	const maxLength = 4000
	if len(message) > maxLength {
		message = message[:maxLength] + "\n... (truncated)"
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id":    s.ChatID,
		"text":       message,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	u := fmt.Sprintf("%s/bot%s/sendMessage", s.base(), s.BotToken)
	req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post to telegram: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram api returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *Sink) NotifyStart(e notify.Event) error {
	return s.SendMessage(fmt.Sprintf("\U0001F680 *Started issue #%d*: %s", e.IssueNumber, e.Title))
}

func (s *Sink) NotifyComplete(e notify.Event) error {
	return s.SendMessage(fmt.Sprintf("✅ *Completed issue #%d* [%s]", e.IssueNumber, e.Duration))
}

func (s *Sink) NotifyNeedsInput(e notify.Event) error {
	return s.SendMessage(fmt.Sprintf("⏳ *Issue #%d needs input*:\n```\n%s\n```", e.IssueNumber, truncate(e.Output, 1000)))
}

func (s *Sink) NotifyError(e notify.Event) error {
	msg := fmt.Sprintf("❌ *Error on issue #%d*:\n%s", e.IssueNumber, e.Error)
	if e.Output != "" {
		msg += fmt.Sprintf("\n\nLast output:\n```\n%s\n```", truncate(e.Output, 500))
	}
	return s.SendMessage(msg)
}
