// Package slack implements a notify.Sink posting to Slack's
// chat.postMessage API directly over net/http: no Slack SDK for Go
// appears anywhere in the retrieved example pack (the original
// orchestrator's lib/slack_notifier.py used Python's slack_sdk), so the
// block/message shapes and truncation lengths are ported from that file
// onto a bare HTTP POST, the way pm's internal/api/api.go builds its own
// REST surface directly on net/http.
package slack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Hey-Diga/imploid/internal/notify"
)

const postMessageURL = "https://slack.com/api/chat.postMessage"

// Sink posts formatted messages to a single Slack channel.
type Sink struct {
	BotToken   string
	ChannelID  string
	HTTPClient *http.Client
	// URL overrides postMessageURL; used by tests.
	URL string
}

// New returns a Sink posting to channelID with botToken.
func New(botToken, channelID string) *Sink {
	return &Sink{BotToken: botToken, ChannelID: channelID, HTTPClient: http.DefaultClient}
}

func (s *Sink) url() string {
	if s.URL != "" {
		return s.URL
	}
	return postMessageURL
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func (s *Sink) post(text string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": s.ChannelID,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]string{"type": "mrkdwn", "text": text},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.url(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.BotToken)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack api returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *Sink) NotifyStart(e notify.Event) error {
	return s.post(fmt.Sprintf(":rocket: *Started issue #%d*: %s", e.IssueNumber, e.Title))
}

func (s *Sink) NotifyComplete(e notify.Event) error {
	return s.post(fmt.Sprintf(":white_check_mark: *Completed issue #%d* [%s]", e.IssueNumber, e.Duration))
}

func (s *Sink) NotifyNeedsInput(e notify.Event) error {
	snippet := truncate(e.Output, 500)
	return s.post(fmt.Sprintf(":hourglass: *Issue #%d needs input*:\n```\n%s\n```", e.IssueNumber, snippet))
}

func (s *Sink) NotifyError(e notify.Event) error {
	msg := fmt.Sprintf(":x: *Error on issue #%d*:\n%s", e.IssueNumber, e.Error)
	if e.Output != "" {
		msg += fmt.Sprintf("\n\nLast output:\n```\n%s\n```", truncate(e.Output, 300))
	}
	return s.post(msg)
}
