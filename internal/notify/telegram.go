package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aelpxy/stash/internal/backup"
	"github.com/aelpxy/stash/internal/utils"
	"github.com/goccy/go-json"
)

const (
	DefaultBaseURL   = "https://api.telegram.org"
	MaxMessageLength = 4096
	requestTimeout   = 30 * time.Second
)

type Telegram struct {
	client  *http.Client
	baseURL string
	token   string
	chatID  string
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		client:  &http.Client{Timeout: requestTimeout},
		baseURL: DefaultBaseURL,
		token:   token,
		chatID:  chatID,
	}
}

// WithBaseURL points the notifier at another Bot API server.
func (t *Telegram) WithBaseURL(baseURL string) *Telegram {
	t.baseURL = strings.TrimRight(baseURL, "/")
	return t
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

func (t *Telegram) Notify(ctx context.Context, summary *backup.Summary) error {
	return t.Send(ctx, FormatSummary(summary))
}

// Send posts an HTML message to the configured chat.
func (t *Telegram) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                t.chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to encode telegram message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %s", t.redact(err.Error()))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("failed to read telegram response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("unexpected telegram response (status %d)", resp.StatusCode)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram rejected message: %d %s", apiResp.ErrorCode, apiResp.Description)
	}

	return nil
}

// the request url carries the bot token
func (t *Telegram) redact(s string) string {
	if t.token == "" {
		return s
	}
	return strings.ReplaceAll(s, t.token, utils.MaskSensitive(t.token, 4))
}

// FormatSummary renders a pass summary as Telegram HTML. Lines that would
// push the message over the limit are dropped and counted instead.
func FormatSummary(s *backup.Summary) string {
	lines := []string{
		fmt.Sprintf("<b>stash</b> run <code>%s</code>", html.EscapeString(s.RunID)),
		fmt.Sprintf("Pruned: %s, Created: %s",
			utils.FormatBytes(s.PrunedBytes), utils.FormatBytes(s.CreatedBytes)),
		fmt.Sprintf("Backups: %d created, %d pruned, %d ghosts removed",
			s.BackupsCreated, s.RecordsPruned, s.GhostsRemoved),
	}
	if s.Disk != nil {
		lines = append(lines, fmt.Sprintf("Remaining disk space: %s, %s",
			utils.FormatPercent(s.Disk.FreePercent()), utils.FormatBytes(int64(s.Disk.Free))))
	}

	var details []string
	if len(s.Failures) > 0 {
		details = append(details, "", "<b>Error(s) encountered!</b>")
		for _, f := range s.Failures {
			details = append(details, "- "+html.EscapeString(f.Subject+": "+f.Err))
		}
	}
	if len(s.Warnings) > 0 {
		details = append(details, "", "<b>Warning(s) encountered!</b>")
		for _, w := range s.Warnings {
			details = append(details, "- "+html.EscapeString(w))
		}
	}

	return fitLines(lines, details, MaxMessageLength)
}

func fitLines(head, tail []string, limit int) string {
	var b strings.Builder
	b.WriteString(strings.Join(head, "\n"))

	const reserve = 32
	for i, line := range tail {
		if b.Len()+len(line)+1 > limit-reserve {
			fmt.Fprintf(&b, "\n... %d more lines", len(tail)-i)
			break
		}
		b.WriteString("\n")
		b.WriteString(line)
	}

	return utils.TruncateString(b.String(), limit)
}
