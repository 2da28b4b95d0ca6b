// Package notify delivers backup-permission change events to an external
// archive service.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	pkgerrors "github.com/Opizontas-Studio/dc-license-bot/pkg/errors"
	"github.com/Opizontas-Studio/dc-license-bot/pkg/httputil"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/logger"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging"
)

const component = "notify"

// EventBackupPermissionUpdate is the event_type of every payload.
const EventBackupPermissionUpdate = "backup_permission_update"

// PreviewLength is the maximum number of runes in a content preview.
const PreviewLength = 100

// BackupChange describes a thread whose backup permission changed.
type BackupChange struct {
	Thread         messaging.Thread
	MessageID      string
	Author         license.Author
	LicenseName    string
	BackupAllowed  bool
	ContentPreview string
	At             time.Time
}

// Notifier delivers change events. Callers log failures and never retry.
type Notifier interface {
	Notify(ctx context.Context, change BackupChange) error
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, BackupChange) error { return nil }

// Payload is the JSON body posted to the endpoint.
type Payload struct {
	EventType string   `json:"event_type"`
	Timestamp string   `json:"timestamp"`
	GuildID   string   `json:"guild_id"`
	ChannelID string   `json:"channel_id"`
	ThreadID  string   `json:"thread_id"`
	MessageID string   `json:"message_id"`
	Author    Author   `json:"author"`
	WorkInfo  WorkInfo `json:"work_info"`
	URLs      URLs     `json:"urls"`
}

// Author identifies the post author.
type Author struct {
	DiscordUserID string `json:"discord_user_id"`
	Username      string `json:"username"`
	DisplayName   string `json:"display_name"`
}

// WorkInfo describes the post.
type WorkInfo struct {
	Title          string `json:"title"`
	ContentPreview string `json:"content_preview"`
	LicenseType    string `json:"license_type"`
	BackupAllowed  bool   `json:"backup_allowed"`
}

// URLs link to the thread and the announcement.
type URLs struct {
	DiscordThread string `json:"discord_thread"`
	DirectMessage string `json:"direct_message"`
}

// NewPayload builds the wire payload for a change.
func NewPayload(c BackupChange) Payload {
	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	t := c.Thread
	return Payload{
		EventType: EventBackupPermissionUpdate,
		Timestamp: at.UTC().Format(time.RFC3339),
		GuildID:   t.GuildID,
		ChannelID: t.ParentID,
		ThreadID:  t.ID,
		MessageID: c.MessageID,
		Author: Author{
			DiscordUserID: c.Author.UserID,
			Username:      c.Author.Username,
			DisplayName:   c.Author.Name(),
		},
		WorkInfo: WorkInfo{
			Title:          t.Name,
			ContentPreview: Truncate(c.ContentPreview, PreviewLength),
			LicenseType:    c.LicenseName,
			BackupAllowed:  c.BackupAllowed,
		},
		URLs: URLs{
			DiscordThread: fmt.Sprintf("https://discord.com/channels/%s/%s/%s", t.GuildID, t.ParentID, t.ID),
			DirectMessage: fmt.Sprintf("https://discord.com/channels/%s/%s/%s", t.GuildID, t.ID, c.MessageID),
		},
	}
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// WebhookNotifier posts payloads as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	endpoint string
	token    string
	enabled  bool
	client   *http.Client
	limiter  *rate.Limiter
}

// WebhookOption configures a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient replaces the traced default client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(n *WebhookNotifier) { n.client = c }
}

// WithRateLimit caps deliveries per second.
func WithRateLimit(perSecond float64) WebhookOption {
	return func(n *WebhookNotifier) {
		if perSecond > 0 {
			n.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithToken sends a bearer token with each request.
func WithToken(token string) WebhookOption {
	return func(n *WebhookNotifier) { n.token = token }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) WebhookOption {
	return func(n *WebhookNotifier) {
		if d > 0 {
			n.client = httputil.NewTracedClient(d, component)
		}
	}
}

// NewWebhookNotifier creates a notifier. A disabled notifier accepts every
// event without sending anything.
func NewWebhookNotifier(endpoint string, enabled bool, opts ...WebhookOption) *WebhookNotifier {
	n := &WebhookNotifier{
		endpoint: endpoint,
		enabled:  enabled,
		client:   httputil.NewTracedClient(httputil.DefaultWebhookTimeout, component),
		limiter:  rate.NewLimiter(rate.Limit(2), 1),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, change BackupChange) error {
	if !n.enabled {
		logger.DebugContext(ctx, "Backup notification disabled, skipping", "thread_id", change.Thread.ID)
		return nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return pkgerrors.New(component, "Notify", err)
	}

	body, err := json.Marshal(NewPayload(change))
	if err != nil {
		return pkgerrors.New(component, "Notify", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.New(component, "Notify", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	logger.InfoContext(ctx, "Sending backup notification",
		"endpoint", n.endpoint, "thread_id", change.Thread.ID, "backup_allowed", change.BackupAllowed)

	resp, err := n.client.Do(req)
	if err != nil {
		return pkgerrors.New(component, "Notify", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return pkgerrors.New(component, "Notify",
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(text))).
			WithStatusCode(resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

var (
	_ Notifier = Nop{}
	_ Notifier = (*WebhookNotifier)(nil)
)
