// Package publish posts license announcements into threads and keeps the
// per-thread announcement record, usage counters and backup notifications
// consistent with what is visible.
package publish

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/Opizontas-Studio/dc-license-bot/pkg/errors"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/events"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/logger"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/notify"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/store"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/ui"
)

const component = "publish"

// Content previews used when the starter post has no usable text.
const (
	PreviewEmpty       = "This post has no text content yet."
	PreviewUnavailable = "Content preview unavailable."
)

// ErrNoLicense is returned when a request carries no license.
var ErrNoLicense = errors.New("no license to publish")

// Request describes one publication.
type Request struct {
	Thread        messaging.Thread
	License       *license.Record
	BackupAllowed bool
	Author        license.Author
	// SessionID tags emitted events; empty outside a workflow session.
	SessionID string
}

// Result reports what a publication did.
type Result struct {
	Message       *messaging.Message
	Superseded    bool
	BackupChanged bool
}

// Publisher is the capability the workflow needs.
type Publisher interface {
	Publish(ctx context.Context, req Request) (*Result, error)
}

// Coordinator implements Publisher over a store, a channel surface and a notifier.
type Coordinator struct {
	store    store.Store
	channels messaging.Channels
	notifier notify.Notifier
	bus      *events.EventBus
	now      func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNotifier sets the backup-change notifier. The default discards events.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithEventBus emits publish and notification events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(c *Coordinator) { c.bus = bus }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator.
func NewCoordinator(st store.Store, channels messaging.Channels, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    st,
		channels: channels,
		notifier: notify.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Publish supersedes the thread's previous announcement, posts and pins the
// new one, records it, notifies on a backup permission change and counts
// the usage. Superseding, pinning, notification and usage counting are best
// effort; sending and recording the announcement are not.
func (c *Coordinator) Publish(ctx context.Context, req Request) (*Result, error) {
	if req.License == nil {
		return nil, pkgerrors.New(component, "Publish", ErrNoLicense)
	}
	if req.Thread.ID == "" {
		return nil, pkgerrors.New(component, "Publish", store.ErrInvalidID)
	}
	start := c.now()
	ctx = logger.WithThreadID(ctx, req.Thread.ID)
	res := &Result{}

	res.Superseded = c.supersede(ctx, req.Thread.ID)

	msg, err := c.channels.Send(ctx, req.Thread.ID, messaging.Payload{
		Embeds: []messaging.Embed{ui.Announcement(req.License, req.BackupAllowed, req.Author.Name(), start)},
	})
	if err != nil {
		return nil, pkgerrors.New(component, "SendAnnouncement", err)
	}
	res.Message = msg
	if err := c.channels.Pin(ctx, req.Thread.ID, msg.ID); err != nil {
		logger.WarnContext(ctx, "Failed to pin announcement", "message_id", msg.ID, "error", err)
	}

	changed, err := c.store.BackupChanged(ctx, req.Thread.ID, req.BackupAllowed)
	if err != nil {
		return nil, pkgerrors.New(component, "BackupChanged", err)
	}
	res.BackupChanged = changed

	if err := c.store.UpsertPublishedPost(ctx, &license.PublishedPost{
		ThreadID:      req.Thread.ID,
		MessageID:     msg.ID,
		UserID:        req.Author.UserID,
		BackupAllowed: req.BackupAllowed,
	}); err != nil {
		return nil, pkgerrors.New(component, "RecordPost", err)
	}

	if changed {
		c.notify(ctx, req, msg.ID)
	}

	if req.License.ID != 0 {
		if err := c.store.IncrementUsage(ctx, req.License.OwnerID, req.License.ID); err != nil {
			logger.WarnContext(ctx, "Failed to increment license usage",
				"license_id", req.License.ID, "error", err)
		}
	}

	logger.InfoContext(ctx, "License published",
		"license", req.License.Name, "message_id", msg.ID,
		"backup_allowed", req.BackupAllowed, "backup_changed", changed, "superseded", res.Superseded)
	c.bus.Publish(&events.Event{
		Type:      events.EventLicensePublished,
		SessionID: req.SessionID,
		UserID:    req.Author.UserID,
		ThreadID:  req.Thread.ID,
		Data: &events.LicensePublishedData{
			LicenseName:   req.License.Name,
			UserOwned:     req.License.ID != 0,
			BackupAllowed: req.BackupAllowed,
			BackupChanged: changed,
			Superseded:    res.Superseded,
			Duration:      c.now().Sub(start),
		},
	})
	return res, nil
}

// supersede relabels and unpins the thread's previous announcement.
func (c *Coordinator) supersede(ctx context.Context, threadID string) bool {
	prior, err := c.store.GetPublishedPost(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		logger.WarnContext(ctx, "Failed to look up previous announcement", "error", err)
		return false
	}

	old, err := c.channels.Fetch(ctx, threadID, prior.MessageID)
	if err != nil {
		logger.WarnContext(ctx, "Previous announcement not found", "message_id", prior.MessageID, "error", err)
		return false
	}

	relabelled := false
	if len(old.Embeds) > 0 && !ui.IsSuperseded(old.Embeds[0]) {
		embeds := append([]messaging.Embed{ui.Superseded(old.Embeds[0], c.now())}, old.Embeds[1:]...)
		if _, err := c.channels.Edit(ctx, threadID, old.ID, messaging.Payload{Content: old.Content, Embeds: embeds}); err != nil {
			logger.WarnContext(ctx, "Failed to relabel previous announcement", "message_id", old.ID, "error", err)
		} else {
			relabelled = true
		}
	}
	if old.Pinned {
		if err := c.channels.Unpin(ctx, threadID, old.ID); err != nil {
			logger.WarnContext(ctx, "Failed to unpin previous announcement", "message_id", old.ID, "error", err)
		}
	}
	return relabelled
}

func (c *Coordinator) notify(ctx context.Context, req Request, messageID string) {
	change := notify.BackupChange{
		Thread:         req.Thread,
		MessageID:      messageID,
		Author:         req.Author,
		LicenseName:    req.License.Name,
		BackupAllowed:  req.BackupAllowed,
		ContentPreview: c.preview(ctx, req.Thread.ID),
		At:             c.now(),
	}
	err := c.notifier.Notify(ctx, change)

	ev := &events.Event{
		Type:      events.EventNotificationSent,
		SessionID: req.SessionID,
		UserID:    req.Author.UserID,
		ThreadID:  req.Thread.ID,
		Data:      &events.NotificationData{BackupAllowed: req.BackupAllowed, Error: err},
	}
	if err != nil {
		ev.Type = events.EventNotificationFailed
		logger.ErrorContext(ctx, "Failed to send backup notification", "error", err)
	}
	c.bus.Publish(ev)
}

// preview returns the first runes of the thread's starter post, whose id
// equals the thread id.
func (c *Coordinator) preview(ctx context.Context, threadID string) string {
	starter, err := c.channels.Fetch(ctx, threadID, threadID)
	if err != nil {
		logger.DebugContext(ctx, "Starter post unavailable", "error", err)
		return PreviewUnavailable
	}
	if starter.AuthorIsBot || starter.Content == "" {
		return PreviewEmpty
	}
	return notify.Truncate(starter.Content, notify.PreviewLength)
}

var _ Publisher = (*Coordinator)(nil)
