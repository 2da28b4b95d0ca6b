// Package discord connects the bot to the Discord gateway. Adapter
// implements messaging.Surface over the REST API and feeds gateway events
// to the interaction hub and the trigger gate.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	pkgerrors "github.com/Opizontas-Studio/dc-license-bot/pkg/errors"
	"github.com/Opizontas-Studio/dc-license-bot/pkg/httputil"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/logger"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/trigger"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/ui"
)

const component = "discord"

// ErrNotConnected is reported by Health until the gateway is ready.
var ErrNotConnected = errors.New("discord gateway not connected")

// API is the subset of *discordgo.Session the adapter calls.
type API interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessagePin(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessageUnpin(channelID, messageID string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponse(interaction *discordgo.Interaction, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
}

// Dispatcher receives newly created threads.
type Dispatcher interface {
	Dispatch(ctx context.Context, th messaging.Thread) trigger.Decision
}

// Adapter implements messaging.Surface.
type Adapter struct {
	api   API
	hub   *messaging.Hub
	ready atomic.Bool

	dispatcher Dispatcher
}

// NewAdapter creates an adapter over api. New threads are dropped until
// SetDispatcher is called.
func NewAdapter(api API) *Adapter {
	return &Adapter{
		api: api,
		hub: messaging.NewHub(),
	}
}

// NewSession creates a discordgo session for token whose REST client is
// traced and bounded by the gateway timeout.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, pkgerrors.New(component, "new_session", err)
	}
	s.Client = httputil.NewTracedClient(httputil.DefaultGatewayTimeout, "discord")
	s.Identify.Intents = discordgo.IntentsGuilds
	return s, nil
}

// SetDispatcher sets the receiver of new threads.
func (a *Adapter) SetDispatcher(d Dispatcher) {
	a.dispatcher = d
}

// Hub exposes the interaction correlation hub.
func (a *Adapter) Hub() *messaging.Hub {
	return a.hub
}

// Health reports ErrNotConnected while the gateway is down.
func (a *Adapter) Health(context.Context) error {
	if !a.ready.Load() {
		return ErrNotConnected
	}
	return nil
}

// Run registers the gateway handlers on s, opens the connection and blocks
// until ctx is done.
func (a *Adapter) Run(ctx context.Context, s *discordgo.Session) error {
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.ready.Store(true)
		logger.Info("discord gateway ready", "session_id", r.SessionID, "guilds", len(r.Guilds))
	})
	s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		a.ready.Store(false)
		logger.Warn("discord gateway disconnected")
	})
	s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		a.ready.Store(true)
	})
	s.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		a.HandleInteraction(ctx, i.Interaction)
	})
	s.AddHandler(func(_ *discordgo.Session, t *discordgo.ThreadCreate) {
		a.HandleThreadCreate(ctx, t.Channel, t.NewlyCreated)
	})

	if err := s.Open(); err != nil {
		return pkgerrors.New(component, "open", err)
	}
	<-ctx.Done()
	a.ready.Store(false)
	if err := s.Close(); err != nil {
		logger.GatewayError(context.Background(), "close", err)
	}
	return nil
}

// HandleInteraction routes a component or form interaction to the waiting
// session. Events nobody waits for get an ephemeral notice.
func (a *Adapter) HandleInteraction(ctx context.Context, i *discordgo.Interaction) {
	ev, ok := fromInteraction(i)
	if !ok {
		return
	}
	if a.hub.Dispatch(ev) {
		return
	}
	logger.DebugContext(ctx, "unclaimed interaction", "user_id", ev.UserID, "custom_id", ev.CustomID)
	if err := a.Respond(ctx, ev, messaging.Response{
		Kind:    messaging.RespondMessage,
		Payload: ui.Notice(ui.TextNotForYou),
	}); err != nil {
		logger.GatewayError(ctx, "respond_unclaimed", err)
	}
}

// HandleThreadCreate passes newly created threads to the dispatcher.
func (a *Adapter) HandleThreadCreate(ctx context.Context, ch *discordgo.Channel, newlyCreated bool) {
	if ch == nil || !newlyCreated || !ch.IsThread() || a.dispatcher == nil {
		return
	}
	a.dispatcher.Dispatch(ctx, threadFromChannel(ch))
}

// Send implements messaging.Channels.
func (a *Adapter) Send(ctx context.Context, channelID string, p messaging.Payload) (*messaging.Message, error) {
	m, err := a.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    p.Content,
		Embeds:     toEmbeds(p.Embeds),
		Components: toComponents(p.Rows),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, a.fail("send", err)
	}
	return fromMessage(m), nil
}

// Edit implements messaging.Channels.
func (a *Adapter) Edit(ctx context.Context, channelID, messageID string, p messaging.Payload) (*messaging.Message, error) {
	content := p.Content
	embeds := toEmbeds(p.Embeds)
	components := toComponents(p.Rows)
	m, err := a.api.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channelID,
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, a.fail("edit", err)
	}
	return fromMessage(m), nil
}

// Delete implements messaging.Channels.
func (a *Adapter) Delete(ctx context.Context, channelID, messageID string) error {
	if err := a.api.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return a.fail("delete", err)
	}
	return nil
}

// Fetch implements messaging.Channels.
func (a *Adapter) Fetch(ctx context.Context, channelID, messageID string) (*messaging.Message, error) {
	m, err := a.api.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, a.fail("fetch", err)
	}
	return fromMessage(m), nil
}

// Pin implements messaging.Channels.
func (a *Adapter) Pin(ctx context.Context, channelID, messageID string) error {
	if err := a.api.ChannelMessagePin(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return a.fail("pin", err)
	}
	return nil
}

// Unpin implements messaging.Channels.
func (a *Adapter) Unpin(ctx context.Context, channelID, messageID string) error {
	if err := a.api.ChannelMessageUnpin(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return a.fail("unpin", err)
	}
	return nil
}

// Respond implements messaging.Interactions.
func (a *Adapter) Respond(ctx context.Context, ev *messaging.Event, r messaging.Response) error {
	i, err := interaction(ev)
	if err != nil {
		return err
	}
	if r.Kind == messaging.RespondForm && r.Form == nil {
		return pkgerrors.Validation(component, "respond", "form response without a form", nil)
	}
	if err := a.api.InteractionRespond(i, toResponse(r), discordgo.WithContext(ctx)); err != nil {
		return a.fail("respond", err)
	}
	return nil
}

// ResponseMessage implements messaging.Interactions.
func (a *Adapter) ResponseMessage(ctx context.Context, ev *messaging.Event) (*messaging.Message, error) {
	i, err := interaction(ev)
	if err != nil {
		return nil, err
	}
	m, err := a.api.InteractionResponse(i, discordgo.WithContext(ctx))
	if err != nil {
		return nil, a.fail("response_message", err)
	}
	return fromMessage(m), nil
}

// Followup implements messaging.Interactions.
func (a *Adapter) Followup(ctx context.Context, ev *messaging.Event, p messaging.Payload) (*messaging.Message, error) {
	i, err := interaction(ev)
	if err != nil {
		return nil, err
	}
	m, err := a.api.FollowupMessageCreate(i, true, &discordgo.WebhookParams{
		Content:    p.Content,
		Embeds:     toEmbeds(p.Embeds),
		Components: toComponents(p.Rows),
		Flags:      messageFlags(p),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, a.fail("followup", err)
	}
	return fromMessage(m), nil
}

// Await implements messaging.Interactions.
func (a *Adapter) Await(ctx context.Context, timeout time.Duration, filters ...messaging.Filter) (*messaging.Event, error) {
	return a.hub.Await(ctx, timeout, filters...)
}

// Member implements messaging.Directory.
func (a *Adapter) Member(ctx context.Context, guildID, userID string) (*messaging.User, error) {
	m, err := a.api.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, a.fail("member", err)
	}
	u := fromMember(m)
	if u == nil {
		return nil, pkgerrors.New(component, "member", fmt.Errorf("member %s has no user", userID))
	}
	return u, nil
}

func (a *Adapter) fail(op string, err error) error {
	ce := pkgerrors.New(component, op, err)
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		ce = ce.WithStatusCode(rest.Response.StatusCode)
	}
	return ce
}

func interaction(ev *messaging.Event) (*discordgo.Interaction, error) {
	if ev == nil {
		return nil, pkgerrors.New(component, "interaction", errors.New("nil event")).WithKind(pkgerrors.KindCorrelation)
	}
	i, ok := ev.Handle.(*discordgo.Interaction)
	if !ok || i == nil {
		return nil, pkgerrors.New(component, "interaction",
			fmt.Errorf("event %s carries no discord interaction", ev.ID)).WithKind(pkgerrors.KindCorrelation)
	}
	return i, nil
}

var _ messaging.Surface = (*Adapter)(nil)
