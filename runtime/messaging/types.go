// Package messaging describes the chat surface the workflow drives: messages
// with interactive components, interaction events, and the correlation
// primitive that hands an event to the session waiting for it.
//
// The types here are transport neutral. runtime/discord adapts them to the
// Discord gateway and messagingtest provides a scripted fake.
package messaging

import (
	"slices"
	"time"
)

// Thread is a forum post that may trigger a workflow session.
type Thread struct {
	ID        string
	GuildID   string
	ParentID  string
	OwnerID   string
	Name      string
	CreatedAt time.Time
}

// User is a guild member as seen by the bot.
type User struct {
	ID          string
	Username    string
	DisplayName string
	Bot         bool
}

// ButtonStyle selects the colour of a button.
type ButtonStyle int

// Button styles.
const (
	StylePrimary ButtonStyle = iota + 1
	StyleSecondary
	StyleSuccess
	StyleDanger
)

// ComponentKind distinguishes buttons from select menus.
type ComponentKind int

// Component kinds.
const (
	ComponentButton ComponentKind = iota + 1
	ComponentSelect
)

// SelectOption is one entry of a select menu.
type SelectOption struct {
	Label       string
	Value       string
	Description string
}

// Component is an interactive control attached to a message.
type Component struct {
	Kind        ComponentKind
	CustomID    string
	Label       string
	Style       ButtonStyle
	Disabled    bool
	Placeholder string
	Options     []SelectOption
}

// Button builds a button component.
func Button(customID, label string, style ButtonStyle) Component {
	return Component{Kind: ComponentButton, CustomID: customID, Label: label, Style: style}
}

// Select builds a single-choice select menu.
func Select(customID, placeholder string, options ...SelectOption) Component {
	return Component{Kind: ComponentSelect, CustomID: customID, Placeholder: placeholder, Options: options}
}

// Row is one horizontal row of components.
type Row []Component

// EmbedField is a name/value pair rendered inside an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a rich content block.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
	Timestamp   time.Time
}

// Embed colours.
const (
	ColorBlue     = 0x3498db
	ColorDarkBlue = 0x206694
	ColorGreen    = 0x2ecc71
	ColorOrange   = 0xe67e22
	ColorRed      = 0xe74c3c
	ColorGrey     = 0x808080
)

// Payload is the content of a message to send or an edit to apply.
type Payload struct {
	Content   string
	Embeds    []Embed
	Rows      []Row
	Ephemeral bool
}

// CustomIDs lists every component custom id in the payload.
func (p Payload) CustomIDs() []string {
	var ids []string
	for _, row := range p.Rows {
		for _, c := range row {
			ids = append(ids, c.CustomID)
		}
	}
	return ids
}

// Message is a message as stored by the chat service.
type Message struct {
	ID          string
	ChannelID   string
	AuthorID    string
	AuthorIsBot bool
	Content     string
	Embeds      []Embed
	Rows        []Row
	Pinned      bool
	Ephemeral   bool
}

// EventKind classifies interaction events.
type EventKind int

// Event kinds.
const (
	EventButton EventKind = iota + 1
	EventSelect
	EventFormSubmit
)

// Event is an interaction performed by a user.
type Event struct {
	// ID is the interaction id assigned by the chat service.
	ID       string
	Kind     EventKind
	CustomID string
	// Values holds the chosen options of a select menu.
	Values []string
	// Fields holds form input values keyed by input custom id.
	Fields    map[string]string
	UserID    string
	GuildID   string
	ChannelID string
	// MessageID is the message carrying the component that was used.
	MessageID string
	// Handle is transport-specific state needed to respond to the event.
	Handle any
}

// Value returns the first selected value or "".
func (e *Event) Value() string {
	if e == nil || len(e.Values) == 0 {
		return ""
	}
	return e.Values[0]
}

// ResponseKind is how an interaction is acknowledged.
type ResponseKind int

// Response kinds.
const (
	// RespondMessage replies with a new message.
	RespondMessage ResponseKind = iota + 1
	// RespondUpdate edits the message that carries the component.
	RespondUpdate
	// RespondDeferUpdate acknowledges without changing anything.
	RespondDeferUpdate
	// RespondForm opens a text form.
	RespondForm
)

// FormInput is one text input of a form.
type FormInput struct {
	CustomID    string
	Label       string
	Placeholder string
	Value       string
	Paragraph   bool
	Required    bool
	MinLength   int
	MaxLength   int
}

// Form is a short modal text form.
type Form struct {
	CustomID string
	Title    string
	Inputs   []FormInput
}

// Response acknowledges an interaction event.
type Response struct {
	Kind    ResponseKind
	Payload Payload
	Form    *Form
}

// Filter selects the events a waiter accepts. UserID is mandatory so that
// events from other people never reach a session.
type Filter struct {
	UserID string
	// MessageID restricts component events to one message.
	MessageID string
	// CustomIDs restricts the accepted custom ids. Empty accepts any.
	CustomIDs []string
	// Form selects form submissions instead of component events.
	Form bool
}

// Matches reports whether ev satisfies the filter.
func (f Filter) Matches(ev *Event) bool {
	if ev == nil || f.UserID == "" || ev.UserID != f.UserID {
		return false
	}
	if f.Form != (ev.Kind == EventFormSubmit) {
		return false
	}
	if f.MessageID != "" && ev.MessageID != f.MessageID {
		return false
	}
	return len(f.CustomIDs) == 0 || slices.Contains(f.CustomIDs, ev.CustomID)
}

// MatchAny reports whether ev satisfies at least one filter.
func MatchAny(ev *Event, filters []Filter) bool {
	for _, f := range filters {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}
