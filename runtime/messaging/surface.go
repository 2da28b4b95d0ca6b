package messaging

import (
	"context"
	"time"
)

// Channels manipulates messages in a channel or thread.
type Channels interface {
	Send(ctx context.Context, channelID string, p Payload) (*Message, error)
	Edit(ctx context.Context, channelID, messageID string, p Payload) (*Message, error)
	Delete(ctx context.Context, channelID, messageID string) error
	Fetch(ctx context.Context, channelID, messageID string) (*Message, error)
	Pin(ctx context.Context, channelID, messageID string) error
	Unpin(ctx context.Context, channelID, messageID string) error
}

// Interactions answers interaction events and waits for new ones.
type Interactions interface {
	// Respond acknowledges ev. Every event must be acknowledged exactly once.
	Respond(ctx context.Context, ev *Event, r Response) error

	// ResponseMessage returns the message created by a RespondMessage reply to ev.
	ResponseMessage(ctx context.Context, ev *Event) (*Message, error)

	// Followup sends an additional message chained off an acknowledged event.
	Followup(ctx context.Context, ev *Event, p Payload) (*Message, error)

	// Await blocks until an event matching any filter arrives. It returns
	// nil, nil when timeout elapses first and ctx.Err() when ctx ends.
	Await(ctx context.Context, timeout time.Duration, filters ...Filter) (*Event, error)
}

// Directory looks up guild members.
type Directory interface {
	Member(ctx context.Context, guildID, userID string) (*User, error)
}

// Surface is the full chat capability used by a workflow session.
type Surface interface {
	Channels
	Interactions
	Directory
}
