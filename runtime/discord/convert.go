package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging"
)

var buttonStyles = map[messaging.ButtonStyle]discordgo.ButtonStyle{
	messaging.StylePrimary:   discordgo.PrimaryButton,
	messaging.StyleSecondary: discordgo.SecondaryButton,
	messaging.StyleSuccess:   discordgo.SuccessButton,
	messaging.StyleDanger:    discordgo.DangerButton,
}

func toEmbeds(in []messaging.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(in))
	for _, e := range in {
		embed := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			Color:       e.Color,
		}
		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:   f.Name,
				Value:  f.Value,
				Inline: f.Inline,
			})
		}
		if e.Footer != "" {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		if !e.Timestamp.IsZero() {
			embed.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
		}
		out = append(out, embed)
	}
	return out
}

func fromEmbeds(in []*discordgo.MessageEmbed) []messaging.Embed {
	out := make([]messaging.Embed, 0, len(in))
	for _, e := range in {
		if e == nil {
			continue
		}
		embed := messaging.Embed{
			Title:       e.Title,
			Description: e.Description,
			Color:       e.Color,
		}
		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, messaging.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		if e.Footer != nil {
			embed.Footer = e.Footer.Text
		}
		if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
			embed.Timestamp = ts
		}
		out = append(out, embed)
	}
	return out
}

func toComponents(rows []messaging.Row) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		ar := discordgo.ActionsRow{}
		for _, c := range row {
			switch c.Kind {
			case messaging.ComponentButton:
				ar.Components = append(ar.Components, discordgo.Button{
					CustomID: c.CustomID,
					Label:    c.Label,
					Style:    buttonStyles[c.Style],
					Disabled: c.Disabled,
				})
			case messaging.ComponentSelect:
				menu := discordgo.SelectMenu{
					MenuType:    discordgo.StringSelectMenu,
					CustomID:    c.CustomID,
					Placeholder: c.Placeholder,
					Disabled:    c.Disabled,
				}
				for _, o := range c.Options {
					menu.Options = append(menu.Options, discordgo.SelectMenuOption{
						Label:       o.Label,
						Value:       o.Value,
						Description: o.Description,
					})
				}
				ar.Components = append(ar.Components, menu)
			}
		}
		if len(ar.Components) > 0 {
			out = append(out, ar)
		}
	}
	return out
}

// fromComponents accepts both the values built by toComponents and the
// pointers produced when discordgo decodes a message.
func fromComponents(in []discordgo.MessageComponent) []messaging.Row {
	var rows []messaging.Row
	for _, c := range in {
		var ar discordgo.ActionsRow
		switch v := c.(type) {
		case discordgo.ActionsRow:
			ar = v
		case *discordgo.ActionsRow:
			ar = *v
		default:
			continue
		}
		var row messaging.Row
		for _, inner := range ar.Components {
			if comp, ok := fromComponent(inner); ok {
				row = append(row, comp)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func fromComponent(c discordgo.MessageComponent) (messaging.Component, bool) {
	switch v := c.(type) {
	case *discordgo.Button:
		return fromButton(*v), true
	case discordgo.Button:
		return fromButton(v), true
	case *discordgo.SelectMenu:
		return fromSelect(*v), true
	case discordgo.SelectMenu:
		return fromSelect(v), true
	}
	return messaging.Component{}, false
}

func fromButton(b discordgo.Button) messaging.Component {
	comp := messaging.Button(b.CustomID, b.Label, messaging.StyleSecondary)
	for ours, theirs := range buttonStyles {
		if theirs == b.Style {
			comp.Style = ours
		}
	}
	comp.Disabled = b.Disabled
	return comp
}

func fromSelect(s discordgo.SelectMenu) messaging.Component {
	opts := make([]messaging.SelectOption, 0, len(s.Options))
	for _, o := range s.Options {
		opts = append(opts, messaging.SelectOption{Label: o.Label, Value: o.Value, Description: o.Description})
	}
	comp := messaging.Select(s.CustomID, s.Placeholder, opts...)
	comp.Disabled = s.Disabled
	return comp
}

func toModal(f *messaging.Form) *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{CustomID: f.CustomID, Title: f.Title}
	for _, in := range f.Inputs {
		style := discordgo.TextInputShort
		if in.Paragraph {
			style = discordgo.TextInputParagraph
		}
		data.Components = append(data.Components, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{discordgo.TextInput{
				CustomID:    in.CustomID,
				Label:       in.Label,
				Style:       style,
				Placeholder: in.Placeholder,
				Value:       in.Value,
				Required:    in.Required,
				MinLength:   in.MinLength,
				MaxLength:   in.MaxLength,
			}},
		})
	}
	return data
}

func messageFlags(p messaging.Payload) discordgo.MessageFlags {
	if p.Ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}

// responseData always carries non-nil slices so that an update clears the
// components and embeds of the message it replaces.
func responseData(p messaging.Payload) *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		Content:    p.Content,
		Embeds:     toEmbeds(p.Embeds),
		Components: toComponents(p.Rows),
		Flags:      messageFlags(p),
	}
}

func toResponse(r messaging.Response) *discordgo.InteractionResponse {
	switch r.Kind {
	case messaging.RespondUpdate:
		return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseUpdateMessage, Data: responseData(r.Payload)}
	case messaging.RespondDeferUpdate:
		return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
	case messaging.RespondForm:
		return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseModal, Data: toModal(r.Form)}
	default:
		return &discordgo.InteractionResponse{Type: discordgo.InteractionResponseChannelMessageWithSource, Data: responseData(r.Payload)}
	}
}

func fromMessage(m *discordgo.Message) *messaging.Message {
	if m == nil {
		return nil
	}
	msg := &messaging.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Embeds:    fromEmbeds(m.Embeds),
		Rows:      fromComponents(m.Components),
		Pinned:    m.Pinned,
		Ephemeral: m.Flags&discordgo.MessageFlagsEphemeral != 0,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorIsBot = m.Author.Bot
	}
	return msg
}

func fromMember(m *discordgo.Member) *messaging.User {
	if m == nil || m.User == nil {
		return nil
	}
	u := &messaging.User{
		ID:          m.User.ID,
		Username:    m.User.Username,
		DisplayName: m.User.Username,
		Bot:         m.User.Bot,
	}
	switch {
	case m.Nick != "":
		u.DisplayName = m.Nick
	case m.User.GlobalName != "":
		u.DisplayName = m.User.GlobalName
	}
	return u
}

// fromInteraction converts component and modal interactions. Other
// interaction types report false.
func fromInteraction(i *discordgo.Interaction) (*messaging.Event, bool) {
	ev := &messaging.Event{
		ID:        i.ID,
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Handle:    i,
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		ev.UserID = i.Member.User.ID
	case i.User != nil:
		ev.UserID = i.User.ID
	}
	if i.Message != nil {
		ev.MessageID = i.Message.ID
	}

	switch i.Type {
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		ev.CustomID = data.CustomID
		ev.Values = data.Values
		ev.Kind = messaging.EventButton
		if data.ComponentType != discordgo.ButtonComponent {
			ev.Kind = messaging.EventSelect
		}
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		ev.Kind = messaging.EventFormSubmit
		ev.CustomID = data.CustomID
		ev.Fields = formFields(data.Components)
	default:
		return nil, false
	}
	return ev, true
}

func formFields(rows []discordgo.MessageComponent) map[string]string {
	fields := make(map[string]string)
	for _, c := range rows {
		var inner []discordgo.MessageComponent
		switch row := c.(type) {
		case *discordgo.ActionsRow:
			inner = row.Components
		case discordgo.ActionsRow:
			inner = row.Components
		}
		for _, in := range inner {
			switch ti := in.(type) {
			case *discordgo.TextInput:
				fields[ti.CustomID] = ti.Value
			case discordgo.TextInput:
				fields[ti.CustomID] = ti.Value
			}
		}
	}
	return fields
}

// threadFromChannel converts a thread channel. The creation time is derived
// from the snowflake id.
func threadFromChannel(ch *discordgo.Channel) messaging.Thread {
	th := messaging.Thread{
		ID:       ch.ID,
		GuildID:  ch.GuildID,
		ParentID: ch.ParentID,
		OwnerID:  ch.OwnerID,
		Name:     ch.Name,
	}
	if ts, err := discordgo.SnowflakeTimestamp(ch.ID); err == nil {
		th.CreatedAt = ts
	}
	return th
}
