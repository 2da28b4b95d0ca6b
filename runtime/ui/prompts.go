package ui

import (
	"fmt"

	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging"
)

// User-facing copy.
const (
	TextGuidance = "Hi! We noticed you just created a new post. " +
		"Would you like a license to be added to your posts automatically?"
	TextEnabled         = "✅ Auto-publish is enabled!\n\nChoose the license you want to use:"
	TextDisabled        = "Okay. If you change your mind you can enable it any time from the auto-publish settings."
	TextPublished       = "✅ License published!"
	TextPublishCanceled = "❌ Publishing cancelled."
	TextSetupPublished  = "✅ License created, set as your default and published to this post!"
	TextSetupSkipped    = "✅ License created and set as your default. " +
		"It will be published automatically on your next post."
	TextEditCancelled = "License creation cancelled. Auto-publish stays enabled; " +
		"pick another option below or exit the setup."
	TextSaved        = "✅ License saved!"
	TextEditorClosed = "Editor closed."
	TextSetupExited  = "Okay. You can finish the setup any time from the auto-publish settings."

	TextTemplateMissing = "The selected template is no longer available. Please choose another one."
	TextNotForYou       = "This menu belongs to someone else or has expired."
)

// Guidance asks a first-time user whether to enable auto-publish.
func Guidance() messaging.Payload {
	return messaging.Payload{
		Content: TextGuidance,
		Rows: []messaging.Row{{
			messaging.Button(IDEnableSetup, "Enable", messaging.StyleSuccess),
			messaging.Button(IDDisableSetup, "No thanks", messaging.StyleDanger),
		}},
	}
}

// SelectionMenu offers a new license or any template as a starting point.
// withExit adds an option that leaves the setup.
func SelectionMenu(templates []license.Template, withExit bool) messaging.Component {
	opts := []messaging.SelectOption{{
		Label:       "Create a new license",
		Value:       ValueNewLicense,
		Description: "Start from an empty license",
	}}
	limit := maxSelectOptions - 1
	if withExit {
		limit--
	}
	for i, t := range templates {
		if i >= limit {
			break
		}
		opts = append(opts, messaging.SelectOption{
			Label:       t.Name,
			Value:       TemplateValue(t.Name),
			Description: "Based on a community template",
		})
	}
	if withExit {
		opts = append(opts, messaging.SelectOption{
			Label:       "Exit setup",
			Value:       ValueExitSetup,
			Description: "Leave without choosing a license",
		})
	}
	return messaging.Select(IDLicenseSelection, "Choose a license type", opts...)
}

// Enabled is the ephemeral reply to "enable", carrying the selection menu.
func Enabled(templates []license.Template) messaging.Payload {
	return messaging.Payload{
		Content:   TextEnabled,
		Rows:      []messaging.Row{{SelectionMenu(templates, false)}},
		Ephemeral: true,
	}
}

// Reselection follows a cancelled edit and lets the user pick again or exit.
func Reselection(templates []license.Template) messaging.Payload {
	return messaging.Payload{
		Content:   TextEditCancelled,
		Rows:      []messaging.Row{{SelectionMenu(templates, true)}},
		Ephemeral: true,
	}
}

// ConfirmPublish asks a returning user to confirm publishing their default.
func ConfirmPublish(rec *license.Record, author string) messaging.Payload {
	return messaging.Payload{
		Embeds: []messaging.Embed{Preview(rec, author)},
		Rows: []messaging.Row{{
			messaging.Button(IDConfirmAutoPublish, "✅ Publish", messaging.StyleSuccess),
			messaging.Button(IDCancelAutoPublish, "❌ Cancel", messaging.StyleDanger),
		}},
	}
}

// ConfirmNewLicense asks whether a freshly created license should be
// published into the current post.
func ConfirmNewLicense(name string) messaging.Payload {
	return messaging.Payload{
		Content: fmt.Sprintf("✅ License %q was created and set as your default!\n\n"+
			"Publish it to this post now?", name),
		Rows: []messaging.Row{{
			messaging.Button(IDConfirmNewLicense, "Yes, publish", messaging.StyleSuccess),
			messaging.Button(IDSkipNewLicense, "Not now", messaging.StyleSecondary),
		}},
		Ephemeral: true,
	}
}

// Notice is a short ephemeral text reply.
func Notice(text string) messaging.Payload {
	return messaging.Payload{Content: text, Ephemeral: true}
}

// ErrorNotice prefixes a user-facing error message.
func ErrorNotice(text string) messaging.Payload {
	return Notice("❌ " + text)
}

// Final replaces a prompt with terminal text and no components.
func Final(text string) messaging.Payload {
	return messaging.Payload{Content: text, Ephemeral: true}
}
