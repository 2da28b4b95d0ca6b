package ui

import (
	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging"
)

// Editor renders the draft editor. A non-empty problem is shown above the
// preview, e.g. when a submitted name was rejected.
func Editor(d *license.Draft, problem string) messaging.Payload {
	content := "Edit your license, then press Save."
	if problem != "" {
		content = "❌ " + problem + "\n\n" + content
	}
	return messaging.Payload{
		Content: content,
		Embeds:  []messaging.Embed{DraftPreview(d)},
		Rows: []messaging.Row{
			{
				messaging.Button(IDEditName, "Edit name", messaging.StylePrimary),
				messaging.Button(IDEditRestrictions, "Edit restrictions", messaging.StylePrimary),
			},
			{
				toggle(IDToggleRedistribution, "redistribution", d.Permissions.AllowRedistribution),
				toggle(IDToggleModification, "modification", d.Permissions.AllowModification),
				toggle(IDToggleBackup, "backup", d.Permissions.AllowBackup),
			},
			{
				messaging.Button(IDSaveLicense, "Save", messaging.StyleSuccess),
				messaging.Button(IDCancelLicense, "Cancel", messaging.StyleDanger),
			},
		},
		Ephemeral: true,
	}
}

func toggle(id, what string, on bool) messaging.Component {
	if on {
		return messaging.Button(id, "Disallow "+what, messaging.StyleSecondary)
	}
	return messaging.Button(id, "Allow "+what, messaging.StyleSecondary)
}

// NameForm collects a new license name.
func NameForm(current string) *messaging.Form {
	return &messaging.Form{
		CustomID: FormEditName,
		Title:    "Edit license name",
		Inputs: []messaging.FormInput{{
			CustomID:    InputName,
			Label:       "License name",
			Placeholder: "Enter a license name",
			Value:       current,
			Required:    true,
			MinLength:   1,
			MaxLength:   license.MaxNameLength,
		}},
	}
}

// RestrictionsForm collects the free-text restrictions note.
func RestrictionsForm(current string) *messaging.Form {
	return &messaging.Form{
		CustomID: FormEditRestrictions,
		Title:    "Edit restrictions",
		Inputs: []messaging.FormInput{{
			CustomID:    InputRestrictions,
			Label:       "Restrictions",
			Placeholder: "Leave empty for no special restrictions",
			Value:       current,
			Paragraph:   true,
			MaxLength:   license.MaxNoteLength,
		}},
	}
}
