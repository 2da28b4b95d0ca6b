package ui

import (
	"strings"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/messaging"
)

const (
	permissionAllowed = "✅ Allowed"
	permissionDenied  = "❌ Not allowed"
	noRestrictions    = "No special restrictions"
	protectionText    = "This work is protected by the following license:"

	fieldRedistribution = "Redistribution within the community"
	fieldModification   = "Modification within the community"
	fieldBackup         = "Backup by moderators"
	fieldCommercial     = "Commercial use"
	fieldRestrictions   = "Restrictions"
	commercialDenied    = "❌ The community does not allow commercial use of any work"

	supersededPrefix = "⚠️ [Superseded] "
	supersededNotice = "**This license has been replaced by a newer one.**"
	supersededLayout = "2006-01-02 15:04:05"
)

// LicenseFields renders the permission fields shared by every license embed.
func LicenseFields(p license.Permissions, backupAllowed bool, note *string) []messaging.EmbedField {
	restrictions := noRestrictions
	if note != nil && strings.TrimSpace(*note) != "" {
		restrictions = *note
	}
	return []messaging.EmbedField{
		{Name: fieldRedistribution, Value: permission(p.AllowRedistribution), Inline: true},
		{Name: fieldModification, Value: permission(p.AllowModification), Inline: true},
		{Name: fieldBackup, Value: permission(backupAllowed), Inline: true},
		{Name: fieldCommercial, Value: commercialDenied, Inline: true},
		{Name: fieldRestrictions, Value: restrictions},
	}
}

func permission(allowed bool) string {
	if allowed {
		return permissionAllowed
	}
	return permissionDenied
}

// Announcement is the embed published into a thread.
func Announcement(rec *license.Record, backupAllowed bool, author string, at time.Time) messaging.Embed {
	return messaging.Embed{
		Title:       "📜 License: " + rec.Name,
		Description: protectionText,
		Color:       messaging.ColorBlue,
		Fields:      LicenseFields(rec.Permissions, backupAllowed, rec.RestrictionsNote),
		Footer:      "Published by " + author,
		Timestamp:   at,
	}
}

// Preview shows a record the user is about to publish.
func Preview(rec *license.Record, author string) messaging.Embed {
	e := Announcement(rec, rec.Permissions.AllowBackup, author, time.Time{})
	e.Title = "📜 Publish this license? " + rec.Name
	e.Color = messaging.ColorDarkBlue
	e.Footer = "Author: " + author
	return e
}

// DraftPreview renders the draft being edited.
func DraftPreview(d *license.Draft) messaging.Embed {
	return messaging.Embed{
		Title:       "📜 License: " + d.Name,
		Description: protectionText,
		Color:       messaging.ColorBlue,
		Fields:      LicenseFields(d.Permissions, d.Permissions.AllowBackup, d.RestrictionsNote),
	}
}

// Superseded relabels a previously published announcement. Fields are kept,
// the footer records when it was replaced.
func Superseded(orig messaging.Embed, at time.Time) messaging.Embed {
	title := orig.Title
	if title == "" {
		title = "License"
	}
	desc := supersededNotice
	if orig.Description != "" {
		desc += "\n\n" + orig.Description
	}
	footer := "superseded at " + at.UTC().Format(supersededLayout)
	if orig.Footer != "" {
		footer = orig.Footer + " | " + footer
	}
	return messaging.Embed{
		Title:       supersededPrefix + title,
		Description: desc,
		Color:       messaging.ColorGrey,
		Fields:      append([]messaging.EmbedField(nil), orig.Fields...),
		Footer:      footer,
		Timestamp:   orig.Timestamp,
	}
}

// IsSuperseded reports whether an embed was already relabelled.
func IsSuperseded(e messaging.Embed) bool {
	return strings.HasPrefix(e.Title, supersededPrefix)
}
