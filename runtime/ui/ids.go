// Package ui builds the messages, embeds and forms shown during a license
// workflow session. Builders are pure: they take domain values and return
// messaging payloads.
package ui

import "strings"

// Custom ids of the components the workflow and editor listen for.
const (
	IDEnableSetup  = "enable_auto_publish_setup"
	IDDisableSetup = "disable_auto_publish_setup"

	IDLicenseSelection  = "license_selection"
	ValueNewLicense     = "new_license"
	ValueExitSetup      = "exit_setup"
	templateValuePrefix = "system_"

	IDConfirmAutoPublish = "confirm_auto_publish"
	IDCancelAutoPublish  = "cancel_auto_publish"

	IDConfirmNewLicense = "confirm_publish_new_license"
	IDSkipNewLicense    = "skip_publish_new_license"

	IDEditName             = "edit_name"
	IDEditRestrictions     = "edit_restrictions"
	IDToggleRedistribution = "toggle_redistribution"
	IDToggleModification   = "toggle_modification"
	IDToggleBackup         = "toggle_backup"
	IDSaveLicense          = "save_license"
	IDCancelLicense        = "cancel_license"

	FormEditName         = "edit_name_modal"
	FormEditRestrictions = "edit_restrictions_modal"
	InputName            = "name_input"
	InputRestrictions    = "restrictions_input"
)

// EditorButtons lists every component id on the editor message.
var EditorButtons = []string{
	IDEditName, IDEditRestrictions,
	IDToggleRedistribution, IDToggleModification, IDToggleBackup,
	IDSaveLicense, IDCancelLicense,
}

// maxSelectOptions is the chat service's limit on options per select menu.
const maxSelectOptions = 25

// TemplateValue is the select value for a template named name.
func TemplateValue(name string) string {
	return templateValuePrefix + name
}

// ParseTemplateValue extracts the template name from a select value.
func ParseTemplateValue(value string) (string, bool) {
	name, ok := strings.CutPrefix(value, templateValuePrefix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}
