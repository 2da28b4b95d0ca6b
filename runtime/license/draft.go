package license

import "fmt"

// Draft is the in-memory editable copy of a license. It is owned by a single
// editor sub-session and never persisted until saved.
type Draft struct {
	Name             string
	Permissions      Permissions
	RestrictionsNote *string
}

// NewDraft returns a blank draft with every permission denied.
func NewDraft(name string) *Draft {
	return &Draft{Name: name}
}

// DefaultDraftName names a new license after the number of licenses the user
// will own once it is saved.
func DefaultDraftName(owned int) string {
	return fmt.Sprintf("My License %d", owned+1)
}

// DraftFromTemplate starts a draft from a system template.
func DraftFromTemplate(t Template) *Draft {
	return &Draft{
		Name:             t.Name,
		Permissions:      t.Permissions,
		RestrictionsNote: cloneNote(t.RestrictionsNote),
	}
}

// DraftFromRecord starts a draft from an existing record.
func DraftFromRecord(r *Record) *Draft {
	return &Draft{
		Name:             r.Name,
		Permissions:      r.Permissions,
		RestrictionsNote: cloneNote(r.RestrictionsNote),
	}
}

// Clone returns a deep copy of the draft.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	c := *d
	c.RestrictionsNote = cloneNote(d.RestrictionsNote)
	return &c
}

// ToggleRedistribution flips the redistribution permission.
func (d *Draft) ToggleRedistribution() { d.Permissions.AllowRedistribution = !d.Permissions.AllowRedistribution }

// ToggleModification flips the modification permission.
func (d *Draft) ToggleModification() { d.Permissions.AllowModification = !d.Permissions.AllowModification }

// ToggleBackup flips the backup permission.
func (d *Draft) ToggleBackup() { d.Permissions.AllowBackup = !d.Permissions.AllowBackup }

// SetName validates and stores a new name.
func (d *Draft) SetName(name string) error {
	v, err := ValidateName(name)
	if err != nil {
		return err
	}
	d.Name = v
	return nil
}

// SetNote validates and stores a new restrictions note. Blank clears it.
func (d *Draft) SetNote(note string) error {
	v, err := ValidateNote(note)
	if err != nil {
		return err
	}
	d.RestrictionsNote = v
	return nil
}

// Note returns the restrictions note or the empty string.
func (d *Draft) Note() string {
	if d.RestrictionsNote == nil {
		return ""
	}
	return *d.RestrictionsNote
}
