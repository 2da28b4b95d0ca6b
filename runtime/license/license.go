// Package license defines the license domain types shared by the store, the
// draft editor, the publish coordinator and the workflow engine.
package license

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxPerUser is the number of license records a single user may own.
const MaxPerUser = 5

// Field limits for user-editable text.
const (
	MaxNameLength = 100
	MaxNoteLength = 1000
)

var (
	// ErrEmptyName is returned when a license name is blank.
	ErrEmptyName = errors.New("license name must not be empty")
	// ErrNameTooLong is returned when a license name exceeds MaxNameLength.
	ErrNameTooLong = fmt.Errorf("license name must be at most %d characters", MaxNameLength)
	// ErrNoteTooLong is returned when a restrictions note exceeds MaxNoteLength.
	ErrNoteTooLong = fmt.Errorf("restrictions note must be at most %d characters", MaxNoteLength)
)

// Permissions are the fields shared by records, drafts and templates.
type Permissions struct {
	AllowRedistribution bool `json:"allow_redistribution" yaml:"allow_redistribution"`
	AllowModification   bool `json:"allow_modification" yaml:"allow_modification"`
	AllowBackup         bool `json:"allow_backup" yaml:"allow_backup"`
}

// Record is a persisted user-owned license.
type Record struct {
	ID          int64
	OwnerID     string
	Name        string
	Permissions Permissions
	// RestrictionsNote is nil when the license has no extra restrictions.
	RestrictionsNote *string
	UsageCount       int64
	CreatedAt        time.Time
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.RestrictionsNote = cloneNote(r.RestrictionsNote)
	return &c
}

// Template is a read-only license definition provided by the operators.
type Template struct {
	Name             string  `json:"license_name" yaml:"license_name"`
	RestrictionsNote *string `json:"restrictions_note,omitempty" yaml:"restrictions_note,omitempty"`
	Permissions      `yaml:",inline"`
}

// AsRecord resolves the template into a publishable, unpersisted record for
// owner. The backup override replaces the template's own backup default.
func (t Template) AsRecord(owner string, override BackupOverride) *Record {
	p := t.Permissions
	p.AllowBackup = override.Apply(p.AllowBackup)
	return &Record{
		OwnerID:          owner,
		Name:             t.Name,
		Permissions:      p,
		RestrictionsNote: cloneNote(t.RestrictionsNote),
	}
}

// RefKind tags the active variant of a Ref.
type RefKind int

// Ref variants.
const (
	RefUserOwned RefKind = iota + 1
	RefTemplate
)

// Ref points at a user's default license: either one of their own records or
// a system template by name. Exactly one variant is set.
type Ref struct {
	Kind         RefKind
	LicenseID    int64
	TemplateName string
}

// UserOwned returns a reference to a user-owned record.
func UserOwned(id int64) Ref {
	return Ref{Kind: RefUserOwned, LicenseID: id}
}

// TemplateRef returns a reference to a system template.
func TemplateRef(name string) Ref {
	return Ref{Kind: RefTemplate, TemplateName: name}
}

// String renders the reference for logs.
func (r Ref) String() string {
	switch r.Kind {
	case RefUserOwned:
		return fmt.Sprintf("user:%d", r.LicenseID)
	case RefTemplate:
		return "template:" + r.TemplateName
	default:
		return "none"
	}
}

// BackupOverride is the per-user override of a template's backup default.
type BackupOverride int

// Override values. The zero value inherits the template default.
const (
	BackupInherit BackupOverride = iota
	BackupAllow
	BackupDeny
)

// Next cycles Inherit -> Allow -> Deny -> Inherit.
func (o BackupOverride) Next() BackupOverride {
	switch o {
	case BackupInherit:
		return BackupAllow
	case BackupAllow:
		return BackupDeny
	default:
		return BackupInherit
	}
}

// Apply returns the effective backup permission given the template default.
func (o BackupOverride) Apply(templateDefault bool) bool {
	switch o {
	case BackupAllow:
		return true
	case BackupDeny:
		return false
	default:
		return templateDefault
	}
}

// String renders the override for logs and settings screens.
func (o BackupOverride) String() string {
	switch o {
	case BackupAllow:
		return "allow"
	case BackupDeny:
		return "deny"
	default:
		return "inherit"
	}
}

// OverrideFromBool maps a nullable boolean onto the override enum.
func OverrideFromBool(b *bool) BackupOverride {
	switch {
	case b == nil:
		return BackupInherit
	case *b:
		return BackupAllow
	default:
		return BackupDeny
	}
}

// Bool maps the override back onto a nullable boolean for storage.
func (o BackupOverride) Bool() *bool {
	switch o {
	case BackupAllow:
		v := true
		return &v
	case BackupDeny:
		v := false
		return &v
	default:
		return nil
	}
}

// Preference is one user's auto-publish settings.
type Preference struct {
	UserID             string
	AutoPublishEnabled bool
	SkipConfirmation   bool
	// DefaultLicense is nil when no default has been chosen.
	DefaultLicense *Ref
	BackupOverride BackupOverride
}

// Clone returns a deep copy of the preference.
func (p *Preference) Clone() *Preference {
	if p == nil {
		return nil
	}
	c := *p
	if p.DefaultLicense != nil {
		ref := *p.DefaultLicense
		c.DefaultLicense = &ref
	}
	return &c
}

// PublishedPost records the current announcement in a thread.
type PublishedPost struct {
	ThreadID      string
	MessageID     string
	UserID        string
	BackupAllowed bool
	UpdatedAt     time.Time
}

// Author identifies the person a license is published for.
type Author struct {
	UserID      string
	Username    string
	DisplayName string
}

// Name returns the display name, falling back to the username.
func (a Author) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

// ValidateName trims and checks a license name.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

// ValidateNote trims and checks a restrictions note. A blank note becomes nil.
func ValidateNote(note string) (*string, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(note) > MaxNoteLength {
		return nil, ErrNoteTooLong
	}
	return &note, nil
}

func cloneNote(n *string) *string {
	if n == nil {
		return nil
	}
	s := *n
	return &s
}
