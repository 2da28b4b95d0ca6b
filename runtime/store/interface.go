// Package store persists user preferences, user-owned licenses and the
// announcement published in each thread.
package store

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/Opizontas-Studio/dc-license-bot/pkg/errors"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
)

const component = "store"

var (
	// ErrNotFound is returned when a preference, license or post does not exist.
	// A license owned by a different user is reported as not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID is returned when a user or thread ID is empty.
	ErrInvalidID = errors.New("invalid id")

	// ErrLicenseLimit is returned when a user already owns license.MaxPerUser licenses.
	ErrLicenseLimit = errors.New("license limit reached")

	// ErrDuplicateName is returned when the owner already has a license with the same name.
	ErrDuplicateName = errors.New("duplicate license name")
)

// Store defines the persistence operations the bot needs.
type Store interface {
	// GetPreference returns the user's preference or ErrNotFound.
	GetPreference(ctx context.Context, userID string) (*license.Preference, error)

	// GetOrCreatePreference returns the user's preference, creating the
	// default row (everything off) when absent.
	GetOrCreatePreference(ctx context.Context, userID string) (*license.Preference, error)

	// SetAutoPublish sets the auto-publish flag, creating the row if needed.
	SetAutoPublish(ctx context.Context, userID string, enabled bool) error

	// SetSkipConfirmation sets the skip-confirmation flag, creating the row if needed.
	SetSkipConfirmation(ctx context.Context, userID string, skip bool) error

	// SetDefaultLicense replaces the default license reference. A nil ref
	// clears it. The backup override only matters for template references.
	SetDefaultLicense(ctx context.Context, userID string, ref *license.Ref, override license.BackupOverride) error

	// CreateLicense persists a draft as a new record owned by userID.
	// The per-user cap is checked and enforced in the same atomic write.
	CreateLicense(ctx context.Context, userID string, draft *license.Draft) (*license.Record, error)

	// GetLicense returns the record with id if it is owned by userID.
	GetLicense(ctx context.Context, userID string, id int64) (*license.Record, error)

	// CountLicenses returns how many records userID owns.
	CountLicenses(ctx context.Context, userID string) (int, error)

	// ListLicenses returns userID's records, newest first.
	ListLicenses(ctx context.Context, userID string) ([]*license.Record, error)

	// IncrementUsage adds one to the record's usage counter.
	IncrementUsage(ctx context.Context, userID string, id int64) error

	// GetPublishedPost returns the thread's announcement record or ErrNotFound.
	GetPublishedPost(ctx context.Context, threadID string) (*license.PublishedPost, error)

	// UpsertPublishedPost inserts or replaces the thread's announcement record.
	UpsertPublishedPost(ctx context.Context, post *license.PublishedPost) error

	// BackupChanged reports whether publishing with backupAllowed changes the
	// thread's recorded backup permission. Without a prior record only true
	// counts as a change.
	BackupChanged(ctx context.Context, threadID string, backupAllowed bool) (bool, error)
}

func limitError(op string) error {
	return pkgerrors.Validation(component, op,
		fmt.Sprintf("You already own %d licenses. Delete one before creating another.", license.MaxPerUser),
		ErrLicenseLimit)
}

func duplicateNameError(op, name string) error {
	return pkgerrors.Validation(component, op,
		fmt.Sprintf("You already have a license named %q. Choose a different name.", name),
		ErrDuplicateName)
}

func invalidDraftError(op string, err error) error {
	return pkgerrors.Validation(component, op, err.Error(), err)
}

func externalError(op string, err error) error {
	return pkgerrors.New(component, op, err)
}

func backupChanged(prior *license.PublishedPost, backupAllowed bool) bool {
	if prior == nil {
		return backupAllowed
	}
	return prior.BackupAllowed != backupAllowed
}
