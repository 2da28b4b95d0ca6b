package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/Opizontas-Studio/dc-license-bot/pkg/errors"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
)

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
			dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
			s, err := Open(context.Background(), DriverSQLite, dsn)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func draft(name string, p license.Permissions) *license.Draft {
	d := license.NewDraft(name)
	d.Permissions = p
	return d
}

func TestStore_PreferenceLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.GetPreference(ctx, "u1")
		require.ErrorIs(t, err, ErrNotFound)

		p, err := s.GetOrCreatePreference(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", p.UserID)
		assert.False(t, p.AutoPublishEnabled)
		assert.False(t, p.SkipConfirmation)
		assert.Nil(t, p.DefaultLicense)

		require.NoError(t, s.SetAutoPublish(ctx, "u1", true))
		require.NoError(t, s.SetSkipConfirmation(ctx, "u1", true))

		p, err = s.GetPreference(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, p.AutoPublishEnabled)
		assert.True(t, p.SkipConfirmation)
	})
}

func TestStore_SetAutoPublishCreatesRow(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.SetAutoPublish(ctx, "fresh", false))
		p, err := s.GetPreference(ctx, "fresh")
		require.NoError(t, err)
		assert.False(t, p.AutoPublishEnabled)
	})
}

func TestStore_InvalidIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.GetPreference(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidID)
		assert.ErrorIs(t, s.SetAutoPublish(ctx, "", true), ErrInvalidID)
		_, err = s.CreateLicense(ctx, "", license.NewDraft("x"))
		assert.ErrorIs(t, err, ErrInvalidID)
		assert.ErrorIs(t, s.UpsertPublishedPost(ctx, &license.PublishedPost{}), ErrInvalidID)
	})
}

func TestStore_DefaultLicenseVariantsAreExclusive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		tpl := license.TemplateRef("CC-BY")
		require.NoError(t, s.SetDefaultLicense(ctx, "u1", &tpl, license.BackupDeny))
		p, err := s.GetPreference(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, p.DefaultLicense)
		assert.Equal(t, license.RefTemplate, p.DefaultLicense.Kind)
		assert.Equal(t, "CC-BY", p.DefaultLicense.TemplateName)
		assert.Equal(t, license.BackupDeny, p.BackupOverride)

		own := license.UserOwned(9)
		require.NoError(t, s.SetDefaultLicense(ctx, "u1", &own, license.BackupAllow))
		p, err = s.GetPreference(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, license.UserOwned(9), *p.DefaultLicense)
		assert.Equal(t, license.BackupInherit, p.BackupOverride)

		require.NoError(t, s.SetDefaultLicense(ctx, "u1", nil, license.BackupInherit))
		p, err = s.GetPreference(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, p.DefaultLicense)
	})
}

func TestStore_CreateAndGetLicense(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		d := draft("X", license.Permissions{AllowRedistribution: true, AllowBackup: true})
		rec, err := s.CreateLicense(ctx, "u1", d)
		require.NoError(t, err)
		assert.NotZero(t, rec.ID)
		assert.Equal(t, "u1", rec.OwnerID)
		assert.Equal(t, "X", rec.Name)
		assert.Equal(t, license.Permissions{AllowRedistribution: true, AllowBackup: true}, rec.Permissions)
		assert.Nil(t, rec.RestrictionsNote)
		assert.Zero(t, rec.UsageCount)
		assert.False(t, rec.CreatedAt.IsZero())

		got, err := s.GetLicense(ctx, "u1", rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.Name, got.Name)

		_, err = s.GetLicense(ctx, "someone-else", rec.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_CreateLicenseKeepsNote(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		d := license.NewDraft("Noted")
		require.NoError(t, d.SetNote("no reposting outside the server"))
		rec, err := s.CreateLicense(ctx, "u1", d)
		require.NoError(t, err)
		require.NotNil(t, rec.RestrictionsNote)
		assert.Equal(t, "no reposting outside the server", *rec.RestrictionsNote)
	})
}

func TestStore_OverlongNoteRejected(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		note := strings.Repeat("n", license.MaxNoteLength+1)
		d := license.NewDraft("Wordy")
		d.RestrictionsNote = &note

		_, err := s.CreateLicense(ctx, "u1", d)
		require.ErrorIs(t, err, license.ErrNoteTooLong)
		assert.True(t, pkgerrors.IsValidation(err))

		n, err := s.CountLicenses(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestStore_DuplicateNameIsValidationError(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.CreateLicense(ctx, "u1", license.NewDraft("Same"))
		require.NoError(t, err)

		_, err = s.CreateLicense(ctx, "u1", license.NewDraft("Same"))
		require.ErrorIs(t, err, ErrDuplicateName)
		assert.True(t, pkgerrors.IsValidation(err))

		_, err = s.CreateLicense(ctx, "u2", license.NewDraft("Same"))
		assert.NoError(t, err)
	})
}

func TestStore_SixthLicenseRejected(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		for i := 1; i <= license.MaxPerUser; i++ {
			_, err := s.CreateLicense(ctx, "u1", license.NewDraft(license.DefaultDraftName(i-1)))
			require.NoError(t, err)
		}

		_, err := s.CreateLicense(ctx, "u1", license.NewDraft("one too many"))
		require.ErrorIs(t, err, ErrLicenseLimit)
		assert.True(t, pkgerrors.IsValidation(err))
		assert.Contains(t, pkgerrors.UserMessage(err), "5 licenses")

		n, err := s.CountLicenses(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, license.MaxPerUser, n)
	})
}

func TestStore_ConcurrentCreatesRespectCap(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make([]error, 12)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.CreateLicense(ctx, "racer", license.NewDraft(fmt.Sprintf("L%d", i)))
			}(i)
		}
		wg.Wait()

		ok, limited := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, ErrLicenseLimit):
				limited++
			}
		}
		assert.Equal(t, license.MaxPerUser, ok)
		assert.Equal(t, len(errs)-license.MaxPerUser, limited)

		n, err := s.CountLicenses(ctx, "racer")
		require.NoError(t, err)
		assert.Equal(t, license.MaxPerUser, n)
	})
}

func TestStore_ListAndIncrementUsage(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		a, err := s.CreateLicense(ctx, "u1", license.NewDraft("A"))
		require.NoError(t, err)
		b, err := s.CreateLicense(ctx, "u1", license.NewDraft("B"))
		require.NoError(t, err)
		_, err = s.CreateLicense(ctx, "u2", license.NewDraft("C"))
		require.NoError(t, err)

		list, err := s.ListLicenses(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, b.ID, list[0].ID)
		assert.Equal(t, a.ID, list[1].ID)

		require.NoError(t, s.IncrementUsage(ctx, "u1", a.ID))
		require.NoError(t, s.IncrementUsage(ctx, "u1", a.ID))
		assert.ErrorIs(t, s.IncrementUsage(ctx, "u2", a.ID), ErrNotFound)

		got, err := s.GetLicense(ctx, "u1", a.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.UsageCount)
	})
}

func TestStore_PublishedPostsAndBackupChange(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.GetPublishedPost(ctx, "t1")
		require.ErrorIs(t, err, ErrNotFound)

		changed, err := s.BackupChanged(ctx, "t1", false)
		require.NoError(t, err)
		assert.False(t, changed, "no prior record and false is not a change")

		changed, err = s.BackupChanged(ctx, "t1", true)
		require.NoError(t, err)
		assert.True(t, changed, "no prior record and true is a change")

		require.NoError(t, s.UpsertPublishedPost(ctx, &license.PublishedPost{
			ThreadID: "t1", MessageID: "m1", UserID: "u1", BackupAllowed: true,
		}))

		changed, err = s.BackupChanged(ctx, "t1", true)
		require.NoError(t, err)
		assert.False(t, changed)

		changed, err = s.BackupChanged(ctx, "t1", false)
		require.NoError(t, err)
		assert.True(t, changed)

		require.NoError(t, s.UpsertPublishedPost(ctx, &license.PublishedPost{
			ThreadID: "t1", MessageID: "m2", UserID: "u1", BackupAllowed: false,
		}))
		post, err := s.GetPublishedPost(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "m2", post.MessageID)
		assert.False(t, post.BackupAllowed)
		assert.False(t, post.UpdatedAt.IsZero())
	})
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.ErrorContains(t, err, "unsupported database driver")
}
