package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
)

// MemoryStore provides an in-memory implementation of the Store interface.
// It is thread-safe and suitable for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	prefs    map[string]*license.Preference
	licenses map[int64]*license.Record
	posts    map[string]*license.PublishedPost
	nextID   int64
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prefs:    make(map[string]*license.Preference),
		licenses: make(map[int64]*license.Record),
		posts:    make(map[string]*license.PublishedPost),
		now:      time.Now,
	}
}

// GetPreference implements Store.
func (s *MemoryStore) GetPreference(_ context.Context, userID string) (*license.Preference, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prefs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// GetOrCreatePreference implements Store.
func (s *MemoryStore) GetOrCreatePreference(_ context.Context, userID string) (*license.Preference, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefLocked(userID).Clone(), nil
}

// SetAutoPublish implements Store.
func (s *MemoryStore) SetAutoPublish(_ context.Context, userID string, enabled bool) error {
	return s.updatePref(userID, func(p *license.Preference) { p.AutoPublishEnabled = enabled })
}

// SetSkipConfirmation implements Store.
func (s *MemoryStore) SetSkipConfirmation(_ context.Context, userID string, skip bool) error {
	return s.updatePref(userID, func(p *license.Preference) { p.SkipConfirmation = skip })
}

// SetDefaultLicense implements Store.
func (s *MemoryStore) SetDefaultLicense(_ context.Context, userID string, ref *license.Ref, override license.BackupOverride) error {
	return s.updatePref(userID, func(p *license.Preference) {
		if ref == nil {
			p.DefaultLicense = nil
			p.BackupOverride = license.BackupInherit
			return
		}
		r := *ref
		p.DefaultLicense = &r
		p.BackupOverride = override
		if r.Kind == license.RefUserOwned {
			p.BackupOverride = license.BackupInherit
		}
	})
}

func (s *MemoryStore) updatePref(userID string, fn func(*license.Preference)) error {
	if userID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.prefLocked(userID))
	return nil
}

// prefLocked must be called with the write lock held.
func (s *MemoryStore) prefLocked(userID string) *license.Preference {
	p, ok := s.prefs[userID]
	if !ok {
		p = &license.Preference{UserID: userID}
		s.prefs[userID] = p
	}
	return p
}

// CreateLicense implements Store.
func (s *MemoryStore) CreateLicense(_ context.Context, userID string, draft *license.Draft) (*license.Record, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}
	name, err := license.ValidateName(draft.Name)
	if err != nil {
		return nil, invalidDraftError("CreateLicense", err)
	}
	note, err := license.ValidateNote(draft.Note())
	if err != nil {
		return nil, invalidDraftError("CreateLicense", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owned := 0
	for _, r := range s.licenses {
		if r.OwnerID != userID {
			continue
		}
		if r.Name == name {
			return nil, duplicateNameError("CreateLicense", name)
		}
		owned++
	}
	if owned >= license.MaxPerUser {
		return nil, limitError("CreateLicense")
	}

	s.nextID++
	rec := &license.Record{
		ID:               s.nextID,
		OwnerID:          userID,
		Name:             name,
		Permissions:      draft.Permissions,
		RestrictionsNote: note,
		CreatedAt:        s.now().UTC(),
	}
	s.licenses[rec.ID] = rec
	return rec.Clone(), nil
}

// GetLicense implements Store.
func (s *MemoryStore) GetLicense(_ context.Context, userID string, id int64) (*license.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.licenses[id]
	if !ok || r.OwnerID != userID {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// CountLicenses implements Store.
func (s *MemoryStore) CountLicenses(ctx context.Context, userID string) (int, error) {
	list, err := s.ListLicenses(ctx, userID)
	return len(list), err
}

// ListLicenses implements Store.
func (s *MemoryStore) ListLicenses(_ context.Context, userID string) ([]*license.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*license.Record
	for _, r := range s.licenses {
		if r.OwnerID == userID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// IncrementUsage implements Store.
func (s *MemoryStore) IncrementUsage(_ context.Context, userID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.licenses[id]
	if !ok || r.OwnerID != userID {
		return ErrNotFound
	}
	r.UsageCount++
	return nil
}

// GetPublishedPost implements Store.
func (s *MemoryStore) GetPublishedPost(_ context.Context, threadID string) (*license.PublishedPost, error) {
	if threadID == "" {
		return nil, ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

// UpsertPublishedPost implements Store.
func (s *MemoryStore) UpsertPublishedPost(_ context.Context, post *license.PublishedPost) error {
	if post == nil || post.ThreadID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *post
	c.UpdatedAt = s.now().UTC()
	s.posts[post.ThreadID] = &c
	return nil
}

// BackupChanged implements Store.
func (s *MemoryStore) BackupChanged(ctx context.Context, threadID string, backupAllowed bool) (bool, error) {
	prior, err := s.GetPublishedPost(ctx, threadID)
	switch {
	case err == nil:
		return backupChanged(prior, backupAllowed), nil
	case errors.Is(err, ErrNotFound):
		return backupChanged(nil, backupAllowed), nil
	default:
		return false, err
	}
}

var _ Store = (*MemoryStore)(nil)
