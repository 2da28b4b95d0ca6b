package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Opizontas-Studio/dc-license-bot/runtime/license"
	"github.com/Opizontas-Studio/dc-license-bot/runtime/logger"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type userSettingsModel struct {
	UserID                     string `gorm:"primaryKey;size:32"`
	AutoPublishEnabled         bool   `gorm:"not null;default:false"`
	SkipAutoPublishConfirm     bool   `gorm:"column:skip_auto_publish_confirmation;not null;default:false"`
	DefaultUserLicenseID       *int64
	DefaultSystemLicenseName   *string `gorm:"size:100"`
	DefaultSystemLicenseBackup *bool
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

func (userSettingsModel) TableName() string { return "user_settings" }

type userLicenseModel struct {
	ID                  int64   `gorm:"primaryKey;autoIncrement"`
	UserID              string  `gorm:"size:32;not null;uniqueIndex:idx_user_licenses_owner_name,priority:1"`
	LicenseName         string  `gorm:"size:100;not null;uniqueIndex:idx_user_licenses_owner_name,priority:2"`
	AllowRedistribution bool    `gorm:"not null"`
	AllowModification   bool    `gorm:"not null"`
	AllowBackup         bool    `gorm:"not null"`
	RestrictionsNote    *string `gorm:"size:1000"`
	UsageCount          int64   `gorm:"not null;default:0"`
	CreatedAt           time.Time
}

func (userLicenseModel) TableName() string { return "user_licenses" }

type publishedPostModel struct {
	ThreadID      string `gorm:"primaryKey;size:32"`
	MessageID     string `gorm:"size:32;not null"`
	UserID        string `gorm:"size:32;not null;index"`
	BackupAllowed bool   `gorm:"not null"`
	UpdatedAt     time.Time
}

func (publishedPostModel) TableName() string { return "published_posts" }

// SQLStore implements Store on top of gorm. Postgres is the production
// backend; SQLite serves local runs and tests.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to the database, applies the schema and returns a store.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if driver == DriverSQLite {
		// one connection serializes writers and keeps :memory: databases shared
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetConnMaxIdleTime(15 * time.Minute)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := NewSQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	logger.InfoContext(ctx, "database ready", "driver", driver)
	return s, nil
}

// NewSQLStore wraps an open gorm connection. Call Migrate before use on a
// fresh database.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Migrate creates or updates the schema.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&userSettingsModel{},
		&userLicenseModel{},
		&publishedPostModel{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetPreference implements Store.
func (s *SQLStore) GetPreference(ctx context.Context, userID string) (*license.Preference, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}
	var m userSettingsModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, externalError("GetPreference", err)
	}
	return toDomainPreference(&m), nil
}

// GetOrCreatePreference implements Store.
func (s *SQLStore) GetOrCreatePreference(ctx context.Context, userID string) (*license.Preference, error) {
	if userID == "" {
		return nil, ErrInvalidID
	}
	if err := s.ensureSettings(s.db.WithContext(ctx), userID); err != nil {
		return nil, externalError("GetOrCreatePreference", err)
	}
	return s.GetPreference(ctx, userID)
}

// SetAutoPublish implements Store.
func (s *SQLStore) SetAutoPublish(ctx context.Context, userID string, enabled bool) error {
	return s.updateSettings(ctx, "SetAutoPublish", userID, map[string]any{"auto_publish_enabled": enabled})
}

// SetSkipConfirmation implements Store.
func (s *SQLStore) SetSkipConfirmation(ctx context.Context, userID string, skip bool) error {
	return s.updateSettings(ctx, "SetSkipConfirmation", userID, map[string]any{"skip_auto_publish_confirmation": skip})
}

// SetDefaultLicense implements Store.
func (s *SQLStore) SetDefaultLicense(ctx context.Context, userID string, ref *license.Ref, override license.BackupOverride) error {
	updates := map[string]any{
		"default_user_license_id":       nil,
		"default_system_license_name":   nil,
		"default_system_license_backup": nil,
	}
	if ref != nil {
		switch ref.Kind {
		case license.RefUserOwned:
			updates["default_user_license_id"] = ref.LicenseID
		case license.RefTemplate:
			updates["default_system_license_name"] = ref.TemplateName
			updates["default_system_license_backup"] = override.Bool()
		default:
			return fmt.Errorf("set default license: invalid reference %s", ref)
		}
	}
	return s.updateSettings(ctx, "SetDefaultLicense", userID, updates)
}

func (s *SQLStore) updateSettings(ctx context.Context, op, userID string, updates map[string]any) error {
	if userID == "" {
		return ErrInvalidID
	}
	updates["updated_at"] = s.now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureSettings(tx, userID); err != nil {
			return err
		}
		return tx.Model(&userSettingsModel{}).Where("user_id = ?", userID).Updates(updates).Error
	})
	if err != nil {
		return externalError(op, err)
	}
	return nil
}

func (s *SQLStore) ensureSettings(tx *gorm.DB, userID string) error {
	now := s.now().UTC()
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&userSettingsModel{UserID: userID, CreatedAt: now, UpdatedAt: now}).Error
}

// CreateLicense implements Store. The row is inserted by a single
// INSERT ... SELECT guarded by the owner's current count, so concurrent
// creations cannot push an owner past license.MaxPerUser. On Postgres the
// owner is additionally serialized with a transaction-scoped advisory lock.
func (s *SQLStore) CreateLicense(ctx context.Context, userID string, draft *license.Draft) (*license.Record, error) {
	const op = "CreateLicense"
	if userID == "" {
		return nil, ErrInvalidID
	}
	name, err := license.ValidateName(draft.Name)
	if err != nil {
		return nil, invalidDraftError(op, err)
	}
	note, err := license.ValidateNote(draft.Note())
	if err != nil {
		return nil, invalidDraftError(op, err)
	}

	var created userLicenseModel
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == DriverPostgres {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", userID).Error; err != nil {
				return err
			}
		}

		var dupes int64
		if err := tx.Model(&userLicenseModel{}).
			Where("user_id = ? AND license_name = ?", userID, name).
			Count(&dupes).Error; err != nil {
			return err
		}
		if dupes > 0 {
			return gorm.ErrDuplicatedKey
		}

		res := tx.Exec(`INSERT INTO user_licenses
			(user_id, license_name, allow_redistribution, allow_modification, allow_backup, restrictions_note, usage_count, created_at)
			SELECT CAST(? AS VARCHAR(32)), CAST(? AS VARCHAR(100)),
				CAST(? AS BOOLEAN), CAST(? AS BOOLEAN), CAST(? AS BOOLEAN),
				CAST(? AS VARCHAR(1000)), 0, CURRENT_TIMESTAMP
			WHERE (SELECT COUNT(*) FROM user_licenses WHERE user_id = ?) < ?`,
			userID, name,
			draft.Permissions.AllowRedistribution,
			draft.Permissions.AllowModification,
			draft.Permissions.AllowBackup,
			note,
			userID, license.MaxPerUser,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrLicenseLimit
		}
		return tx.Where("user_id = ? AND license_name = ?", userID, name).Take(&created).Error
	})
	switch {
	case err == nil:
		return toDomainLicense(&created), nil
	case errors.Is(err, ErrLicenseLimit):
		return nil, limitError(op)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return nil, duplicateNameError(op, name)
	default:
		return nil, externalError(op, err)
	}
}

// GetLicense implements Store.
func (s *SQLStore) GetLicense(ctx context.Context, userID string, id int64) (*license.Record, error) {
	var m userLicenseModel
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, externalError("GetLicense", err)
	}
	return toDomainLicense(&m), nil
}

// CountLicenses implements Store.
func (s *SQLStore) CountLicenses(ctx context.Context, userID string) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&userLicenseModel{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, externalError("CountLicenses", err)
	}
	return int(n), nil
}

// ListLicenses implements Store.
func (s *SQLStore) ListLicenses(ctx context.Context, userID string) ([]*license.Record, error) {
	var rows []userLicenseModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error; err != nil {
		return nil, externalError("ListLicenses", err)
	}
	out := make([]*license.Record, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainLicense(&rows[i]))
	}
	return out, nil
}

// IncrementUsage implements Store.
func (s *SQLStore) IncrementUsage(ctx context.Context, userID string, id int64) error {
	res := s.db.WithContext(ctx).Model(&userLicenseModel{}).
		Where("id = ? AND user_id = ?", id, userID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return externalError("IncrementUsage", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPublishedPost implements Store.
func (s *SQLStore) GetPublishedPost(ctx context.Context, threadID string) (*license.PublishedPost, error) {
	if threadID == "" {
		return nil, ErrInvalidID
	}
	var m publishedPostModel
	if err := s.db.WithContext(ctx).Where("thread_id = ?", threadID).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, externalError("GetPublishedPost", err)
	}
	return &license.PublishedPost{
		ThreadID:      m.ThreadID,
		MessageID:     m.MessageID,
		UserID:        m.UserID,
		BackupAllowed: m.BackupAllowed,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

// UpsertPublishedPost implements Store.
func (s *SQLStore) UpsertPublishedPost(ctx context.Context, post *license.PublishedPost) error {
	if post == nil || post.ThreadID == "" {
		return ErrInvalidID
	}
	m := publishedPostModel{
		ThreadID:      post.ThreadID,
		MessageID:     post.MessageID,
		UserID:        post.UserID,
		BackupAllowed: post.BackupAllowed,
		UpdatedAt:     s.now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "thread_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"message_id", "user_id", "backup_allowed", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return externalError("UpsertPublishedPost", err)
	}
	return nil
}

// BackupChanged implements Store.
func (s *SQLStore) BackupChanged(ctx context.Context, threadID string, backupAllowed bool) (bool, error) {
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

func toDomainPreference(m *userSettingsModel) *license.Preference {
	p := &license.Preference{
		UserID:             m.UserID,
		AutoPublishEnabled: m.AutoPublishEnabled,
		SkipConfirmation:   m.SkipAutoPublishConfirm,
	}
	switch {
	case m.DefaultUserLicenseID != nil:
		ref := license.UserOwned(*m.DefaultUserLicenseID)
		p.DefaultLicense = &ref
	case m.DefaultSystemLicenseName != nil:
		ref := license.TemplateRef(*m.DefaultSystemLicenseName)
		p.DefaultLicense = &ref
		p.BackupOverride = license.OverrideFromBool(m.DefaultSystemLicenseBackup)
	}
	return p
}

func toDomainLicense(m *userLicenseModel) *license.Record {
	return &license.Record{
		ID:      m.ID,
		OwnerID: m.UserID,
		Name:    m.LicenseName,
		Permissions: license.Permissions{
			AllowRedistribution: m.AllowRedistribution,
			AllowModification:   m.AllowModification,
			AllowBackup:         m.AllowBackup,
		},
		RestrictionsNote: m.RestrictionsNote,
		UsageCount:       m.UsageCount,
		CreatedAt:        m.CreatedAt,
	}
}

var _ Store = (*SQLStore)(nil)
