package resume

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pot-code/course-player/internal/infrastructure/driver"
	"go.uber.org/zap"
)

const keySuffix = "-lastly-viewed"

// Store one resume record per course, last write wins.
//
// Implementations never fail the caller: storage problems degrade to a
// dropped write or an absent record.
type Store interface {
	Save(ctx context.Context, courseID string, record Record)
	Load(ctx context.Context, courseID string) (Record, bool)
}

// Profiles hands out the Store of one viewer profile, profiles never see each other's records
type Profiles interface {
	ForProfile(profileID string) Store
}

// Key storage slot of a course, scoped by profile when one is given
func Key(profileID, courseID string) string {
	if profileID == "" {
		return courseID + keySuffix
	}
	return profileID + ":" + courseID + keySuffix
}

// KVStore Store backed by a driver.KeyValueDB
type KVStore struct {
	kv      driver.KeyValueDB
	logger  *zap.Logger
	now     func() time.Time
	profile string
}

var _ Store = &KVStore{}
var _ Profiles = &KVStore{}

// NewKVStore create an unscoped resume store over kv
func NewKVStore(kv driver.KeyValueDB, logger *zap.Logger) *KVStore {
	return &KVStore{kv: kv, logger: logger, now: time.Now}
}

// ForProfile implement Profiles
func (ks *KVStore) ForProfile(profileID string) Store {
	return &KVStore{
		kv:      ks.kv,
		logger:  ks.logger.With(zap.String("profile.id", profileID)),
		now:     ks.now,
		profile: profileID,
	}
}

// Save overwrite the record of courseID, failures are logged and dropped
func (ks *KVStore) Save(ctx context.Context, courseID string, record Record) {
	if courseID == "" {
		return
	}
	if record.OffsetSeconds < 0 {
		record.OffsetSeconds = 0
	}
	if !record.Valid() {
		ks.logger.Warn("Dropping invalid resume record", zap.String("course.id", courseID))
		return
	}
	if record.LessonID == "" {
		record.LessonID = record.LessonRef()
	}
	if record.SavedAt.IsZero() {
		record.SavedAt = ks.now().UTC()
	}

	b, err := json.Marshal(record)
	if err != nil {
		ks.logger.Warn("Failed to encode resume record", zap.String("course.id", courseID), zap.Error(err))
		return
	}
	if err := ks.kv.Set(ctx, Key(ks.profile, courseID), string(b), 0); err != nil {
		ks.logger.Warn("Failed to save resume record", zap.String("course.id", courseID), zap.Error(err))
	}
}

// Load the record of courseID, absent when missing, corrupted or the storage is unavailable
func (ks *KVStore) Load(ctx context.Context, courseID string) (Record, bool) {
	if courseID == "" {
		return Record{}, false
	}
	raw, err := ks.kv.Get(ctx, Key(ks.profile, courseID))
	if errors.Is(err, driver.ErrKeyNotFound) {
		return Record{}, false
	}
	if err != nil {
		ks.logger.Warn("Failed to load resume record", zap.String("course.id", courseID), zap.Error(err))
		return Record{}, false
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		ks.logger.Warn("Corrupted resume record", zap.String("course.id", courseID), zap.Error(err))
		return Record{}, false
	}
	if !record.Valid() {
		ks.logger.Warn("Corrupted resume record", zap.String("course.id", courseID))
		return Record{}, false
	}
	if record.LessonID == "" {
		record.LessonID = record.LessonRef()
	}
	return record, true
}
