package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/assistly/server/internal/shared/errors"
)

// Store remembers delivered event IDs so redeliveries are acknowledged without reprocessing.
// Processing is idempotent, so a Store is an optimization and may forget.
type Store interface {
	Seen(ctx context.Context, provider, eventID string) (bool, error)
	Mark(ctx context.Context, provider, eventID, eventType string) error
}

const redisKeyPrefix = "webhook:event:"

// RedisStore keeps event IDs in Redis with a TTL.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(provider, eventID string) string {
	return redisKeyPrefix + provider + ":" + eventID
}

// Seen reports whether the event was marked.
func (s *RedisStore) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKey(provider, eventID)).Result()
	if err != nil {
		return false, apperrors.Unavailable("redis", err)
	}
	return n > 0, nil
}

// Mark records the event. Marking twice keeps the first entry.
func (s *RedisStore) Mark(ctx context.Context, provider, eventID, eventType string) error {
	if err := s.client.SetNX(ctx, redisKey(provider, eventID), eventType, s.ttl).Err(); err != nil {
		return apperrors.Unavailable("redis", err)
	}
	return nil
}

// Event is a processed webhook delivery.
type Event struct {
	Provider   string    `gorm:"primaryKey;type:varchar(32)"`
	EventID    string    `gorm:"primaryKey;type:varchar(128)"`
	EventType  string    `gorm:"type:varchar(128)"`
	ReceivedAt time.Time `gorm:"not null;index"`
}

// TableName returns the table name.
func (Event) TableName() string {
	return "webhook_events"
}

// GormStore keeps event IDs in the webhook_events table.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a database-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// Seen reports whether the event was marked.
func (s *GormStore) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	var ev Event
	err := s.db.WithContext(ctx).
		Select("provider").
		Where("provider = ? AND event_id = ?", provider, eventID).
		Take(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Transient("get webhook event", err)
	}
	return true, nil
}

// Mark records the event. Marking twice keeps the first entry.
func (s *GormStore) Mark(ctx context.Context, provider, eventID, eventType string) error {
	ev := &Event{
		Provider:   provider,
		EventID:    eventID,
		EventType:  eventType,
		ReceivedAt: s.now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ev).Error
	if err != nil {
		return apperrors.Transient("mark webhook event", err)
	}
	return nil
}

// Purge deletes entries received before cutoff.
func (s *GormStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("received_at < ?", cutoff.UTC()).Delete(&Event{})
	if result.Error != nil {
		return 0, apperrors.Transient("purge webhook events", result.Error)
	}
	return result.RowsAffected, nil
}

// NopStore remembers nothing.
type NopStore struct{}

// Seen always reports false.
func (NopStore) Seen(context.Context, string, string) (bool, error) { return false, nil }

// Mark does nothing.
func (NopStore) Mark(context.Context, string, string, string) error { return nil }
