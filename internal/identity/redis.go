package identity

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/Sirojiddin1dev/carinfopro/internal/models"
)

// RedisStore keeps session records in Redis, for kiosk-style deployments
// where several widget hosts share one visitor identity.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// sessionKey returns the key for an owner's session record.
func sessionKey(ownerID string) string {
	return "chat:session:" + ownerID
}

// Load retrieves the record for an owner. Missing keys and undecodable
// values read as absent.
func (s *RedisStore) Load(ctx context.Context, ownerID string) (*models.SessionRecord, error) {
	data, err := s.client.Get(ctx, sessionKey(ownerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var rec models.SessionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, nil
	}
	if rec.RoomID == "" || rec.VisitorToken == "" {
		return nil, nil
	}
	rec.OwnerID = ownerID
	return &rec, nil
}

// Save writes the record. Records have no TTL; rooms outlive idle periods.
func (s *RedisStore) Save(ctx context.Context, rec *models.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(rec.OwnerID), data, 0).Err()
}

// Clear removes the record for an owner.
func (s *RedisStore) Clear(ctx context.Context, ownerID string) error {
	return s.client.Del(ctx, sessionKey(ownerID)).Err()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
