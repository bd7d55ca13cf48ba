package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "cache:"
	scanCount   = 200
	deleteBatch = 500
)

// Key builds the cache key a read endpoint stores its response under.
// Invalidation removes every key of a (scope, company) pair.
func Key(scope string, companyID uuid.UUID, suffix string) string {
	return keyPrefix + scope + ":" + companyID.String() + ":" + suffix
}

// Redis drops cached read responses from redis.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Invalidate(ctx context.Context, companyID uuid.UUID, scopes ...string) error {
	for _, scope := range scopes {
		keys, err := r.matching(ctx, keyPrefix+scope+":"+companyID.String()+":*")
		if err != nil {
			return fmt.Errorf("failed to scan %s cache keys: %w", scope, err)
		}
		// Deleting is deferred until the scan is complete; removing keys
		// mid-iteration lets the cursor skip entries.
		for start := 0; start < len(keys); start += deleteBatch {
			end := min(start+deleteBatch, len(keys))
			if err := r.client.Del(ctx, keys[start:end]...).Err(); err != nil {
				return fmt.Errorf("failed to delete %s cache keys: %w", scope, err)
			}
		}
	}
	return nil
}

// matching walks the whole keyspace cursor and returns every key of pattern.
func (r *Redis) matching(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// GetJSON loads a cached response into dst. A miss reports false.
func (r *Redis) GetJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return true, nil
}

func (r *Redis) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, raw, ttl).Err()
}

// Publisher is the part of the websocket hub the notifier needs.
type Publisher interface {
	Publish(companyID uuid.UUID, payload []byte) bool
}

// Event is pushed to connected dashboards so they refetch.
type Event struct {
	Event  string   `json:"event"`
	Scopes []string `json:"scopes"`
}

// Notifier tells connected clients of the company to drop their copies.
type Notifier struct {
	pub Publisher
}

func NewNotifier(pub Publisher) *Notifier {
	return &Notifier{pub: pub}
}

var ErrNotifyQueueFull = errors.New("invalidation notification dropped: queue full")

func (n *Notifier) Invalidate(ctx context.Context, companyID uuid.UUID, scopes ...string) error {
	payload, err := json.Marshal(Event{Event: "cache.invalidate", Scopes: scopes})
	if err != nil {
		return err
	}
	if !n.pub.Publish(companyID, payload) {
		return ErrNotifyQueueFull
	}
	return nil
}

// Invalidator is implemented by Redis, Notifier and Multi.
type Invalidator interface {
	Invalidate(ctx context.Context, companyID uuid.UUID, scopes ...string) error
}

// Multi runs every invalidator and joins their errors.
type Multi []Invalidator

func (m Multi) Invalidate(ctx context.Context, companyID uuid.UUID, scopes ...string) error {
	var errs []error
	for _, inv := range m {
		if err := inv.Invalidate(ctx, companyID, scopes...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
