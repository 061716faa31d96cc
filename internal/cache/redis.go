package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starford/lookout/internal/record"
)

// Redis stores each snapshot as one JSON value with an optional expiry.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to the server at redisURL and checks it is reachable.
func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: connect to redis: %w", err)
	}
	return NewRedisWithClient(client, ttl), nil
}

// NewRedisWithClient creates a store from an existing client.
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: "lookout:snapshot:", ttl: ttl}
}

func (s *Redis) key(phone string, list List) string {
	return s.prefix + string(list) + ":" + phone
}

// Save replaces the snapshot for phone and list.
func (s *Redis) Save(ctx context.Context, phone string, list List, records []record.Record) error {
	if records == nil {
		records = []record.Record{}
	}
	data, err := json.Marshal(Snapshot{Phone: phone, List: list, Records: records, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("cache: marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(phone, list), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache: save snapshot: %w", err)
	}
	return nil
}

// Load returns the snapshot for phone and list.
func (s *Redis) Load(ctx context.Context, phone string, list List) (Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(phone, list)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, errNotCached
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("cache: load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("cache: decode snapshot: %w", err)
	}
	return snap, nil
}

// SetStatus rewrites the snapshot with the record's status flag set. The
// key is watched so a concurrent Save is never overwritten.
func (s *Redis) SetStatus(ctx context.Context, phone string, list List, id string) (bool, error) {
	key := s.key(phone, list)
	changed := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return err
		}
		for i := range snap.Records {
			if snap.Records[i].ID == id {
				snap.Records[i].Status = true
				changed = true
			}
		}
		if !changed {
			return nil
		}
		out, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, redis.KeepTTL)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return false, fmt.Errorf("cache: set status: %w", err)
	}
	return changed, nil
}

// Ping checks the server is reachable.
func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Redis) Close() error {
	return s.client.Close()
}
