package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the token store with a TTL-indexed Redis cache so
// tokens survive process restarts and expire server-side. Two keys are
// kept per record: the (user, event) key holding the record, and a
// token-value index pointing back at it. Both carry the record's TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore validates the connection and returns the store.
func NewRedisStore(ctx context.Context, client *redis.Client) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func recordKey(userID, eventID string) string {
	return fmt.Sprintf("checkin:key:%s:%s", userID, eventID)
}

func tokenKey(tok string) string {
	return fmt.Sprintf("checkin:tok:%s", tok)
}

func (s *RedisStore) Put(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal token record: %w", err)
	}

	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	k := recordKey(rec.UserID, rec.EventID)

	// Drop the index entry of the token being replaced, then write the
	// record and its new index in one pipeline.
	old, err := s.client.Get(ctx, k).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read prior token: %w", err)
	}

	pipe := s.client.TxPipeline()
	if len(old) > 0 {
		var prior Record
		if jsonErr := json.Unmarshal(old, &prior); jsonErr == nil && prior.Token != rec.Token {
			pipe.Del(ctx, tokenKey(prior.Token))
		}
	}
	pipe.Set(ctx, k, data, ttl)
	pipe.Set(ctx, tokenKey(rec.Token), k, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

func (s *RedisStore) GetByToken(ctx context.Context, tok string) (*Record, error) {
	k, err := s.client.Get(ctx, tokenKey(tok)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve token: %w", err)
	}

	data, err := s.client.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read token record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal token record: %w", err)
	}
	// A stale index pointing at a reissued record must not resolve.
	if rec.Token != tok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Consume is a WATCH-guarded compare-and-set on the record key: the
// transaction aborts if another consumer touches the key between the
// read and the write, so at most one concurrent call wins.
func (s *RedisStore) Consume(ctx context.Context, rec Record) error {
	k := recordKey(rec.UserID, rec.EventID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, k).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return fmt.Errorf("read token record: %w", err)
		}
		var stored Record
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("unmarshal token record: %w", err)
		}
		if stored.Token != rec.Token {
			return ErrNotFound
		}
		if stored.Used {
			return ErrAlreadyUsed
		}

		stored.Used = true
		out, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal token record: %w", err)
		}
		ttl := time.Until(stored.ExpiresAt)
		if ttl <= 0 {
			ttl = time.Second
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, out, ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			// The racing writer was either a consumer (next read sees
			// Used) or a reissue (next read sees a different token).
			continue
		}
		if err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf("consume token: transaction kept failing")
}

func (s *RedisStore) Delete(ctx context.Context, userID, eventID string) error {
	k := recordKey(userID, eventID)
	data, err := s.client.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read token record: %w", err)
	}
	var rec Record
	pipe := s.client.TxPipeline()
	if json.Unmarshal(data, &rec) == nil {
		pipe.Del(ctx, tokenKey(rec.Token))
	}
	pipe.Del(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
