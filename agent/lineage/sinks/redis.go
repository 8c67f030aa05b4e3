package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fireflyframework/genai-data/agent/lineage"
	backend "github.com/redis/go-redis/v9"
)

const defaultRedisKey = "genai-data:lineage"

var _ lineage.Sink = (*RedisSink)(nil)

// RedisOption customizes RedisSink.
type RedisOption func(*RedisSink)

func WithKey(key string) RedisOption {
	return func(s *RedisSink) {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			s.key = trimmed
		}
	}
}

// WithMaxLen keeps only the newest n records in the list.
func WithMaxLen(n int64) RedisOption {
	return func(s *RedisSink) {
		s.maxLen = n
	}
}

func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisSink) {
		s.ttl = ttl
	}
}

// RedisSink appends JSON-encoded records to a Redis list.
type RedisSink struct {
	client backend.Cmdable
	key    string
	maxLen int64
	ttl    time.Duration
}

func NewRedisSink(client backend.Cmdable, opts ...RedisOption) (*RedisSink, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	s := &RedisSink{client: client, key: defaultRedisKey}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.maxLen < 0 {
		return nil, errors.New("max len must be >= 0")
	}
	if s.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return s, nil
}

func (s *RedisSink) Key() string { return s.key }

func (s *RedisSink) Write(ctx context.Context, records []lineage.Record) error {
	if len(records) == 0 {
		return nil
	}

	values := make([]any, 0, len(records))
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal lineage record: %w", err)
		}
		values = append(values, data)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key, values...)
	if s.maxLen > 0 {
		pipe.LTrim(ctx, s.key, -s.maxLen, -1)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push %d lineage records to redis: %w", len(records), err)
	}
	return nil
}

// Read returns the stored records between start and stop, inclusive, using LRANGE indexing.
func (s *RedisSink) Read(ctx context.Context, start, stop int64) ([]lineage.Record, error) {
	raw, err := s.client.LRange(ctx, s.key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read lineage records from redis: %w", err)
	}
	out := make([]lineage.Record, 0, len(raw))
	for _, item := range raw {
		var r lineage.Record
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("decode lineage record: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
