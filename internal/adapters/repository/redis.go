package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	defaultStream = "guardline:audit"
	defaultMaxLen = 100000
)

// RedisOption configures a RedisSink.
type RedisOption func(*RedisSink)

// WithStream sets the stream key records are appended to.
func WithStream(name string) RedisOption {
	return func(s *RedisSink) {
		if name != "" {
			s.stream = name
		}
	}
}

// WithMaxLen caps the stream length; older entries are trimmed.
func WithMaxLen(n int64) RedisOption {
	return func(s *RedisSink) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

// RedisSink appends records to a Redis stream.
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisClient dials addr and checks it answers within timeout.
func NewRedisClient(ctx context.Context, addr string, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// NewRedisSink creates a sink writing through client.
func NewRedisSink(client *redis.Client, opts ...RedisOption) (*RedisSink, error) {
	if client == nil {
		return nil, ErrMissingClient
	}
	s := &RedisSink{client: client, stream: defaultStream, maxLen: defaultMaxLen}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Stream returns the stream key.
func (s *RedisSink) Stream() string { return s.stream }

// Write appends r to the stream as {kind, subject, data}.
func (s *RedisSink) Write(ctx context.Context, r Record) error {
	if r.Kind == "" {
		return ErrInvalidRecord
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Values: map[string]any{
			"kind":    r.Kind,
			"subject": r.SubjectID,
			"data":    string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd %s: %w", s.stream, err)
	}
	return nil
}

// Close closes the client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
