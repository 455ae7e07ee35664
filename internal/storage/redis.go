package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"botmon/internal/registry"
	logx "botmon/pkg/logx"
)

// RedisStore keeps two sets per pair:
//
//	{prefix}:subject:{subject_id} -> watcher ids
//	{prefix}:watcher:{watcher_id} -> subject ids
//
// Both sides are written in one MULTI/EXEC so readers never see half a pair.
type RedisStore struct {
	client  *redis.Client
	log     logx.Logger
	prefix  string
	timeout time.Duration
}

func openRedis(cfg Config, log logx.Logger) (*RedisStore, error) {
	url := strings.TrimSpace(cfg.RedisURL)
	if url == "" {
		return nil, errors.New("storage.redis_url is required for redis driver")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedis(client, cfg.KeyPrefix, cfg.OpTimeout, log), nil
}

// NewRedis wraps an existing client. prefix defaults to "botmon".
func NewRedis(client *redis.Client, prefix string, timeout time.Duration, log logx.Logger) *RedisStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &RedisStore{client: client, log: log, prefix: prefix, timeout: timeout}
}

func (s *RedisStore) subjectKey(id string) string { return s.prefix + ":subject:" + id }
func (s *RedisStore) watcherKey(id string) string { return s.prefix + ":watcher:" + id }

func (s *RedisStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *RedisStore) Add(ctx context.Context, e registry.Entry) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, s.subjectKey(e.SubjectID), e.WatcherID)
		p.SAdd(ctx, s.watcherKey(e.WatcherID), e.SubjectID)
		return nil
	})
	return err
}

func (s *RedisStore) Remove(ctx context.Context, e registry.Entry) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SRem(ctx, s.subjectKey(e.SubjectID), e.WatcherID)
		p.SRem(ctx, s.watcherKey(e.WatcherID), e.SubjectID)
		return nil
	})
	return err
}

func (s *RedisStore) FetchBySubject(ctx context.Context, subjectID string) ([]registry.Entry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	watchers, err := s.client.SMembers(ctx, s.subjectKey(subjectID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	sort.Strings(watchers)
	out := make([]registry.Entry, 0, len(watchers))
	for _, w := range watchers {
		out = append(out, registry.Entry{SubjectID: subjectID, WatcherID: w})
	}
	return out, nil
}

func (s *RedisStore) FetchByWatcher(ctx context.Context, watcherID string) ([]registry.Entry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	subjects, err := s.client.SMembers(ctx, s.watcherKey(watcherID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	sort.Strings(subjects)
	out := make([]registry.Entry, 0, len(subjects))
	for _, sub := range subjects {
		out = append(out, registry.Entry{SubjectID: sub, WatcherID: watcherID})
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	s.log.Debug("redis client closing", logx.String("prefix", s.prefix))
	return s.client.Close()
}
