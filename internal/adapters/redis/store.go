package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/pageflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.HistoryStore using Redis: a list of JSON entries
// plus the index of the current one.
type Store struct {
	client *backend.Client
	prefix string
	name   string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration of the history keys, refreshed on every write.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithName selects which history the store works on.
func WithName(name string) Option {
	return func(s *Store) {
		s.name = name
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "pageflow:history:",
		name:   "default",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) listKey() string {
	return s.prefix + s.name + ":entries"
}

func (s *Store) indexKey() string {
	return s.prefix + s.name + ":index"
}

type getter interface {
	Get(ctx context.Context, key string) *backend.StringCmd
}

// index returns the current position, -1 when the history is empty.
func (s *Store) index(ctx context.Context, c getter) (int64, error) {
	val, err := c.Get(ctx, s.indexKey()).Result()
	if errors.Is(err, backend.Nil) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read history index: %w", err)
	}
	idx, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt history index %q: %w", val, err)
	}
	return idx, nil
}

// Push appends entry after the current one, dropping forward entries.
func (s *Store) Push(ctx context.Context, entry domain.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	return s.update(ctx, func(pipe backend.Pipeliner, idx int64) {
		if idx < 0 {
			pipe.Del(ctx, s.listKey())
		} else {
			pipe.LTrim(ctx, s.listKey(), 0, idx)
		}
		pipe.RPush(ctx, s.listKey(), data)
		pipe.Set(ctx, s.indexKey(), idx+1, s.ttl)
	})
}

// Replace overwrites the current entry, pushing when the history is empty.
func (s *Store) Replace(ctx context.Context, entry domain.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	return s.update(ctx, func(pipe backend.Pipeliner, idx int64) {
		if idx < 0 {
			pipe.Del(ctx, s.listKey())
			pipe.RPush(ctx, s.listKey(), data)
			pipe.Set(ctx, s.indexKey(), 0, s.ttl)
			return
		}
		pipe.LSet(ctx, s.listKey(), idx, data)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.indexKey(), s.ttl)
		}
	})
}

// update runs fn in a transaction guarded by WATCH on both keys.
func (s *Store) update(ctx context.Context, fn func(pipe backend.Pipeliner, idx int64)) error {
	err := s.client.Watch(ctx, func(tx *backend.Tx) error {
		idx, err := s.index(ctx, tx)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			fn(pipe, idx)
			if s.ttl > 0 {
				pipe.Expire(ctx, s.listKey(), s.ttl)
			}
			return nil
		})
		return err
	}, s.listKey(), s.indexKey())
	if err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Current returns the current entry.
func (s *Store) Current(ctx context.Context) (domain.Entry, error) {
	idx, err := s.index(ctx, s.client)
	if err != nil {
		return domain.Entry{}, err
	}
	if idx < 0 {
		return domain.Entry{}, domain.ErrNoEntry
	}
	val, err := s.client.LIndex(ctx, s.listKey(), idx).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.Entry{}, domain.ErrNoEntry
		}
		return domain.Entry{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	var entry domain.Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return domain.Entry{}, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return entry, nil
}

// Entries returns every entry, oldest first.
func (s *Store) Entries(ctx context.Context) ([]domain.Entry, error) {
	vals, err := s.client.LRange(ctx, s.listKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	entries := make([]domain.Entry, 0, len(vals))
	for _, v := range vals {
		var e domain.Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
