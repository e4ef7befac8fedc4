package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ivanoskov/payout_bot/internal/model"
)

const redisKeyPrefix = "payout_bot:session:"

var errKeyNotFound = errors.New("key not found")

// redisClient - минимальный набор операций Redis, нужный хранилищу (подменяется в тестах)
type redisClient interface {
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	// Get возвращает errKeyNotFound, если ключа нет
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error
	Close() error
}

// RedisOptions - параметры подключения
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore хранит сессии в Redis, истечение - через EXPIRE
type RedisStore struct {
	client    redisClient
	keyPrefix string
}

// NewRedisStore подключается к Redis и проверяет соединение
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client, err := newGoRedisClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	return newRedisStore(client), nil
}

func newRedisStore(client redisClient) *RedisStore {
	return &RedisStore{client: client, keyPrefix: redisKeyPrefix}
}

func (r *RedisStore) Load(ctx context.Context, key string) (*model.Session, bool, error) {
	data, err := r.client.Get(ctx, r.keyPrefix+key)
	if errors.Is(err, errKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, false, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, true, nil
}

func (r *RedisStore) Save(ctx context.Context, key string, session *model.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.client.Set(ctx, r.keyPrefix+key, data, ttl); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyPrefix+key); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// goRedisClient - реализация redisClient поверх go-redis
type goRedisClient struct {
	client *redis.Client
}

var _ redisClient = (*goRedisClient)(nil)

func newGoRedisClient(ctx context.Context, opts RedisOptions) (*goRedisClient, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &goRedisClient{client: client}, nil
}

func (c *goRedisClient) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *goRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errKeyNotFound
	}
	return data, err
}

func (c *goRedisClient) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *goRedisClient) Close() error {
	return c.client.Close()
}
