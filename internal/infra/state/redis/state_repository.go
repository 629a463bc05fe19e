package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/repository"
)

// 仅当 key 的值仍等于 holder 时续期/删除
var (
	renewLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "ce:"
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---
func (r *RedisStateRepository) cursorsKey(slug string) string {
	return fmt.Sprintf("%sroom:%s:cursors", r.keyPrefix, slug)
}

func (r *RedisStateRepository) leaseKey(slug string) string {
	return fmt.Sprintf("%sdoc:lease:%s", r.keyPrefix, slug)
}

func (r *RedisStateRepository) instanceKey(instanceID string) string {
	return fmt.Sprintf("%sinstance:%s", r.keyPrefix, instanceID)
}

// cursorEntry 是写入 hash 的值，单个字段无法设置 TTL，所以自带过期时间
type cursorEntry struct {
	repository.CursorState
	ExpiresAt int64 `json:"expiresAt"`
}

// --- Cursors ---

// SetCursor 写入光标并刷新整个 hash 的过期时间
func (r *RedisStateRepository) SetCursor(ctx context.Context, slug string, cursor repository.CursorState, ttl time.Duration) error {
	key := r.cursorsKey(slug)
	entry := cursorEntry{CursorState: cursor, ExpiresAt: time.Now().Add(ttl).UnixMilli()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal cursor for user %d in room %s: %w", cursor.UserID, slug, err)
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.FormatUint(uint64(cursor.UserID), 10), data)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to set cursor on %s: %w", key, err)
	}
	return nil
}

// GetCursors 读取房间内未过期的光标，顺带清理已过期字段
func (r *RedisStateRepository) GetCursors(ctx context.Context, slug string) (map[uint]repository.CursorState, error) {
	key := r.cursorsKey(slug)
	raw, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get cursors from %s: %w", key, err)
	}
	now := time.Now().UnixMilli()
	cursors := make(map[uint]repository.CursorState, len(raw))
	var stale []string
	for field, value := range raw {
		var entry cursorEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("redis: dropping unreadable cursor entry")
			stale = append(stale, field)
			continue
		}
		if entry.ExpiresAt < now {
			stale = append(stale, field)
			continue
		}
		cursors[entry.UserID] = entry.CursorState
	}
	if len(stale) > 0 {
		if err := r.client.HDel(ctx, key, stale...).Err(); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("redis: failed to prune stale cursors")
		}
	}
	return cursors, nil
}

// GetCursor 读取单个用户的光标
func (r *RedisStateRepository) GetCursor(ctx context.Context, slug string, userID uint) (*repository.CursorState, error) {
	key := r.cursorsKey(slug)
	value, err := r.client.HGet(ctx, key, strconv.FormatUint(uint64(userID), 10)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis: failed to get cursor of user %d from %s: %w", userID, key, err)
	}
	var entry cursorEntry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		return nil, fmt.Errorf("redis: failed to unmarshal cursor of user %d from %s: %w", userID, key, err)
	}
	if entry.ExpiresAt < time.Now().UnixMilli() {
		return nil, repository.ErrNotFound
	}
	return &entry.CursorState, nil
}

// ClearCursor 删除用户光标
func (r *RedisStateRepository) ClearCursor(ctx context.Context, slug string, userID uint) error {
	key := r.cursorsKey(slug)
	if err := r.client.HDel(ctx, key, strconv.FormatUint(uint64(userID), 10)).Err(); err != nil {
		return fmt.Errorf("redis: failed to clear cursor of user %d on %s: %w", userID, key, err)
	}
	return nil
}

// --- Document ownership ---

// AcquireLease 使用 SET NX PX 获取租约
func (r *RedisStateRepository) AcquireLease(ctx context.Context, slug, holder string, ttl time.Duration) (bool, error) {
	key := r.leaseKey(slug)
	ok, err := r.client.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to acquire lease %s: %w", key, err)
	}
	if ok {
		return true, nil
	}
	// 已存在：如果持有者就是自己，视为续约
	return r.RenewLease(ctx, slug, holder, ttl)
}

// RenewLease 续约
func (r *RedisStateRepository) RenewLease(ctx context.Context, slug, holder string, ttl time.Duration) (bool, error) {
	key := r.leaseKey(slug)
	n, err := renewLeaseScript.Run(ctx, r.client, []string{key}, holder, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis: failed to renew lease %s: %w", key, err)
	}
	return n == 1, nil
}

// ReleaseLease 释放租约
func (r *RedisStateRepository) ReleaseLease(ctx context.Context, slug, holder string) error {
	key := r.leaseKey(slug)
	if err := releaseLeaseScript.Run(ctx, r.client, []string{key}, holder).Err(); err != nil {
		return fmt.Errorf("redis: failed to release lease %s: %w", key, err)
	}
	return nil
}

// --- Instances ---

// Heartbeat 刷新实例存活标记
func (r *RedisStateRepository) Heartbeat(ctx context.Context, instanceID string, ttl time.Duration) error {
	key := r.instanceKey(instanceID)
	if err := r.client.Set(ctx, key, time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to write heartbeat %s: %w", key, err)
	}
	return nil
}

// InstanceAlive 判断实例存活标记是否存在
func (r *RedisStateRepository) InstanceAlive(ctx context.Context, instanceID string) (bool, error) {
	key := r.instanceKey(instanceID)
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to check heartbeat %s: %w", key, err)
	}
	return n == 1, nil
}
