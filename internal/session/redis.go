package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultKeyPrefix = "session:"

	fieldToken        = "token"
	fieldLoginTime    = "login_time"
	fieldLastActivity = "last_activity"
)

// touchIfMatchScript は保存中のトークンが一致する場合のみ最終アクティビティとTTLを更新する。
var touchIfMatchScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "token") == ARGV[1] then
	redis.call("HSET", KEYS[1], "last_activity", ARGV[2])
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
	return 1
end
return 0
`)

// removeIfMatchScript は保存中のトークンが一致する場合のみキーを削除する。
var removeIfMatchScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "token") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRegistry はRedisのハッシュでセッションを保持するRegistry実装。
// 複数インスタンス間でセッションを共有する。
// キーのTTLはアイドル時間と等しく、検証成功のたびに延長されるため、
// 期限切れセッションの削除はRedisの有効期限に任せる。
type RedisRegistry struct {
	client      *redis.Client
	keyPrefix   string
	idleTimeout time.Duration
	now         func() time.Time
}

// NewRedisRegistry はRedisRegistryを生成する。
// idleTimeoutが0以下の場合はDefaultIdleTimeoutを使用する。
func NewRedisRegistry(client *redis.Client, idleTimeout time.Duration) *RedisRegistry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &RedisRegistry{
		client:      client,
		keyPrefix:   defaultKeyPrefix,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// NewRedisClient はREDIS_URL形式のURLからRedisクライアントを生成する。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (r *RedisRegistry) key(userID int64) string {
	return r.keyPrefix + strconv.FormatInt(userID, 10)
}

// SetActiveSession は既存セッションを置き換える。
func (r *RedisRegistry) SetActiveSession(ctx context.Context, userID int64, token string) (bool, error) {
	key := r.key(userID)
	now := strconv.FormatInt(r.now().UnixNano(), 10)

	var existed *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		existed = pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldToken, token,
			fieldLoginTime, now,
			fieldLastActivity, now,
		)
		pipe.Expire(ctx, key, r.idleTimeout)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to store session: %w", err)
	}
	return existed.Val() > 0, nil
}

// IsTokenValid はトークンが現在のセッションと一致するかを返す。
// 一致した場合は最終アクティビティ時刻とTTLを同じスクリプト内で更新する。
func (r *RedisRegistry) IsTokenValid(ctx context.Context, userID int64, token string) (bool, error) {
	n, err := touchIfMatchScript.Run(ctx, r.client, []string{r.key(userID)},
		token,
		strconv.FormatInt(r.now().UnixNano(), 10),
		r.idleTimeout.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to validate session: %w", err)
	}
	return n == 1, nil
}

// RemoveActiveSession はセッションを削除する。
func (r *RedisRegistry) RemoveActiveSession(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// RemoveIfTokenMatches はLuaスクリプトでトークンの比較と削除を不可分に行う。
func (r *RedisRegistry) RemoveIfTokenMatches(ctx context.Context, userID int64, token string) (bool, error) {
	n, err := removeIfMatchScript.Run(ctx, r.client, []string{r.key(userID)}, token).Int()
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	return n > 0, nil
}

// CleanupExpiredSessions はRedisのキー有効期限に委ねるため何もしない。
func (r *RedisRegistry) CleanupExpiredSessions(_ context.Context) (int, error) {
	return 0, nil
}

// Count はプレフィックスに一致するキー数を返す。
func (r *RedisRegistry) Count(ctx context.Context) (int, error) {
	count := 0
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// Get はuserIDのセッションを返す。存在しない場合はnilを返す。
func (r *RedisRegistry) Get(ctx context.Context, userID int64) (*Session, error) {
	values, err := r.client.HGetAll(ctx, r.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	token, ok := values[fieldToken]
	if !ok {
		return nil, nil
	}
	return &Session{
		UserID:       userID,
		Token:        token,
		LoginTime:    parseUnixNano(values[fieldLoginTime]),
		LastActivity: parseUnixNano(values[fieldLastActivity]),
	}, nil
}

func parseUnixNano(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}

var _ Registry = (*RedisRegistry)(nil)
