package session

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry はプロセス内のmapでセッションを保持するRegistry実装。
// 複数インスタンスで共有されないため、水平スケール時はRedisRegistryを使用すること。
type MemoryRegistry struct {
	mu          sync.RWMutex
	sessions    map[int64]*Session
	idleTimeout time.Duration
	now         func() time.Time
}

// NewMemoryRegistry はMemoryRegistryを生成する。
// idleTimeoutが0以下の場合はDefaultIdleTimeoutを使用する。
func NewMemoryRegistry(idleTimeout time.Duration) *MemoryRegistry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &MemoryRegistry{
		sessions:    make(map[int64]*Session),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// SetActiveSession は既存セッションを置き換える。
func (r *MemoryRegistry) SetActiveSession(_ context.Context, userID int64, token string) (bool, error) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced := r.sessions[userID]
	r.sessions[userID] = &Session{
		UserID:       userID,
		Token:        token,
		LoginTime:    now,
		LastActivity: now,
	}
	return replaced, nil
}

// IsTokenValid はトークンが現在のセッションと一致するかを返す。
func (r *MemoryRegistry) IsTokenValid(_ context.Context, userID int64, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok || !tokensEqual(s.Token, token) {
		return false, nil
	}
	s.LastActivity = r.now()
	return true, nil
}

// RemoveActiveSession はセッションを削除する。
func (r *MemoryRegistry) RemoveActiveSession(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, userID)
	return nil
}

// RemoveIfTokenMatches はトークンが一致する場合のみセッションを削除する。
func (r *MemoryRegistry) RemoveIfTokenMatches(_ context.Context, userID int64, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[userID]
	if !ok || !tokensEqual(s.Token, token) {
		return false, nil
	}
	delete(r.sessions, userID)
	return true, nil
}

// CleanupExpiredSessions は最終アクティビティからidleTimeoutを超えたセッションを削除する。
func (r *MemoryRegistry) CleanupExpiredSessions(_ context.Context) (int, error) {
	cutoff := r.now().Add(-r.idleTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for userID, s := range r.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(r.sessions, userID)
			removed++
		}
	}
	return removed, nil
}

// Count は保持しているセッション数を返す。
func (r *MemoryRegistry) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), nil
}

// Get はuserIDのセッションのコピーを返す。存在しない場合はnilを返す。
func (r *MemoryRegistry) Get(userID int64) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

var _ Registry = (*MemoryRegistry)(nil)
