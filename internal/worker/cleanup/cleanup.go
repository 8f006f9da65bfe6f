// Package cleanup はセッションレジストリのアイドルセッション掃除ジョブを提供する。
// 最終アクティビティから一定時間（デフォルト24時間）が経過したセッションを
// 定期的に削除し、保持セッション数をメトリクスに反映する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval は掃除ジョブのデフォルト実行間隔。
const DefaultInterval = time.Hour

// SessionStore はセッション掃除に必要なインターフェース。
// session.Registryの部分集合として定義する。
type SessionStore interface {
	CleanupExpiredSessions(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
}

// SweepRecorder は掃除結果のメトリクス記録に必要なインターフェース。
type SweepRecorder interface {
	RecordSessionsSwept(count int)
	SetActiveSessions(count int)
}

// Result は1回の掃除の結果。
type Result struct {
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

// CleanupJob はアイドルセッションの掃除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	sessions SessionStore
	metrics  SweepRecorder
	logger   *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions SessionStore, metrics SweepRecorder, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run はアイドル期限切れのセッションを1回掃除する。
func (j *CleanupJob) Run(ctx context.Context) (Result, error) {
	start := time.Now()

	removed, err := j.sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		j.logger.Error("session cleanup failed",
			slog.String("error", err.Error()),
		)
		return Result{}, fmt.Errorf("failed to clean up sessions: %w", err)
	}
	j.metrics.RecordSessionsSwept(removed)

	remaining, err := j.sessions.Count(ctx)
	if err != nil {
		j.logger.Error("failed to count sessions",
			slog.String("error", err.Error()),
		)
		return Result{Removed: removed}, fmt.Errorf("failed to count sessions: %w", err)
	}
	j.metrics.SetActiveSessions(remaining)

	j.logger.Info("session cleanup completed",
		slog.Int("removed_count", removed),
		slog.Int("remaining_count", remaining),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return Result{Removed: removed, Remaining: remaining}, nil
}

// Start はinterval間隔で掃除ジョブを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("session cleanup job started",
		slog.Duration("interval", interval),
	)

	j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("session cleanup job stopped")
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
