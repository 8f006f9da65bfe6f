// Package app はサブコマンドの解析と各モードの起動・依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ongdesk/ongdesk/internal/activity"
	"github.com/ongdesk/ongdesk/internal/attendance"
	"github.com/ongdesk/ongdesk/internal/auth"
	"github.com/ongdesk/ongdesk/internal/config"
	"github.com/ongdesk/ongdesk/internal/database"
	"github.com/ongdesk/ongdesk/internal/handler"
	"github.com/ongdesk/ongdesk/internal/logger"
	"github.com/ongdesk/ongdesk/internal/metrics"
	"github.com/ongdesk/ongdesk/internal/middleware"
	"github.com/ongdesk/ongdesk/internal/repository"
	"github.com/ongdesk/ongdesk/internal/security"
	"github.com/ongdesk/ongdesk/internal/session"
	"github.com/ongdesk/ongdesk/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定のログレベルで再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("app_env", cfg.AppEnv),
		slog.String("session_store", cfg.SessionStore),
	)

	switch cmd {
	case CommandMigrate:
		action, err := ParseMigrateAction(args[1:])
		if err != nil {
			return err
		}
		return runMigrate(cfg, action)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	}
}

// newSessionRegistry は設定に応じたセッションレジストリを生成する。
// 返却するcloseはRedis接続の解放に使う。
func newSessionRegistry(ctx context.Context, cfg *config.Config) (session.Registry, func() error, error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return session.NewMemoryRegistry(cfg.SessionIdleTimeout), func() error { return nil }, nil
	}

	client, err := session.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("redis connection established")
	return session.NewRedisRegistry(client, cfg.SessionIdleTimeout), client.Close, nil
}

// server はserveモードで組み立てた依存関係を保持する。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
	sweeper     *cleanup.CleanupJob
}

// newServer はリポジトリ・サービス・ミドルウェアをワイヤリングし、ルーターを構築する。
func newServer(cfg *config.Config, db *sql.DB, registry session.Registry) *server {
	log := slog.Default()

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	trackRepo := repository.NewPostgresActivityTrackRepo(db)
	attendanceRepo := repository.NewPostgresAttendanceRepo(db)
	beneficiaryRepo := repository.NewPostgresBeneficiaryRepo(db)

	// 3. ドメインサービスの初期化
	sanitizer := security.NewTextSanitizer()
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiresIn)
	authService := auth.NewService(userRepo, tokens, registry, sanitizer)
	trackService := activity.NewService(trackRepo, sanitizer, collector)
	attendanceService := attendance.NewService(attendanceRepo, trackRepo, beneficiaryRepo, sanitizer, collector)
	sweeper := cleanup.NewCleanupJob(registry, collector, log)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		TokenVerifier:      tokens,
		SessionValidator:   registry,
		SupersededRecorder: collector,
		HTTPRecorder:       collector,
		RateLimiter:        rateLimiter,
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		Logger:             log,

		AuthService:       authService,
		TrackService:      trackService,
		AttendanceService: attendanceService,
		SessionSweeper:    sweeper,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		PageMaxLimit: cfg.PageMaxLimit,
		DevMode:      cfg.DevMode(),
	})

	return &server{handler: router, rateLimiter: rateLimiter, sweeper: sweeper}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーとセッション掃除ジョブを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. セッションレジストリ
	registry, closeRegistry, err := newSessionRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize session registry: %w", err)
	}
	defer closeRegistry()

	// 3. ワイヤリング
	srv := newServer(cfg, db, registry)
	defer srv.rateLimiter.Stop()

	// 4. セッション掃除ジョブをバックグラウンドで起動
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go srv.sweeper.Start(sweepCtx, cfg.SessionCleanupInterval)

	// 5. HTTPサーバーの起動
	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, action MigrateAction) error {
	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackLast(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case MigrateVersion:
		version, dirty, err := database.Version(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		slog.Info("current schema version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
