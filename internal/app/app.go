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

	"github.com/google/uuid"
	"github.com/hitoshi/watchlist/internal/auth"
	"github.com/hitoshi/watchlist/internal/cache"
	"github.com/hitoshi/watchlist/internal/config"
	"github.com/hitoshi/watchlist/internal/database"
	"github.com/hitoshi/watchlist/internal/handler"
	"github.com/hitoshi/watchlist/internal/logger"
	"github.com/hitoshi/watchlist/internal/metrics"
	"github.com/hitoshi/watchlist/internal/middleware"
	"github.com/hitoshi/watchlist/internal/repository"
	"github.com/hitoshi/watchlist/internal/watchlist"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "3000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	switch cmd {
	case CommandToken:
		return runToken(w, cfg, args[1:])
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		slog.Info("starting application",
			slog.String("command", string(cmd)),
			slog.String("port", cfg.ServerPort),
		)
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DBとセッションキャッシュへの接続を確認し、全依存関係をワイヤリングしてHTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行い、保留中のキャッシュ書き込みを待つ。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := pingDatabase(ctx, db); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	// 2. セッションキャッシュ接続
	redisClient, err := cache.NewRedisClient(cache.ClientConfig{
		Addr:     cfg.RedisHost,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Timeout:  cfg.CacheTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to configure session cache: %w", err)
	}
	defer redisClient.Close()

	sessions := cache.NewSessionStore(redisClient)
	if err := pingCache(ctx, sessions); err != nil {
		return fmt.Errorf("failed to connect to session cache: %w", err)
	}
	slog.Info("session cache connection established", slog.String("addr", cfg.RedisHost))

	// 3. ルーターの構築
	c, err := newComponents(cfg, db, redisClient)
	if err != nil {
		return err
	}
	defer c.rateLimiter.Stop()

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           c.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// リクエスト完了後に発行された逆参照の書き込みを待つ
	c.service.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// components はserveモードで組み立てる依存関係。
type components struct {
	router      http.Handler
	service     *watchlist.Service
	rateLimiter *middleware.RateLimiter
	registry    *prometheus.Registry
}

// newComponents は接続済みのDBとRedisクライアントから依存関係をワイヤリングする。
func newComponents(cfg *config.Config, db *sql.DB, redisClient *redis.Client) (*components, error) {
	tokens, err := auth.NewTokenService([]byte(cfg.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("failed to configure token verifier: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics.RegisterRuntimeCollectors(registry)
	collector := metrics.NewCollector(registry)

	sessions := cache.NewSessionStore(redisClient)
	service := watchlist.NewService(repository.NewPostgresTodoRepo(db), sessions, watchlist.ServiceConfig{
		SyncTimeout: cfg.CacheSyncTimeout,
		Logger:      slog.Default(),
		Failures:    collector,
	})

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral))

	router := handler.NewRouter(&handler.RouterDeps{
		Verifier:          tokens,
		Sessions:          sessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		HTTPObserver:      collector,
		AuthObserver:      collector,
		MetricsHandler:    metrics.Handler(registry),
		Watchlist:         service,
	})

	return &components{
		router:      router,
		service:     service,
		rateLimiter: rateLimiter,
		registry:    registry,
	}, nil
}

func pingDatabase(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	return db.PingContext(ctx)
}

func pingCache(ctx context.Context, sessions *cache.SessionStore) error {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	return sessions.Ping(ctx)
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.Version(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health-check エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health-check", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// runToken は指定ユーザーIDのベアラートークンをSECRET_KEYで署名してwに出力する。
// セッションキャッシュには書き込まないため、利用には別途セッションが必要。
func runToken(w io.Writer, cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: token <user-id>")
	}
	if err := uuid.Validate(args[0]); err != nil {
		return fmt.Errorf("user id must be a UUID: %w", err)
	}

	tokens, err := auth.NewTokenService([]byte(cfg.SecretKey))
	if err != nil {
		return fmt.Errorf("failed to configure token signer: %w", err)
	}

	token, err := tokens.Sign(args[0], cfg.TokenLifetime)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	_, err = fmt.Fprintln(w, token)
	return err
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
