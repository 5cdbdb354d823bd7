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

	"github.com/dmswl6310/volunteer-work/internal/account"
	"github.com/dmswl6310/volunteer-work/internal/auth"
	"github.com/dmswl6310/volunteer-work/internal/config"
	"github.com/dmswl6310/volunteer-work/internal/database"
	"github.com/dmswl6310/volunteer-work/internal/handler"
	"github.com/dmswl6310/volunteer-work/internal/invalidate"
	"github.com/dmswl6310/volunteer-work/internal/lifecycle"
	"github.com/dmswl6310/volunteer-work/internal/logger"
	"github.com/dmswl6310/volunteer-work/internal/metrics"
	"github.com/dmswl6310/volunteer-work/internal/middleware"
	"github.com/dmswl6310/volunteer-work/internal/post"
	"github.com/dmswl6310/volunteer-work/internal/profanity"
	"github.com/dmswl6310/volunteer-work/internal/repository"
	"github.com/dmswl6310/volunteer-work/internal/review"
	"github.com/dmswl6310/volunteer-work/internal/scrap"
	"github.com/dmswl6310/volunteer-work/internal/security"
	"github.com/dmswl6310/volunteer-work/internal/worker/maintenance"
)

// Init はアプリケーションの初期化を行う。
// .envを読み込み、環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envと環境変数から設定を読み込む
	if err := config.LoadEnvFile(); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログレベルの反映
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("invalid LOG_LEVEL, falling back to info", slog.String("error", err.Error()))
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
		slog.String("timezone", cfg.AppTimezone),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandGrantAdmin:
		if len(args) < 2 || args[1] == "" {
			return errors.New("usage: grant-admin <account-id>")
		}
		return runGrantAdmin(cfg, args[1])
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLife,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// newMetrics はRecorderと/metrics用のハンドラーを返す。無効時はNopとnil。
func newMetrics(cfg *config.Config) (metrics.Recorder, http.Handler) {
	if !cfg.MetricsEnabled {
		return metrics.Nop{}, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.NewCollector(reg), metrics.Handler(reg)
}

// waiter は非同期送信の完了を待てる通知先。
type waiter interface {
	Wait()
}

// newNotifier は設定に応じてキャッシュ無効化の通知先を組み立てる。
// 返す関数はシャットダウン時に呼び、送信中の通知を待って接続を閉じる。
func newNotifier(cfg *config.Config, guard security.URLGuard) (invalidate.Notifier, func()) {
	var (
		targets  invalidate.Multi
		closers  []func()
		waitList []waiter
	)

	if cfg.RevalidateURL != "" {
		if err := guard.ValidateWebhookURL(cfg.RevalidateURL); err != nil {
			slog.Warn("REVALIDATE_URL is not allowed, webhook invalidation disabled",
				slog.String("error", err.Error()),
			)
		} else {
			wh := invalidate.NewWebhookNotifier(cfg.RevalidateURL, cfg.RevalidateSecret, guard.NewSafeClient(5*time.Second), slog.Default())
			targets = append(targets, wh)
			waitList = append(waitList, wh)
		}
	}

	if cfg.RedisURL != "" {
		client, err := invalidate.NewRedisClient(cfg.RedisURL)
		if err != nil {
			slog.Warn("REDIS_URL is invalid, redis invalidation disabled",
				slog.String("error", err.Error()),
			)
		} else {
			rn := invalidate.NewRedisNotifier(client, cfg.InvalidationChannel, slog.Default())
			targets = append(targets, rn)
			waitList = append(waitList, rn)
			closers = append(closers, func() { client.Close() })
		}
	}

	shutdown := func() {
		for _, w := range waitList {
			w.Wait()
		}
		for _, c := range closers {
			c()
		}
	}

	if len(targets) == 0 {
		return invalidate.Nop{}, shutdown
	}
	return targets, shutdown
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	appRepo := repository.NewPostgresApplicationRepo(db)
	reviewRepo := repository.NewPostgresReviewRepo(db)
	scrapRepo := repository.NewPostgresScrapRepo(db)

	// 3. 横断的な部品
	rec, metricsHandler := newMetrics(cfg)
	guard := security.NewURLGuard()
	sanitizer := security.NewContentSanitizer()
	filter := profanity.NewFilter(cfg.ProfanityExtraWords...)
	notifier, closeNotifier := newNotifier(cfg, guard)
	defer closeNotifier()

	// 4. ドメインサービスの初期化
	accountService := account.NewService(accountRepo, filter, rec)
	postService := post.NewService(postRepo, filter, sanitizer, guard, notifier)
	scrapService := scrap.NewService(postRepo, scrapRepo, notifier)
	engine := lifecycle.NewEngine(postRepo, appRepo, notifier, rec, cfg.Location)
	reviewService := review.NewService(postRepo, appRepo, reviewRepo, filter, sanitizer, notifier, rec)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitApply))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger: slog.Default(),
		Verifier: auth.NewVerifier(auth.VerifierConfig{
			Secret:   cfg.AuthJWTSecret,
			Issuer:   cfg.AuthJWTIssuer,
			Audience: cfg.AuthJWTAudience,
			Leeway:   30 * time.Second,
		}),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Metrics:           rec,
		MetricsHandler:    metricsHandler,
		HealthChecker:     db,

		Accounts:     accountService,
		Posts:        postService,
		Scraps:       scrapService,
		Applications: engine,
		Reviews:      reviewService,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はメンテナンスワーカーモードで起動する。
// 起動直後に1回、その後MAINTENANCE_SCHEDULEに従ってジョブを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rec, _ := newMetrics(cfg)
	notifier, closeNotifier := newNotifier(cfg, security.NewURLGuard())
	defer closeNotifier()

	job := maintenance.NewJob(
		repository.NewPostgresMaintenanceRepo(db),
		notifier, rec, slog.Default(), cfg.Location,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.String("schedule", cfg.MaintenanceSchedule),
		slog.String("timezone", cfg.AppTimezone),
	)

	if err := job.Start(ctx, cfg.MaintenanceSchedule); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
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

	slog.Info("database migrations completed successfully")
	return nil
}

// runGrantAdmin は指定アカウントを管理者に昇格させる。
func runGrantAdmin(cfg *config.Config, accountID string) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := account.NewService(repository.NewPostgresAccountRepo(db), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return svc.GrantAdmin(ctx, accountID)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
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
