package app

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/jobboard/internal/auth"
	"github.com/hitoshi/jobboard/internal/config"
	"github.com/hitoshi/jobboard/internal/database"
	"github.com/hitoshi/jobboard/internal/handler"
	"github.com/hitoshi/jobboard/internal/logger"
	"github.com/hitoshi/jobboard/internal/metrics"
	"github.com/hitoshi/jobboard/internal/middleware"
	"github.com/hitoshi/jobboard/internal/search"
	"github.com/hitoshi/jobboard/internal/transport"
	"github.com/hitoshi/jobboard/internal/verification"
	"github.com/hitoshi/jobboard/internal/worker/expire"
)

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

	// 3. 設定されたログレベルで再セットアップ
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)
	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

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
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandExpireJobs:
		return runExpireJobs(cfg, rest)
	case CommandApproveRecruiter:
		return runApproveRecruiter(cfg, rest)
	default:
		return runServe(cfg)
	}
}

// openDB はコネクションプール設定付きでDBを開き、疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLife,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// buildInfra は外部接続を組み立てる。Redisと検索エンジンは設定がある場合のみ接続する。
// 返すcloserは開いた接続をすべて閉じる。
func buildInfra(ctx context.Context, cfg *config.Config, collector metrics.MetricsCollector) (Infra, func(), error) {
	closer := func() {}

	senders, err := transport.New(ctx, transport.Config{
		Mode:        cfg.NotifyTransport,
		AWSRegion:   cfg.AWSRegion,
		SenderEmail: cfg.SESSender,
		SMSSenderID: cfg.SNSSenderID,
	}, slog.Default())
	if err != nil {
		return Infra{}, closer, err
	}

	infra := Infra{
		OAuth: auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}),
		Email:   senders.Email,
		SMS:     senders.SMS,
		Metrics: collector,
	}

	if cfg.RedisAddr != "" {
		client, err := database.OpenRedis(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return Infra{}, closer, err
		}
		closer = func() { client.Close() }
		infra.TwoFactor = verification.NewRedisTwoFactorStore(client)
		slog.Info("redis connection established")
	} else {
		slog.Warn("REDIS_ADDR is not set; two-factor codes are disabled")
	}

	if cfg.ElasticsearchURL != "" {
		index, err := search.NewElasticJobIndex(search.Config{
			Addresses: splitAddresses(cfg.ElasticsearchURL),
			Username:  cfg.ElasticsearchUsername,
			Password:  cfg.ElasticsearchPassword,
			Index:     cfg.ElasticsearchIndex,
		})
		if err != nil {
			return Infra{}, closer, err
		}
		if err := index.EnsureIndex(ctx); err != nil {
			// 検索エンジンが使えなくてもDB検索で動作を続ける
			slog.Warn("search index unavailable; falling back to database search",
				slog.String("error", err.Error()),
			)
		} else {
			infra.Index = index
			slog.Info("search index ready", slog.String("index", cfg.ElasticsearchIndex))
		}
	}

	return infra, closer, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. マイグレーションとDB接続
	if cfg.MigrateOnServe {
		if err := runMigrate(cfg); err != nil {
			return err
		}
	}
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. メトリクスと外部接続
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	infra, closeInfra, err := buildInfra(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer closeInfra()

	// 3. サービスとルーターの構築
	repos := PostgresRepositories(db)
	services := NewServices(cfg, repos, infra)

	limiter := middleware.NewRateLimiter(RateLimiterConfig(cfg))
	defer limiter.Stop()

	// メトリクスのポートが分かれていれば専用サーバーで公開する
	var metricsServer *http.Server
	var routerMetrics http.Handler
	if cfg.MetricsPort != "" && cfg.MetricsPort != cfg.ServerPort {
		metricsServer = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metrics.Handler(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
	} else {
		routerMetrics = metrics.Handler(registry)
	}

	deps := NewRouterDeps(cfg, services, repos.Sessions, limiter, db, collector, routerMetrics)
	router := handler.NewRouter(deps)

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	if metricsServer != nil {
		go func() {
			slog.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server listen error", slog.String("error", err.Error()))
			}
		}()
	}

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 求人・招待・セッションの期限切れ処理をSweepIntervalごとに実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	collector := metrics.NewCollector(prometheus.NewRegistry())
	infra, closeInfra, err := buildInfra(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer closeInfra()

	services := NewServices(cfg, PostgresRepositories(db), infra)

	runner := expire.NewRunner(slog.Default(),
		expire.NewJobSweep(db, slog.Default(), collector),
		expire.NewInvitationSweep(services.Teams, slog.Default()),
		expire.NewSessionSweep(db, slog.Default()),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.SweepInterval),
	)

	// ランナーをメインgoroutineで実行（ブロッキング）
	runner.Start(ctx, cfg.SweepInterval)

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

// runExpireJobs は期限切れ求人の非公開化を1回だけ実行する。
// -dry-run を指定すると件数の確認のみ行う。
func runExpireJobs(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet(string(CommandExpireJobs), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dryRun := fs.Bool("dry-run", false, "対象件数の確認のみ行う")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", CommandExpireJobs, err)
	}

	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sweep := expire.NewJobSweep(db, slog.Default(), metrics.Nop{})
	sweep.DryRun = *dryRun
	if _, err := sweep.Run(ctx); err != nil {
		return fmt.Errorf("expire-jobs failed: %w", err)
	}
	return nil
}

// runApproveRecruiter はリクルーターアカウントを承認する運用コマンド。
func runApproveRecruiter(cfg *config.Config, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("usage: %s <account-id>", CommandApproveRecruiter)
	}
	accountID := strings.TrimSpace(args[0])

	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repos := PostgresRepositories(db)
	services := NewServices(cfg, repos, Infra{})
	acct, err := services.Account.ApproveRecruiter(ctx, accountID)
	if err != nil {
		return fmt.Errorf("approve-recruiter failed: %w", err)
	}

	slog.Info("recruiter approved",
		slog.String("account_id", acct.ID),
		slog.String("email", acct.Email),
	)
	return nil
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	u.RawQuery = ""
	return u.String()
}

func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
