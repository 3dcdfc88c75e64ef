// Package config は環境変数（と任意の.envファイル）からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnMaxLife  time.Duration
	MigrateOnServe bool

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret string
	SessionMaxAge int

	// Rate Limit（1分あたりの回数）
	RateLimitGeneral      int
	RateLimitVerification int // 15分あたりの回数

	// Verification
	PhoneCodeTTL  time.Duration
	EmailTokenTTL time.Duration
	TwoFactorTTL  time.Duration

	// Team
	InvitationTTL time.Duration

	// Redis（二要素認証コード）
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Notify
	NotifyTransport string // log または aws
	AWSRegion       string
	SESSender       string
	SNSSenderID     string
	SiteName        string

	// Search（空ならデータベース検索のみ）
	ElasticsearchURL      string
	ElasticsearchUsername string
	ElasticsearchPassword string
	ElasticsearchIndex    string

	// Worker
	SweepInterval time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	MetricsPort string
	BaseURL     string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins []string
}

var requiredKeys = []string{
	"DATABASE_URL",
	"GOOGLE_CLIENT_ID",
	"GOOGLE_CLIENT_SECRET",
	"GOOGLE_REDIRECT_URL",
	"SESSION_SECRET",
	"BASE_URL",
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込むが、既に設定済みの環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}
	return FromViper(newViper())
}

// LoadUnchecked は必須項目を検証せずに読み込む。OAuth設定を使わないworkerやCLI向け。
func LoadUnchecked() *Config {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
	return build(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("MIGRATE_ON_SERVE", true)
	v.SetDefault("SESSION_MAX_AGE", 86400)
	v.SetDefault("RATE_LIMIT_GENERAL", 120)
	v.SetDefault("RATE_LIMIT_VERIFICATION", 5)
	v.SetDefault("PHONE_CODE_TTL", 10*time.Minute)
	v.SetDefault("EMAIL_TOKEN_TTL", 24*time.Hour)
	v.SetDefault("TWO_FACTOR_TTL", 5*time.Minute)
	v.SetDefault("INVITATION_TTL", 7*24*time.Hour)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("NOTIFY_TRANSPORT", "log")
	v.SetDefault("AWS_REGION", "ap-northeast-1")
	v.SetDefault("SITE_NAME", "JobBoard")
	v.SetDefault("ELASTICSEARCH_INDEX", "jobs")
	v.SetDefault("SWEEP_INTERVAL", time.Hour)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("METRICS_PORT", "9090")
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
}

// FromViper はviperインスタンスからConfigを組み立て、必須項目を検証する。
func FromViper(v *viper.Viper) (*Config, error) {
	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg := build(v)
	switch cfg.NotifyTransport {
	case "log", "aws":
	default:
		return nil, fmt.Errorf("NOTIFY_TRANSPORT must be log or aws: %q", cfg.NotifyTransport)
	}
	if cfg.NotifyTransport == "aws" && cfg.SESSender == "" {
		return nil, fmt.Errorf("SES_SENDER is required when NOTIFY_TRANSPORT=aws")
	}
	return cfg, nil
}

func build(v *viper.Viper) *Config {
	cfg := &Config{
		DatabaseURL:    v.GetString("DATABASE_URL"),
		DBMaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		DBConnMaxLife:  v.GetDuration("DB_CONN_MAX_LIFETIME"),
		MigrateOnServe: v.GetBool("MIGRATE_ON_SERVE"),

		GoogleClientID:     v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),

		SessionSecret: v.GetString("SESSION_SECRET"),
		SessionMaxAge: v.GetInt("SESSION_MAX_AGE"),

		RateLimitGeneral:      v.GetInt("RATE_LIMIT_GENERAL"),
		RateLimitVerification: v.GetInt("RATE_LIMIT_VERIFICATION"),

		PhoneCodeTTL:  v.GetDuration("PHONE_CODE_TTL"),
		EmailTokenTTL: v.GetDuration("EMAIL_TOKEN_TTL"),
		TwoFactorTTL:  v.GetDuration("TWO_FACTOR_TTL"),
		InvitationTTL: v.GetDuration("INVITATION_TTL"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		NotifyTransport: strings.ToLower(v.GetString("NOTIFY_TRANSPORT")),
		AWSRegion:       v.GetString("AWS_REGION"),
		SESSender:       v.GetString("SES_SENDER"),
		SNSSenderID:     v.GetString("SNS_SENDER_ID"),
		SiteName:        v.GetString("SITE_NAME"),

		ElasticsearchURL:      v.GetString("ELASTICSEARCH_URL"),
		ElasticsearchUsername: v.GetString("ELASTICSEARCH_USERNAME"),
		ElasticsearchPassword: v.GetString("ELASTICSEARCH_PASSWORD"),
		ElasticsearchIndex:    v.GetString("ELASTICSEARCH_INDEX"),

		SweepInterval: v.GetDuration("SWEEP_INTERVAL"),
		LogLevel:      v.GetString("LOG_LEVEL"),

		ServerPort:  v.GetString("SERVER_PORT"),
		MetricsPort: v.GetString("METRICS_PORT"),
		BaseURL:     strings.TrimRight(v.GetString("BASE_URL"), "/"),

		CookieDomain: v.GetString("COOKIE_DOMAIN"),
	}
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CORSAllowedOrigins = splitList(v.GetString("CORS_ALLOWED_ORIGINS"))
	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
