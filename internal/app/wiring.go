package app

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/jobboard/internal/account"
	"github.com/hitoshi/jobboard/internal/activity"
	"github.com/hitoshi/jobboard/internal/application"
	"github.com/hitoshi/jobboard/internal/auth"
	"github.com/hitoshi/jobboard/internal/config"
	"github.com/hitoshi/jobboard/internal/handler"
	"github.com/hitoshi/jobboard/internal/job"
	"github.com/hitoshi/jobboard/internal/message"
	"github.com/hitoshi/jobboard/internal/metrics"
	"github.com/hitoshi/jobboard/internal/middleware"
	"github.com/hitoshi/jobboard/internal/notify"
	"github.com/hitoshi/jobboard/internal/permission"
	"github.com/hitoshi/jobboard/internal/pipeline"
	"github.com/hitoshi/jobboard/internal/repository"
	"github.com/hitoshi/jobboard/internal/review"
	"github.com/hitoshi/jobboard/internal/security"
	"github.com/hitoshi/jobboard/internal/team"
	"github.com/hitoshi/jobboard/internal/transport"
	"github.com/hitoshi/jobboard/internal/verification"
)

// Repositories はサービス層が使う永続化の実装一式。
type Repositories struct {
	Accounts      repository.AccountRepository
	Identities    repository.IdentityRepository
	Sessions      repository.SessionRepository
	Verifications repository.VerificationRepository
	Jobs          repository.JobRepository
	SavedJobs     repository.SavedJobRepository
	Applications  repository.ApplicationRepository
	Stages        repository.StageRepository
	Notes         repository.NoteRepository
	Ratings       repository.RatingRepository
	Tags          repository.TagRepository
	Templates     repository.TemplateRepository
	EmailLogs     repository.EmailLogRepository
	Notifications repository.NotificationRepository
	Messages      repository.MessageRepository
	Teams         repository.TeamRepository
	Invitations   repository.InvitationRepository
	Activity      repository.ActivityRepository
}

// PostgresRepositories はPostgreSQL実装のRepositoriesを生成する。
func PostgresRepositories(db *sql.DB) Repositories {
	return Repositories{
		Accounts:      repository.NewPostgresAccountRepo(db),
		Identities:    repository.NewPostgresIdentityRepo(db),
		Sessions:      repository.NewPostgresSessionRepo(db),
		Verifications: repository.NewPostgresVerificationRepo(db),
		Jobs:          repository.NewPostgresJobRepo(db),
		SavedJobs:     repository.NewPostgresSavedJobRepo(db),
		Applications:  repository.NewPostgresApplicationRepo(db),
		Stages:        repository.NewPostgresStageRepo(db),
		Notes:         repository.NewPostgresNoteRepo(db),
		Ratings:       repository.NewPostgresRatingRepo(db),
		Tags:          repository.NewPostgresTagRepo(db),
		Templates:     repository.NewPostgresTemplateRepo(db),
		EmailLogs:     repository.NewPostgresEmailLogRepo(db),
		Notifications: repository.NewPostgresNotificationRepo(db),
		Messages:      repository.NewPostgresMessageRepo(db),
		Teams:         repository.NewPostgresTeamRepo(db),
		Invitations:   repository.NewPostgresInvitationRepo(db),
		Activity:      repository.NewPostgresActivityRepo(db),
	}
}

// Infra はサービス層が使う外部接続。nilのフィールドは無効として扱う。
type Infra struct {
	OAuth     auth.OAuthProvider
	Email     transport.EmailSender
	SMS       transport.SMSSender
	TwoFactor verification.TwoFactorStore // nilなら2段階認証は利用不可
	Index     job.Index                   // nilならデータベース検索のみ
	Metrics   metrics.MetricsCollector
}

// Services はHTTPハンドラーとサブコマンドが使うサービス一式。
type Services struct {
	Auth         *auth.Service
	Account      *account.Service
	Verification *verification.Service
	Jobs         *job.Service
	Applications *application.Service
	Pipeline     *pipeline.Engine
	Review       *review.Service
	Templates    *notify.TemplateService
	Inbox        *notify.Inbox
	Messages     *message.Service
	Teams        *team.Service
}

// NewServices はリポジトリと外部接続からサービス一式を組み立てる。
func NewServices(cfg *config.Config, repos Repositories, infra Infra) *Services {
	collector := infra.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	sanitizer := security.NewSanitizer()
	resolver := permission.NewResolver(repos.Teams)
	recorder := activity.NewRecorder(repos.Teams, repos.Activity)

	dispatcher := notify.NewDispatcher(
		repos.Notifications, repos.EmailLogs, repos.Templates,
		infra.Email, collector,
		notify.Config{BaseURL: cfg.BaseURL, SiteName: cfg.SiteName},
	)

	verifier := verification.NewService(
		repos.Verifications, repos.Accounts, infra.SMS, infra.Email, infra.TwoFactor, collector,
		verification.Config{
			PhoneCodeTTL:  cfg.PhoneCodeTTL,
			EmailTokenTTL: cfg.EmailTokenTTL,
			TwoFactorTTL:  cfg.TwoFactorTTL,
			BaseURL:       cfg.BaseURL,
			SiteName:      cfg.SiteName,
		},
	)

	return &Services{
		Auth: auth.NewService(
			infra.OAuth, repos.Accounts, repos.Identities, repos.Sessions,
			auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
		),
		Account:      account.NewService(repos.Accounts, repos.Sessions, sanitizer),
		Verification: verifier,
		Jobs:         job.NewService(repos.Jobs, repos.SavedJobs, repos.Accounts, infra.Index, resolver, recorder, sanitizer),
		Applications: application.NewService(
			repos.Applications, repos.Jobs, repos.Accounts, verifier,
			resolver, dispatcher, recorder, sanitizer, collector,
		),
		Pipeline: pipeline.NewEngine(
			repos.Stages, repos.Applications, repos.Jobs, repos.Accounts, repos.Ratings,
			resolver, dispatcher, recorder, sanitizer, collector,
		),
		Review: review.NewService(
			repos.Applications, repos.Jobs, repos.Notes, repos.Ratings, repos.Tags,
			resolver, recorder, sanitizer,
		),
		Templates: notify.NewTemplateService(
			repos.Templates, repos.Applications, repos.Jobs, repos.Accounts, repos.Stages,
			resolver, dispatcher, sanitizer, recorder,
		),
		Inbox: notify.NewInbox(repos.Notifications),
		Messages: message.NewService(
			repos.Applications, repos.Jobs, repos.Accounts, repos.Messages,
			resolver, dispatcher, recorder, sanitizer,
		),
		Teams: team.NewService(
			repos.Teams, repos.Invitations, repos.Activity, repos.Accounts,
			resolver, dispatcher, sanitizer, cfg.InvitationTTL,
		),
	}
}

// RateLimiterConfig は設定値からレート制限の設定を作る。
// RateLimitGeneralは1分あたり、RateLimitVerificationは15分あたりの回数。
func RateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = perWindow(cfg.RateLimitGeneral, 60)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitVerification > 0 {
		rl.VerificationRate = perWindow(cfg.RateLimitVerification, 15*60)
		rl.VerificationBurst = cfg.RateLimitVerification
	}
	return rl
}

// NewRouterDeps はサービス一式からルーターの依存関係を組み立てる。
func NewRouterDeps(
	cfg *config.Config,
	svc *Services,
	sessions middleware.SessionFinder,
	limiter *middleware.RateLimiter,
	health handler.HealthChecker,
	collector metrics.MetricsCollector,
	metricsHandler http.Handler,
) *handler.RouterDeps {
	return &handler.RouterDeps{
		Logger:             slog.Default(),
		Metrics:            collector,
		MetricsHandler:     metricsHandler,
		HealthChecker:      health,
		SessionFinder:      sessions,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CSRFConfig:         middleware.CSRFConfig{CookieSecure: cfg.CookieSecure, CookieDomain: cfg.CookieDomain},
		RateLimiter:        limiter,
		HSTS:               cfg.CookieSecure,

		AuthService: svc.Auth,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		AccountService:      svc.Account,
		VerificationService: svc.Verification,
		JobService:          svc.Jobs,
		ApplicationService:  svc.Applications,
		PipelineService:     svc.Pipeline,
		ReviewService:       svc.Review,
		TemplateService:     svc.Templates,
		Inbox:               svc.Inbox,
		MessageService:      svc.Messages,
		TeamService:         svc.Teams,
	}
}

// perWindow はwindowSeconds秒あたりn回を毎秒のレートに変換する。
func perWindow(n int, windowSeconds int) rate.Limit {
	return rate.Every(time.Duration(windowSeconds) * time.Second / time.Duration(n))
}
