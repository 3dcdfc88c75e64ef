package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobboard/internal/middleware"
)

// HealthChecker は/healthで疎通を確認する依存先。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	Metrics            middleware.HTTPMetrics
	MetricsHandler     http.Handler // nilなら/metricsを公開しない
	HealthChecker      HealthChecker
	SessionFinder      middleware.SessionFinder
	CORSAllowedOrigins []string
	CSRFConfig         middleware.CSRFConfig
	RateLimiter        *middleware.RateLimiter
	HSTS               bool

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	AccountService      AccountServiceInterface
	VerificationService VerificationServiceInterface
	JobService          JobServiceInterface
	ApplicationService  ApplicationServiceInterface
	PipelineService     PipelineServiceInterface
	ReviewService       ReviewServiceInterface
	TemplateService     TemplateServiceInterface
	Inbox               InboxInterface
	MessageService      MessageServiceInterface
	TeamService         TeamServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → (認証ルート) Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）とメール確認リンクはセッション必須のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService, deps.VerificationService, deps.AuthConfig)
	accountHandler := NewAccountHandler(deps.AccountService, deps.AuthConfig)
	verifyHandler := NewVerificationHandler(deps.VerificationService, deps.AuthConfig.BaseURL)
	jobHandler := NewJobHandler(deps.JobService)
	appHandler := NewApplicationHandler(deps.ApplicationService)
	pipeHandler := NewPipelineHandler(deps.PipelineService)
	reviewHandler := NewReviewHandler(deps.ReviewService)
	tmplHandler := NewTemplateHandler(deps.TemplateService)
	notifHandler := NewNotificationHandler(deps.Inbox)
	msgHandler := NewMessageHandler(deps.MessageService)
	teamHandler := NewTeamHandler(deps.TeamService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// メール内のリンクはログインなしで開ける
	r.With(deps.RateLimiter.VerificationMiddleware()).Get("/verify-email/{token}", verifyHandler.VerifyEmail)

	// 公開求人（ログインしていれば非公開求人の閲覧権限も判定する）
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOptionalSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Get("/api/jobs", jobHandler.Search)
		r.Get("/api/jobs/{id}", jobHandler.Get)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/account", func(r chi.Router) {
			r.Get("/", accountHandler.Get)
			r.Put("/", accountHandler.UpdateProfile)
			r.Delete("/", accountHandler.Withdraw)
		})

		// 本人確認（発行系は専用のレート制限を追加）
		r.Route("/api/verification", func(r chi.Router) {
			issue := deps.RateLimiter.VerificationMiddleware()
			r.Get("/", verifyHandler.Status)
			r.With(issue).Post("/phone", verifyHandler.IssuePhoneCode)
			r.With(issue).Post("/phone/resend", verifyHandler.ResendPhoneCode)
			r.Post("/phone/verify", verifyHandler.VerifyPhoneCode)
			r.With(issue).Post("/email", verifyHandler.IssueEmailToken)
			r.With(issue).Post("/2fa", verifyHandler.IssueTwoFactorCode)
			r.Post("/2fa/verify", verifyHandler.VerifyTwoFactorCode)
		})

		// 求人
		r.Post("/api/jobs", jobHandler.Post)
		r.Get("/api/jobs/mine", jobHandler.Mine)
		// GET /api/jobs/{id} は公開グループで登録済み
		r.Put("/api/jobs/{id}", jobHandler.Update)
		r.Post("/api/jobs/{id}/toggle", jobHandler.Toggle)
		r.Post("/api/jobs/{id}/apply", appHandler.Apply)
		r.Post("/api/jobs/{id}/save", jobHandler.Save)
		r.Delete("/api/jobs/{id}/save", jobHandler.Unsave)
		r.Get("/api/jobs/{id}/applications", appHandler.ListForJob)
		r.Get("/api/jobs/{id}/pipeline", pipeHandler.Board)
		r.Get("/api/jobs/{id}/analytics", pipeHandler.Analytics)
		r.Get("/api/saved-jobs", jobHandler.Saved)

		// 応募
		r.Get("/api/applications/mine", appHandler.ListMine)
		r.Route("/api/applications/{id}", func(r chi.Router) {
			r.Get("/", appHandler.Get)
			r.Get("/resume", appHandler.Resume)
			r.Post("/stage", pipeHandler.Move)
			r.Put("/status", appHandler.UpdateStatus)
			r.Get("/history", pipeHandler.History)
			r.Get("/notes", reviewHandler.ListNotes)
			r.Post("/notes", reviewHandler.AddNote)
			r.Delete("/notes/{noteID}", reviewHandler.DeleteNote)
			r.Get("/ratings", reviewHandler.Ratings)
			r.Put("/ratings", reviewHandler.Rate)
			r.Get("/tags", reviewHandler.ApplicationTags)
			r.Post("/tags", reviewHandler.AssignTag)
			r.Delete("/tags/{tagID}", reviewHandler.UnassignTag)
			r.Get("/messages", msgHandler.Thread)
			r.Post("/messages", msgHandler.Send)
			r.Post("/emails", tmplHandler.Send)
		})

		// パイプライン設定
		r.Route("/api/stages", func(r chi.Router) {
			r.Get("/", pipeHandler.ListStages)
			r.Post("/", pipeHandler.CreateStage)
			r.Put("/order", pipeHandler.ReorderStages)
			r.Patch("/{id}", pipeHandler.UpdateStage)
			r.Delete("/{id}", pipeHandler.DeleteStage)
		})

		r.Route("/api/tags", func(r chi.Router) {
			r.Get("/", reviewHandler.ListTags)
			r.Post("/", reviewHandler.CreateTag)
			r.Delete("/{id}", reviewHandler.DeleteTag)
		})

		r.Route("/api/templates", func(r chi.Router) {
			r.Get("/", tmplHandler.List)
			r.Post("/", tmplHandler.Create)
			r.Put("/{id}", tmplHandler.Update)
			r.Delete("/{id}", tmplHandler.Delete)
		})

		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", notifHandler.List)
			r.Get("/unread-count", notifHandler.UnreadCount)
			r.Post("/read-all", notifHandler.MarkAllRead)
			r.Post("/{id}/read", notifHandler.MarkRead)
		})

		// チーム
		r.Post("/api/teams", teamHandler.Create)
		r.Get("/api/teams/mine", teamHandler.Mine)
		r.Route("/api/teams/{id}", func(r chi.Router) {
			r.Get("/members", teamHandler.Members)
			r.Put("/members/{userID}", teamHandler.ChangeRole)
			r.Delete("/members/{userID}", teamHandler.RemoveMember)
			r.Get("/invitations", teamHandler.Invitations)
			r.Post("/invitations", teamHandler.Invite)
			r.Get("/activity", teamHandler.Activity)
		})
		r.Post("/api/invitations/{token}/accept", teamHandler.Accept)
		r.Post("/api/invitations/{token}/decline", teamHandler.Decline)
	})

	return r
}

type healthResponse struct {
	Status string `json:"status"`
}

// healthHandler はDBへの疎通を確認する。checkerがnilなら常にokを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
