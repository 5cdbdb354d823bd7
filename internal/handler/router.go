package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmswl6310/volunteer-work/internal/metrics"
	"github.com/dmswl6310/volunteer-work/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Verifier          middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.Recorder
	MetricsHandler    http.Handler // nilの場合 /metrics は公開しない
	HealthChecker     HealthChecker

	Accounts     AccountServiceInterface
	Posts        PostServiceInterface
	Scraps       ScrapServiceInterface
	Applications ApplicationEngineInterface
	Reviews      ReviewServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → Metrics
//	認証が必要なルート: Identity → RateLimit(General)
//
// /health と /metrics は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewMetricsMiddleware(rec))

	accountHandler := NewAccountHandler(deps.Accounts)
	postHandler := NewPostHandler(deps.Accounts, deps.Posts, deps.Scraps)
	appHandler := NewApplicationHandler(deps.Accounts, deps.Applications)
	reviewHandler := NewReviewHandler(deps.Accounts, deps.Reviews)

	// --- 認証不要のルート ---
	r.Get("/health", Health(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.Verifier))
		r.Use(limiter.GeneralMiddleware())

		r.Route("/api/accounts", func(r chi.Router) {
			r.Post("/", accountHandler.Register)
			r.Post("/me", accountHandler.EnsureMe)
			r.Get("/me", accountHandler.GetMe)
			r.Patch("/me", accountHandler.UpdateMe)
		})
		r.Post("/api/admin/accounts/{id}/approve", accountHandler.Approve)

		r.Route("/api/posts", func(r chi.Router) {
			r.Post("/", postHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", postHandler.Get)
				r.Patch("/", postHandler.Update)
				r.Post("/scrap", postHandler.ToggleScrap)

				// 参加申請には専用のレート制限を追加する
				r.With(limiter.ApplyMiddleware()).Post("/applications", appHandler.Submit)

				r.Get("/review-eligibility", reviewHandler.Eligibility)
				r.Get("/reviews", reviewHandler.List)
				r.Post("/reviews", reviewHandler.Create)
			})
		})

		r.Route("/api/applications/{id}", func(r chi.Router) {
			r.Put("/status", appHandler.SetStatus)
			r.Delete("/", appHandler.Cancel)
		})
	})

	return r
}
