package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/otpgate/internal/metrics"
	"github.com/hitoshi/otpgate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 運用
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics → RateLimit
//
// 認証エンドポイントはすべて公開で、セッションの有無は各ハンドラー内で判定する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		// OTP発行を伴うエンドポイントには発行専用レート制限を重ねる
		issueLimit := func(next http.HandlerFunc) http.HandlerFunc {
			if deps.RateLimiter == nil {
				return next
			}
			return deps.RateLimiter.IssueMiddleware()(next).ServeHTTP
		}

		r.Post("/register", issueLimit(authHandler.Register))
		r.Post("/login", issueLimit(authHandler.Login))
		r.Post("/verify-otp", authHandler.VerifyRegister)
		r.Post("/verify-login-otp", authHandler.VerifyLogin)
		r.Get("/check-auth", authHandler.CheckAuth)
		r.Post("/logout", authHandler.Logout)
	})

	// 運用エンドポイントはレート制限の外に置く
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}
