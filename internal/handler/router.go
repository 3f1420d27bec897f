package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/watchlist/internal/middleware"
	"github.com/hitoshi/watchlist/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 認可
	Verifier middleware.TokenVerifier
	Sessions middleware.SessionChecker

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter // nilならレート制限なし
	Logger            *slog.Logger            // nilならslog.Default()

	// 観測
	HTTPObserver   middleware.HTTPObserver
	AuthObserver   middleware.AuthObserver
	MetricsHandler http.Handler // nilなら/metricsを公開しない

	// ウォッチリスト
	Watchlist WatchlistService
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Metrics → (/api) Auth → RateLimit
//
// /health-check と /metrics は認可の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.HTTPObserver != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPObserver))
	}

	// 未定義のパスとメソッドも統一エラーフォーマットで返す。/api 配下にも引き継がれる。
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewRouteNotFoundError())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, model.NewMethodNotAllowedError())
	})

	// --- 認可不要のルート ---
	r.Get("/health-check", HealthCheck)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認可が必要なルート ---
	authOpts := []middleware.AuthOption{middleware.WithAuthLogger(logger)}
	if deps.AuthObserver != nil {
		authOpts = append(authOpts, middleware.WithAuthObserver(deps.AuthObserver))
	}
	todoHandler := NewTodoHandler(deps.Watchlist)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Verifier, deps.Sessions, authOpts...))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Get("/list", todoHandler.List)
		r.Post("/add", todoHandler.Add)
		r.Put("/update/{id}", todoHandler.Update)
		r.Delete("/delete/{id}", todoHandler.Delete)
		// IDが空のパスは INVALID_ITEM_ID として扱う
		r.Put("/update/", todoHandler.Update)
		r.Delete("/delete/", todoHandler.Delete)
	})

	return r
}
