package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/watchlist/internal/auth"
)

// 認可結果。ログとメトリクスのラベルに使う。
const (
	AuthGranted            = "granted"
	AuthMissingCredentials = "missing_credentials"
	AuthInvalidToken       = "invalid_token"
	AuthSessionAbsent      = "session_absent"
	AuthCacheError         = "cache_error"
)

// TokenVerifier はベアラートークンを検証する。失敗はエラーではなく Result で返す。
type TokenVerifier interface {
	Verify(token string) auth.Result
}

// SessionChecker はセッションキャッシュにユーザーのセッションが存在するかを確認する。
// キーが存在しない場合は false, nil を返し、キャッシュ障害の場合のみエラーを返す。
type SessionChecker interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// AuthObserver は認可の結果と所要時間を受け取る。
type AuthObserver interface {
	ObserveAuth(outcome string, elapsed time.Duration)
}

// AuthOption は認可ミドルウェアの設定を変更する。
type AuthOption func(*authMiddleware)

// WithAuthObserver は認可結果の通知先を設定する。
func WithAuthObserver(o AuthObserver) AuthOption {
	return func(m *authMiddleware) {
		m.observer = o
	}
}

// WithAuthLogger は拒否理由を記録するロガーを設定する。デフォルトは slog.Default()。
func WithAuthLogger(l *slog.Logger) AuthOption {
	return func(m *authMiddleware) {
		m.logger = l
	}
}

type authMiddleware struct {
	verifier TokenVerifier
	sessions SessionChecker
	observer AuthObserver
	logger   *slog.Logger
}

// NewAuthMiddleware はAuthorizationヘッダーのベアラートークンを検証し、
// セッションキャッシュでセッションの有効性を確認するミドルウェアを返す。
//
// 状態遷移:
//
//	Extract → Verify → Confirm liveness → Bind → next
//
// 資格情報なし・トークン不正・セッション不在はすべて同一の403ボディで拒否し、
// 理由はログにのみ残す。キャッシュ障害は500で拒否する。リトライは行わない。
func NewAuthMiddleware(verifier TokenVerifier, sessions SessionChecker, opts ...AuthOption) func(next http.Handler) http.Handler {
	m := &authMiddleware{
		verifier: verifier,
		sessions: sessions,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// 1. Extract
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				m.reject(w, r, start, AuthMissingCredentials, "authorization header is missing or not a bearer token")
				return
			}

			// 2. Verify
			res := m.verifier.Verify(token)
			if !res.Valid {
				m.reject(w, r, start, AuthInvalidToken, res.Reason)
				return
			}

			// 3. Confirm liveness
			// リクエストが中断されてもキャッシュ呼び出しは完了させる
			exists, err := m.sessions.Exists(context.WithoutCancel(r.Context()), res.Subject)
			if err != nil {
				m.logger.Error("session cache lookup failed",
					slog.String("user_id", res.Subject),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				m.observe(AuthCacheError, start)
				WriteInternalServerError(w)
				return
			}
			if !exists {
				m.reject(w, r, start, AuthSessionAbsent, "no active session for subject "+res.Subject)
				return
			}

			// 4. Bind and continue
			m.observe(AuthGranted, start)
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), res.Subject)))
		})
	}
}

func (m *authMiddleware) reject(w http.ResponseWriter, r *http.Request, start time.Time, outcome, detail string) {
	m.logger.Warn("request rejected",
		slog.String("reason", outcome),
		slog.String("detail", detail),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	m.observe(outcome, start)
	WriteForbidden(w)
}

func (m *authMiddleware) observe(outcome string, start time.Time) {
	if m.observer != nil {
		m.observer.ObserveAuth(outcome, time.Since(start))
	}
}

// bearerToken は "Bearer <token>" 形式のヘッダー値からトークンを取り出す。
// スキーム名の大文字小文字は区別しない。
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
