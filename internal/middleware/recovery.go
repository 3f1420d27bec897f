package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 統一フォーマットの500レスポンスを返すミドルウェアを生成する。
// レスポンスの書き込みが既に始まっている場合は追記せず、ログのみ残す。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					logger.Error("panic recovered",
						slog.Any("panic", p),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.Bool("response_started", rec.written),
						slog.String("stack", string(debug.Stack())),
					)
					if !rec.written {
						WriteInternalServerError(rec)
					}
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
