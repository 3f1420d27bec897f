package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/watchlist/internal/middleware"
	"github.com/hitoshi/watchlist/internal/model"
)

// maxBodyBytes はリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSONBody はリクエストボディをdstにデコードする。
// 型の合わないフィールドがあった場合は onTypeError にフィールド名を渡してエラーを決める。
// ボディはJSON値1つだけを許し、後続データがあれば不正とする。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, onTypeError func(field string) *model.APIError) *model.APIError {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dst)
	if err == nil {
		if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
			return model.NewInvalidRequestError("body must contain a single JSON object")
		}
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &typeErr):
		if onTypeError != nil {
			if apiErr := onTypeError(typeErr.Field); apiErr != nil {
				return apiErr
			}
		}
		return model.NewInvalidRequestError(fmt.Sprintf("%s has the wrong type", typeErr.Field))
	case errors.As(err, &syntaxErr):
		return model.NewInvalidRequestError(fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset))
	case errors.As(err, &maxBytesErr):
		return model.NewInvalidRequestError(fmt.Sprintf("body must not exceed %d bytes", maxBytesErr.Limit))
	case errors.Is(err, io.EOF):
		return model.NewInvalidRequestError("body is empty")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return model.NewInvalidRequestError("malformed JSON")
	default:
		return model.NewInvalidRequestError("malformed JSON")
	}
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外は詳細をログに残し、汎用の500レスポンスを返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest,
		model.ErrCodeInvalidMovieID,
		model.ErrCodeInvalidItemID,
		model.ErrCodeInvalidCompletionFlag:
		return http.StatusBadRequest
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeItemNotFound, model.ErrCodeRouteNotFound:
		return http.StatusNotFound
	case model.ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case model.ErrCodeDuplicateMovie:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
