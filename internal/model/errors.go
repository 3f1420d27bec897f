// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// クライアントに返すエラーコードとメッセージ、原因カテゴリを含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, watchlist, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeInvalidMovieID        = "INVALID_MOVIE_ID"
	ErrCodeInvalidItemID         = "INVALID_ITEM_ID"
	ErrCodeInvalidCompletionFlag = "INVALID_COMPLETION_FLAG"
	ErrCodeDuplicateMovie        = "DUPLICATE_MOVIE"
	ErrCodeItemNotFound          = "ITEM_NOT_FOUND"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodeRouteNotFound         = "NOT_FOUND"
	ErrCodeMethodNotAllowed      = "METHOD_NOT_ALLOWED"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// NewForbiddenError は認可失敗エラーを生成する。
// 拒否理由（トークン不正・期限切れ・セッション不在）はレスポンスに含めない。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Forbidden",
		Category: "auth",
	}
}

// NewInvalidRequestError はリクエストボディが解析できない場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request body: %s", reason),
		Category: "validation",
	}
}

// NewInvalidMovieIDError は movie_id が欠落または不正な場合のエラーを生成する。
// message にはフィールド名を含めた文言をそのまま渡す。
func NewInvalidMovieIDError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMovieID,
		Message:  message,
		Category: "validation",
	}
}

// NewInvalidItemIDError はパスのエントリIDが不正な場合のエラーを生成する。
func NewInvalidItemIDError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidItemID,
		Message:  "Invalid item_id",
		Category: "validation",
	}
}

// NewInvalidCompletionFlagError は is_completed が欠落またはbooleanでない場合のエラーを生成する。
func NewInvalidCompletionFlagError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCompletionFlag,
		Message:  "is_completed: Invalid boolean value",
		Category: "validation",
	}
}

// NewDuplicateMovieError は同じ映画を再度追加しようとした場合のエラーを生成する。
func NewDuplicateMovieError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateMovie,
		Message:  "Movie is already in the list",
		Category: "watchlist",
	}
}

// NewItemNotFoundError はエントリが存在しない、または他ユーザーの所有である場合のエラーを生成する。
// 両者は区別しない。
func NewItemNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  "Item does not exists",
		Category: "watchlist",
	}
}

// NewRouteNotFoundError は存在しないパスへのリクエストに対するエラーを生成する。
func NewRouteNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeRouteNotFound,
		Message:  "Not found",
		Category: "system",
	}
}

// NewMethodNotAllowedError はパスが対応しないメソッドへのリクエストに対するエラーを生成する。
func NewMethodNotAllowedError() *APIError {
	return &APIError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  "Method not allowed",
		Category: "system",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests",
		Category: "system",
	}
}

// NewInternalError は汎用の内部エラーを生成する。詳細はサーバーログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong",
		Category: "system",
	}
}
