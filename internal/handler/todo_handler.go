package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/watchlist/internal/middleware"
	"github.com/hitoshi/watchlist/internal/model"
	"github.com/hitoshi/watchlist/internal/watchlist"
)

// WatchlistService はウォッチリストハンドラーが必要とするサービスインターフェース。
type WatchlistService interface {
	List(ctx context.Context, userID string) ([]*model.TodoItem, error)
	Add(ctx context.Context, userID string, in watchlist.AddInput) (*model.TodoItem, error)
	UpdateCompletion(ctx context.Context, userID, itemID string, in watchlist.UpdateInput) (*model.TodoItem, error)
	Delete(ctx context.Context, userID, itemID string) error
}

// TodoHandler はウォッチリストのHTTPハンドラー。
type TodoHandler struct {
	service WatchlistService
}

// NewTodoHandler はTodoHandlerを生成する。
func NewTodoHandler(service WatchlistService) *TodoHandler {
	return &TodoHandler{service: service}
}

// todoResponse はエントリのAPIレスポンス。所有者IDは含めない。
type todoResponse struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	ModifiedAt  time.Time `json:"modified_at"`
	MovieID     string    `json:"movie_id"`
	IsCompleted bool      `json:"is_completed"`
}

type listResponse struct {
	Message *string        `json:"message"`
	Results []todoResponse `json:"results"`
}

type itemResponse struct {
	Message string       `json:"message"`
	Data    todoResponse `json:"data"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// List はユーザーのウォッチリストを返す。
// GET /api/list
func (h *TodoHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	items, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	results := make([]todoResponse, 0, len(items))
	for _, item := range items {
		results = append(results, toTodoResponse(item))
	}
	writeJSON(w, http.StatusOK, listResponse{Results: results})
}

// Add は映画をウォッチリストに追加する。
// POST /api/add
func (h *TodoHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var in watchlist.AddInput
	if apiErr := decodeJSONBody(w, r, &in, func(field string) *model.APIError {
		if field == "movie_id" {
			return model.NewInvalidMovieIDError("movie_id must be a string")
		}
		return nil
	}); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	item, err := h.service.Add(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, itemResponse{
		Message: "Item added successfully",
		Data:    toTodoResponse(item),
	})
}

// Update はエントリの完了フラグを更新する。
// PUT /api/update/{id}
func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	itemID := chi.URLParam(r, "id")
	if err := watchlist.ValidateItemID(r.Context(), itemID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	var in watchlist.UpdateInput
	if apiErr := decodeJSONBody(w, r, &in, func(field string) *model.APIError {
		if field == "is_completed" {
			return model.NewInvalidCompletionFlagError()
		}
		return nil
	}); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	item, err := h.service.UpdateCompletion(r.Context(), userID, itemID, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, itemResponse{
		Message: "Updated successfully",
		Data:    toTodoResponse(item),
	})
}

// Delete はエントリを削除する。
// DELETE /api/delete/{id}
func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Deleted successfully"})
}

// requireUserID は認可ミドルウェアが束縛したユーザーIDを取り出す。
// 束縛が無い場合は403を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteForbidden(w)
		return "", false
	}
	return userID, true
}

func toTodoResponse(item *model.TodoItem) todoResponse {
	return todoResponse{
		ID:          item.ID,
		CreatedAt:   item.CreatedAt,
		ModifiedAt:  item.ModifiedAt,
		MovieID:     item.MovieID,
		IsCompleted: item.IsCompleted,
	}
}
