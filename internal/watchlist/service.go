// Package watchlist は所有者スコープのウォッチリスト操作を提供する。
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/watchlist/internal/model"
	"github.com/hitoshi/watchlist/internal/repository"
)

// DefaultSyncTimeout はキャッシュ逆参照の非同期書き込みのデフォルトタイムアウト。
const DefaultSyncTimeout = 5 * time.Second

// BackReferenceWriter はセッションキャッシュの 映画ID→エントリID 逆参照を書き換える。
type BackReferenceWriter interface {
	SetMovieEntry(ctx context.Context, userID, movieID string, entryID *string) error
}

// SyncFailureCounter は逆参照書き込みの失敗を記録する。
type SyncFailureCounter interface {
	IncCacheSyncFailure()
}

// AddInput はエントリ追加の入力。
type AddInput struct {
	MovieID string `json:"movie_id" validate:"required,uuid"`
}

// UpdateInput は完了フラグ更新の入力。nil はフラグ未指定を表す。
type UpdateInput struct {
	IsCompleted *bool `json:"is_completed" validate:"required"`
}

// ServiceConfig はServiceの設定。
type ServiceConfig struct {
	SyncTimeout time.Duration      // 逆参照書き込みのタイムアウト。0以下ならDefaultSyncTimeout
	Logger      *slog.Logger       // nilならslog.Default()
	Failures    SyncFailureCounter // nil可
}

// Service はウォッチリストのサービス層。
// すべての操作は認可済みのユーザーIDを必須の絞り込み条件として受け取る。
// リレーショナルストアが正であり、キャッシュの逆参照はベストエフォートで更新する。
type Service struct {
	repo        repository.TodoRepository
	refs        BackReferenceWriter
	syncTimeout time.Duration
	logger      *slog.Logger
	failures    SyncFailureCounter

	wg sync.WaitGroup
}

// NewService はServiceを生成する。refs が nil の場合は逆参照を更新しない。
func NewService(repo repository.TodoRepository, refs BackReferenceWriter, cfg ServiceConfig) *Service {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		refs:        refs,
		syncTimeout: cfg.SyncTimeout,
		logger:      cfg.Logger,
		failures:    cfg.Failures,
	}
}

// List はユーザーのエントリを未完了優先・新しい順で返す。該当なしの場合は空スライスを返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.TodoItem, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ウォッチリストの取得に失敗しました: %w", err)
	}
	if items == nil {
		items = []*model.TodoItem{}
	}
	return items, nil
}

// Add は映画をユーザーのリストに追加する。
// 同じ映画が既にある場合は DUPLICATE_MOVIE エラーを返す。
func (s *Service) Add(ctx context.Context, userID string, in AddInput) (*model.TodoItem, error) {
	if err := validate.StructCtx(ctx, in); err != nil {
		if fe, ok := firstFieldError(err); ok {
			return nil, model.NewInvalidMovieIDError(fieldMessage(fe.Field(), fe.Tag()))
		}
		return nil, fmt.Errorf("入力の検証に失敗しました: %w", err)
	}

	item := &model.TodoItem{
		ID:      uuid.New().String(),
		UserID:  userID,
		MovieID: in.MovieID,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicateMovie) {
			return nil, model.NewDuplicateMovieError()
		}
		return nil, fmt.Errorf("ウォッチリストへの追加に失敗しました: %w", err)
	}

	entryID := item.ID
	s.syncBackReference(userID, item.MovieID, &entryID)

	return item, nil
}

// UpdateCompletion は所有者のエントリの完了フラグを更新し、更新後のエントリを返す。
// エントリが存在しない場合と他ユーザーの所有である場合は区別せず ITEM_NOT_FOUND を返す。
func (s *Service) UpdateCompletion(ctx context.Context, userID, itemID string, in UpdateInput) (*model.TodoItem, error) {
	if err := ValidateItemID(ctx, itemID); err != nil {
		return nil, err
	}
	if err := validate.StructCtx(ctx, in); err != nil {
		if _, ok := firstFieldError(err); ok {
			return nil, model.NewInvalidCompletionFlagError()
		}
		return nil, fmt.Errorf("入力の検証に失敗しました: %w", err)
	}

	item, err := s.repo.UpdateCompletion(ctx, itemID, userID, *in.IsCompleted)
	if err != nil {
		return nil, fmt.Errorf("エントリの更新に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewItemNotFoundError()
	}
	return item, nil
}

// Delete は所有者のエントリを削除し、キャッシュの逆参照を非同期でnullにする。
// 削除済み・存在しない・他ユーザー所有のいずれも ITEM_NOT_FOUND を返す。
func (s *Service) Delete(ctx context.Context, userID, itemID string) error {
	if err := ValidateItemID(ctx, itemID); err != nil {
		return err
	}

	item, err := s.repo.DeleteByIDAndUser(ctx, itemID, userID)
	if err != nil {
		return fmt.Errorf("エントリの削除に失敗しました: %w", err)
	}
	if item == nil {
		return model.NewItemNotFoundError()
	}

	s.syncBackReference(userID, item.MovieID, nil)
	return nil
}

// Wait は実行中の逆参照書き込みがすべて終わるまで待つ。
func (s *Service) Wait() {
	s.wg.Wait()
}

// ValidateItemID はパスで指定されたエントリIDがUUIDであることを検証する。
func ValidateItemID(ctx context.Context, itemID string) error {
	if err := validate.VarCtx(ctx, itemID, "required,uuid"); err != nil {
		return model.NewInvalidItemIDError()
	}
	return nil
}

// syncBackReference はリクエストのコンテキストから切り離して逆参照を書き込む。
// 失敗はログとカウンタに記録し、呼び出し元には返さない。
func (s *Service) syncBackReference(userID, movieID string, entryID *string) {
	if s.refs == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.syncTimeout)
		defer cancel()

		if err := s.refs.SetMovieEntry(ctx, userID, movieID, entryID); err != nil {
			s.logger.Warn("failed to sync movie back-reference",
				slog.String("user_id", userID),
				slog.String("movie_id", movieID),
				slog.Bool("clear", entryID == nil),
				slog.String("error", err.Error()),
			)
			if s.failures != nil {
				s.failures.IncCacheSyncFailure()
			}
		}
	}()
}
