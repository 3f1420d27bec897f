// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/watchlist/internal/model"
)

// ErrDuplicateMovie は同じユーザーが同じ映画を既にリストに追加している場合に返される。
var ErrDuplicateMovie = errors.New("movie already exists in user's list")

// TodoRepository はウォッチリストエントリの永続化インターフェース。
// すべての操作は所有者のユーザーIDで絞り込まれ、他ユーザーのエントリを読み書きしない。
type TodoRepository interface {
	// ListByUser はユーザーのエントリを未完了→完了、各グループ内は作成日時の新しい順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.TodoItem, error)

	// Create はエントリを作成し、DBが割り当てた作成日時等を item に反映する。
	// (user_id, movie_id) が重複する場合は ErrDuplicateMovie を返す。
	Create(ctx context.Context, item *model.TodoItem) error

	// UpdateCompletion は完了フラグを更新し、更新後のエントリを返す。
	// 所有者が一致するエントリが無い場合はnilを返す。
	UpdateCompletion(ctx context.Context, id, userID string, completed bool) (*model.TodoItem, error)

	// DeleteByIDAndUser はエントリを削除し、削除したエントリを返す。
	// 所有者が一致するエントリが無い場合はnilを返す。
	DeleteByIDAndUser(ctx context.Context, id, userID string) (*model.TodoItem, error)

	// CountByUserAndMovie はユーザーと映画の組に対応するエントリ数を返す。
	// 一意性の確認や調査に使う補助操作で、リクエスト処理からは呼ばない。
	CountByUserAndMovie(ctx context.Context, userID, movieID string) (int, error)
}
