package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/watchlist/internal/model"
	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = pq.ErrorCode("23505")

const todoColumns = `id, user_id, movie_id, is_completed, created_at, modified_at`

// PostgresTodoRepo はPostgreSQLを使用したウォッチリストリポジトリ。
type PostgresTodoRepo struct {
	db *sql.DB
}

// コンパイル時にインターフェースの実装を検証する。
var _ TodoRepository = (*PostgresTodoRepo)(nil)

// NewPostgresTodoRepo はPostgresTodoRepoを生成する。
func NewPostgresTodoRepo(db *sql.DB) *PostgresTodoRepo {
	return &PostgresTodoRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner) (*model.TodoItem, error) {
	item := &model.TodoItem{}
	err := row.Scan(&item.ID, &item.UserID, &item.MovieID, &item.IsCompleted, &item.CreatedAt, &item.ModifiedAt)
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListByUser はユーザーのエントリ一覧を返す。
func (r *PostgresTodoRepo) ListByUser(ctx context.Context, userID string) ([]*model.TodoItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+todoColumns+`
		 FROM todo WHERE user_id = $1
		 ORDER BY is_completed ASC, created_at DESC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ウォッチリストの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	items := []*model.TodoItem{}
	for rows.Next() {
		item, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("ウォッチリスト行の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ウォッチリストの走査に失敗しました: %w", err)
	}
	return items, nil
}

// Create はエントリを作成する。一意制約違反は ErrDuplicateMovie に変換する。
func (r *PostgresTodoRepo) Create(ctx context.Context, item *model.TodoItem) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO todo (id, user_id, movie_id, is_completed)
		 VALUES ($1, $2, $3, $4)
		 RETURNING is_completed, created_at, modified_at`,
		item.ID, item.UserID, item.MovieID, item.IsCompleted,
	).Scan(&item.IsCompleted, &item.CreatedAt, &item.ModifiedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateMovie
		}
		return fmt.Errorf("ウォッチリストへの追加に失敗しました: %w", err)
	}
	return nil
}

// UpdateCompletion は検索と更新を1文で行い、所有者以外の行には触れない。
func (r *PostgresTodoRepo) UpdateCompletion(ctx context.Context, id, userID string, completed bool) (*model.TodoItem, error) {
	item, err := scanTodo(r.db.QueryRowContext(ctx,
		`UPDATE todo SET is_completed = $3, modified_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+todoColumns,
		id, userID, completed,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("エントリの更新に失敗しました: %w", err)
	}
	return item, nil
}

// DeleteByIDAndUser は検索と削除を1文で行い、削除した行を返す。
func (r *PostgresTodoRepo) DeleteByIDAndUser(ctx context.Context, id, userID string) (*model.TodoItem, error) {
	item, err := scanTodo(r.db.QueryRowContext(ctx,
		`DELETE FROM todo WHERE id = $1 AND user_id = $2
		 RETURNING `+todoColumns,
		id, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("エントリの削除に失敗しました: %w", err)
	}
	return item, nil
}

// CountByUserAndMovie はユーザーと映画の組に対応するエントリ数を返す。
func (r *PostgresTodoRepo) CountByUserAndMovie(ctx context.Context, userID, movieID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM todo WHERE user_id = $1 AND movie_id = $2`,
		userID, movieID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("エントリ数の取得に失敗しました: %w", err)
	}
	return count, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
