package model

import "time"

// TodoItem はウォッチリストの1エントリを表す。
// (UserID, MovieID) の組はストレージ層で一意に保たれる。
type TodoItem struct {
	ID          string
	UserID      string
	MovieID     string
	IsCompleted bool
	CreatedAt   time.Time
	ModifiedAt  time.Time
}
