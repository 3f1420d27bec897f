package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/watchlist/internal/model"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable はキャッシュに到達できない、またはコマンドが失敗したことを示す。
// キーが存在しないこととは区別される。
var ErrUnavailable = errors.New("session cache unavailable")

// moviesField はセッションレコード内の映画ID→エントリIDの逆参照マップのフィールド名。
const moviesField = "movies"

// SessionStore はユーザーIDをキーとしたセッションレコードを読み書きする。
// 各操作はプールから1接続を取得し、1つの論理操作を行い、すべての経路で接続を返却する。
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore はSessionStoreを生成する。
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

// Ping はキャッシュへの疎通を確認する。
func (s *SessionStore) Ping(ctx context.Context) error {
	conn := s.client.Conn()
	defer conn.Close()

	if err := conn.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Exists はユーザーIDのセッションレコードが存在するかを返す。
func (s *SessionStore) Exists(ctx context.Context, userID string) (bool, error) {
	conn := s.client.Conn()
	defer conn.Close()

	n, err := conn.Exists(ctx, userID).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	return n > 0, nil
}

// Get はセッションレコードを取得する。キーが存在しない場合は nil, nil を返す。
// 値がJSONとして解釈できない場合は ErrUnavailable ではないエラーを返す。
func (s *SessionStore) Get(ctx context.Context, userID string) (*model.SessionRecord, error) {
	conn := s.client.Conn()
	defer conn.Close()

	data, err := conn.Get(ctx, userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, unavailable("get", err)
	}

	var rec model.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session record: %w", err)
	}
	return &rec, nil
}

// Merge はセッションレコードのトップレベルフィールド1つを value で置き換える。
// キーが存在しない場合は何もしない。未知のフィールドはそのまま残す。
// 読み込みと書き戻しはアトミックではなく、同一キーへの並行Mergeは後勝ちになる。
func (s *SessionStore) Merge(ctx context.Context, userID, field string, value any) error {
	return s.update(ctx, userID, func(data []byte) ([]byte, error) {
		return mergeField(data, field, value)
	})
}

// SetMovieEntry は逆参照マップの movies[movieID] を entryID に設定する。
// entryID が nil の場合は null を書き込む。
func (s *SessionStore) SetMovieEntry(ctx context.Context, userID, movieID string, entryID *string) error {
	return s.update(ctx, userID, func(data []byte) ([]byte, error) {
		return mergeMovieEntry(data, movieID, entryID)
	})
}

// update は1接続上で読み込み・変換・書き戻しを行う。
// 書き戻しは SET XX KEEPTTL で行い、途中で削除されたセッションを再作成せず、有効期限も維持する。
func (s *SessionStore) update(ctx context.Context, userID string, apply func([]byte) ([]byte, error)) error {
	conn := s.client.Conn()
	defer conn.Close()

	data, err := conn.Get(ctx, userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return unavailable("get", err)
	}

	merged, err := apply(data)
	if err != nil {
		return err
	}

	if err := conn.SetXX(ctx, userID, merged, redis.KeepTTL).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

// mergeField はJSONオブジェクトの field を value で置き換えたJSONを返す。
func mergeField(data []byte, field string, value any) ([]byte, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode field %q: %w", field, err)
	}
	doc[field] = raw

	return json.Marshal(doc)
}

// mergeMovieEntry は movies マップの1キーだけを書き換えたJSONを返す。
func mergeMovieEntry(data []byte, movieID string, entryID *string) ([]byte, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}

	movies := map[string]json.RawMessage{}
	if raw, ok := doc[moviesField]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &movies); err != nil {
			return nil, fmt.Errorf("failed to decode movies field: %w", err)
		}
	}

	raw, err := json.Marshal(entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode movie entry: %w", err)
	}
	movies[movieID] = raw

	encoded, err := json.Marshal(movies)
	if err != nil {
		return nil, fmt.Errorf("failed to encode movies field: %w", err)
	}
	doc[moviesField] = encoded

	return json.Marshal(doc)
}

func decodeDocument(data []byte) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode session record: %w", err)
	}
	if doc == nil {
		return nil, errors.New("failed to decode session record: not a JSON object")
	}
	return doc, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
