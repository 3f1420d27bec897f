package model

// SessionRecord はセッションキャッシュにユーザーIDをキーとして保存されるプロフィールを表す。
// キーの存在そのものがセッション有効性のシグナルとなる。
type SessionRecord struct {
	ID     string             `json:"id"`
	Email  string             `json:"email,omitempty"`
	Name   string             `json:"name,omitempty"`
	Age    *int               `json:"age,omitempty"`
	Gender string             `json:"gender,omitempty"`
	Genres []string           `json:"genres,omitempty"`
	Movies map[string]*string `json:"movies,omitempty"`
}

// MovieEntryID は映画IDに対応するウォッチリストエントリIDを返す。
// 逆参照が無い、またはnullで消去済みの場合は空文字列とfalseを返す。
func (s *SessionRecord) MovieEntryID(movieID string) (string, bool) {
	if s == nil || s.Movies == nil {
		return "", false
	}
	id, ok := s.Movies[movieID]
	if !ok || id == nil {
		return "", false
	}
	return *id, true
}
