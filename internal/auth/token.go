// Package auth はベアラートークンの署名・検証を提供する。
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims はトークンに埋め込まれるクレーム。
// ユーザーサービスが発行するトークンは Data にユーザーIDを格納する。
type Claims struct {
	Data string `json:"data,omitempty"`
	jwt.RegisteredClaims
}

// Result はトークン検証の結果を表す。
// Valid が false の場合は Reason に人間が読める理由が入り、Subject と Claims は空になる。
type Result struct {
	Valid   bool
	Subject string
	Claims  *Claims
	Reason  string
}

// 検証失敗理由
const (
	ReasonEmpty          = "token is empty"
	ReasonMalformed      = "token is malformed"
	ReasonBadSignature   = "signature is invalid"
	ReasonExpired        = "token is expired"
	ReasonNotValidYet    = "token is not valid yet"
	ReasonIssuedInFuture = "token used before issued"
	ReasonMissingClaim   = "required claim is missing"
	ReasonNoSubject      = "token has no subject"
	ReasonInvalidSubject = "subject is not a valid identifier"
	ReasonInvalid        = "token is invalid"
)

// TokenService はHS256で署名されたトークンの発行と検証を行う。
// 外部I/Oは行わない。
type TokenService struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// Option はTokenServiceの設定を変更する。
type Option func(*TokenService)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) {
		s.now = now
	}
}

// WithLeeway は exp/nbf/iat の検証に許容する時計のずれを設定する。デフォルトは0。
func WithLeeway(d time.Duration) Option {
	return func(s *TokenService) {
		s.leeway = d
	}
}

// NewTokenService はTokenServiceを生成する。secretが空の場合はエラーを返す。
func NewTokenService(secret []byte, opts ...Option) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret must be provided")
	}
	s := &TokenService{
		secret: secret,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Verify はトークンの署名と有効期限を検証し、サブジェクトを取り出す。
// 失敗はすべて Result で表現し、エラーやpanicにはしない。
func (s *TokenService) Verify(token string) Result {
	if token == "" {
		return invalid(ReasonEmpty)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return invalid(reasonFor(err))
	}
	if !parsed.Valid {
		return invalid(ReasonInvalid)
	}

	subject := claims.Data
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" {
		return invalid(ReasonNoSubject)
	}
	if err := uuid.Validate(subject); err != nil {
		return invalid(ReasonInvalidSubject)
	}

	return Result{
		Valid:   true,
		Subject: subject,
		Claims:  claims,
	}
}

// Sign はsubjectを埋め込んだトークンを発行する。ttl経過後に失効する。
// ユーザーサービスと同じく Data クレームにsubjectを格納する。
func (s *TokenService) Sign(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject must be provided")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Data: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(s.secret)
}

func invalid(reason string) Result {
	return Result{Reason: reason}
}

// reasonFor はjwtのエラーを検証失敗理由に変換する。
func reasonFor(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ReasonNotValidYet
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ReasonIssuedInFuture
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return ReasonMissingClaim
	default:
		return ReasonInvalid
	}
}
