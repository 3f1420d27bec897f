// Package cache はセッションキャッシュ（Redis）へのアクセスを提供する。
package cache

import (
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientConfig はRedisクライアントの接続設定。
type ClientConfig struct {
	Addr     string        // host:port 形式
	Password string        // 空の場合は認証なし
	DB       int           // 論理DB番号
	Timeout  time.Duration // ダイヤル・読み込み・書き込みそれぞれのタイムアウト
}

// ClientOption はredis.Optionsを追加で変更する。
type ClientOption func(*redis.Options)

// NewRedisClient はClientConfigからプール付きのRedisクライアントを生成する。
// Addr が host:port 形式でない場合はエラーを返す。接続自体は最初のコマンド実行時に行われる。
func NewRedisClient(cfg ClientConfig, options ...ClientOption) (*redis.Client, error) {
	host, port, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid redis address %q: %w", cfg.Addr, err)
	}
	if host == "" || port == "" {
		return nil, fmt.Errorf("invalid redis address %q: host and port are required", cfg.Addr)
	}

	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.Timeout > 0 {
		opts.DialTimeout = cfg.Timeout
		opts.ReadTimeout = cfg.Timeout
		opts.WriteTimeout = cfg.Timeout
	}
	for _, opt := range options {
		opt(opts)
	}

	return redis.NewClient(opts), nil
}
