// Package database はPostgreSQL・Redis接続とマイグレーション管理を提供する。
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// Open はPostgreSQL接続プールを開く。
// ユーザーとセッションの永続化に使う。sql.Openは接続を試行しないため、
// 実際の接続確認には呼び出し側でdb.Ping()を使用すること。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// OpenRedis はOTPチャレンジ台帳用のRedisクライアントを生成する。
// redisURLは接続URLを指定する（例: "redis://localhost:6379/0"）。
func OpenRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return redis.NewClient(opts), nil
}
