package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/otpgate/internal/model"
)

const challengeKeyPrefix = "otp"

// RedisChallengeRepo はRedisを使用したOTPチャレンジリポジトリ。
// TTLによる自動失効と、WATCH/MULTIトランザクションによる
// アトミックなcheck-and-consumeを提供する。
type RedisChallengeRepo struct {
	client      *redis.Client
	maxAttempts int
}

// NewRedisChallengeRepo はRedisChallengeRepoを生成する。
// maxAttemptsが0以下の場合は試行回数の上限を設けない。
func NewRedisChallengeRepo(client *redis.Client, maxAttempts int) *RedisChallengeRepo {
	return &RedisChallengeRepo{
		client:      client,
		maxAttempts: maxAttempts,
	}
}

// key はチャレンジのRedisキーを組み立てる。
func (r *RedisChallengeRepo) key(purpose model.ChallengePurpose, identifier string) string {
	return challengeKeyPrefix + ":" + string(purpose) + ":" + identifier
}

// Issue はチャレンジを発行する。
// SETによる上書きで (identifier, purpose) ごとの有効チャレンジを常に1件に保つ。
// TTLはExpiresAtまでの残り時間に設定し、期限切れエントリはRedis側で自動削除される。
func (r *RedisChallengeRepo) Issue(ctx context.Context, challenge *model.OtpChallenge) error {
	encoded, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}

	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("challenge already expired at issue time")
	}

	key := r.key(challenge.Purpose, challenge.Identifier)
	if err := r.client.Set(ctx, key, encoded, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}

	return nil
}

// Consume はコードを検証し、成功時にチャレンジを削除して返す。
// WATCHトランザクションにより、読み取りから削除（または試行回数更新）までが
// 他クライアントの書き込みと競合した場合はリトライされる。
// 同一チャレンジに対する並行検証のうち成功するのは最大1件。
func (r *RedisChallengeRepo) Consume(ctx context.Context, purpose model.ChallengePurpose, identifier, code string) (*model.OtpChallenge, error) {
	const maxRetries = 4
	key := r.key(purpose, identifier)

	for i := 0; i < maxRetries; i++ {
		var consumed *model.OtpChallenge

		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return ErrChallengeNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to read challenge: %w", err)
			}

			challenge := &model.OtpChallenge{}
			if err := json.Unmarshal(data, challenge); err != nil {
				return fmt.Errorf("failed to decode challenge: %w", err)
			}

			// 期限判定はTTLに加えてサーバー時刻でも行う。
			// TTL切れ直前のレースでも期限後の検証は必ず失敗する。
			if challenge.Expired(time.Now()) {
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				}); err != nil {
					return err
				}
				return ErrChallengeNotFound
			}

			if challenge.Code != code {
				challenge.Attempts++
				if r.maxAttempts > 0 && challenge.Attempts >= r.maxAttempts {
					if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, key)
						return nil
					}); err != nil {
						return err
					}
					return ErrChallengeTooManyAttempts
				}

				// コード不一致ではチャレンジを残し、残りTTLを維持したまま試行回数のみ更新する。
				updated, err := json.Marshal(challenge)
				if err != nil {
					return fmt.Errorf("failed to encode challenge: %w", err)
				}
				if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, redis.KeepTTL)
					return nil
				}); err != nil {
					return err
				}
				return ErrChallengeCodeMismatch
			}

			// コード一致。削除が消費であり、同じコードの再検証は以後必ず失敗する。
			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			}); err != nil {
				return err
			}

			consumed = challenge
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			// WATCH競合。再試行する。
			continue
		}
		if err != nil {
			return nil, err
		}

		return consumed, nil
	}

	return nil, fmt.Errorf("challenge consume retries exhausted")
}

// Delete は指定キーのチャレンジを削除する。
func (r *RedisChallengeRepo) Delete(ctx context.Context, purpose model.ChallengePurpose, identifier string) error {
	if err := r.client.Del(ctx, r.key(purpose, identifier)).Err(); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ChallengeRepository = (*RedisChallengeRepo)(nil)
