package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConsumeResult は二要素認証コードの照合結果。
type ConsumeResult int

const (
	// ConsumeAbsent は有効なコードが存在しない（未発行・期限切れ・使用済み）ことを表す。
	ConsumeAbsent ConsumeResult = iota
	// ConsumeMismatch はコードが一致しないことを表す。保存済みのコードは残る。
	ConsumeMismatch
	// ConsumeOK はコードが一致し、削除されたことを表す。
	ConsumeOK
)

// TwoFactorStore は二要素認証コードの一時保存先。
type TwoFactorStore interface {
	// Save はアカウントのコードを上書き保存する。直前のコードは無効になる。
	Save(ctx context.Context, accountID, code string, ttl time.Duration) error
	// Consume はコードを照合し、一致した場合のみ原子的に削除する。
	Consume(ctx context.Context, accountID, code string) (ConsumeResult, error)
}

// consumeScript は照合と削除を1往復で行う。
// 戻り値: -1 キーなし, 0 不一致, 1 一致して削除
var consumeScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
	return -1
end
if v == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0
`)

// RedisTwoFactorStore はRedisを使ったTwoFactorStoreの実装。
type RedisTwoFactorStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisTwoFactorStore はRedisTwoFactorStoreを生成する。
func NewRedisTwoFactorStore(client redis.UniversalClient) *RedisTwoFactorStore {
	return &RedisTwoFactorStore{client: client, prefix: "jobboard:2fa:"}
}

func (s *RedisTwoFactorStore) key(accountID string) string {
	return s.prefix + accountID
}

// Save はSET EXでコードを上書き保存する。
func (s *RedisTwoFactorStore) Save(ctx context.Context, accountID, code string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(accountID), code, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save two-factor code: %w", err)
	}
	return nil
}

// Consume はLuaスクリプトで照合と削除を行う。
// 同じコードで同時に呼ばれても一致するのは1回だけ。
func (s *RedisTwoFactorStore) Consume(ctx context.Context, accountID, code string) (ConsumeResult, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{s.key(accountID)}, code).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ConsumeAbsent, nil
		}
		return ConsumeAbsent, fmt.Errorf("failed to consume two-factor code: %w", err)
	}
	switch n {
	case 1:
		return ConsumeOK, nil
	case 0:
		return ConsumeMismatch, nil
	default:
		return ConsumeAbsent, nil
	}
}

var _ TwoFactorStore = (*RedisTwoFactorStore)(nil)
