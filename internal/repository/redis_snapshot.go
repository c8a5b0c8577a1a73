package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"DigitFlow/internal/domain/models"
	"DigitFlow/internal/domain/repository"
)

const (
	snapshotStatusKey = "digitflow:status"
	snapshotTradesKey = "digitflow:trades:recent"
	snapshotTradeKeep = 100
)

// RedisSnapshot mirrors the live controller status and the recent trade tail
// into Redis for dashboards. Writers treat it as best-effort.
type RedisSnapshot struct {
	client *redis.Client
	symbol string
}

func NewRedisSnapshot(client *redis.Client, symbol string) *RedisSnapshot {
	return &RedisSnapshot{client: client, symbol: symbol}
}

func (s *RedisSnapshot) PutStatus(ctx context.Context, st *models.Status) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	key := fmt.Sprintf("%s:%s", snapshotStatusKey, s.symbol)
	if err := s.client.Set(ctx, key, b, 0).Err(); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

func (s *RedisSnapshot) PushTrade(ctx context.Context, rec *models.TradeRecord) error {
	b, err := json.Marshal(ToTradeMessage(rec))
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	key := fmt.Sprintf("%s:%s", snapshotTradesKey, s.symbol)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, snapshotTradeKeep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push trade: %w", err)
	}
	return nil
}

var _ repository.SnapshotStore = (*RedisSnapshot)(nil)
