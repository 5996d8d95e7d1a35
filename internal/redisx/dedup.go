package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyDedup - dedup:{scope}:{id}, id - идентификатор события у провайдера
const KeyDedup = "dedup:%s:%s"

const DefaultDedupTTL = 48 * time.Hour

// Deduper запоминает обработанные события на ttl
type Deduper struct {
	rdb   redis.Cmdable
	scope string
	ttl   time.Duration
}

func NewDeduper(rdb redis.Cmdable, scope string, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Deduper{rdb: rdb, scope: scope, ttl: ttl}
}

func (d *Deduper) key(id string) string {
	return fmt.Sprintf(KeyDedup, d.scope, id)
}

// Seen сообщает, было ли событие уже обработано
func (d *Deduper) Seen(ctx context.Context, id string) (bool, error) {
	n, err := d.rdb.Exists(ctx, d.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup exists: %w", err)
	}
	return n > 0, nil
}

// Mark отмечает событие обработанным
func (d *Deduper) Mark(ctx context.Context, id string) error {
	if err := d.rdb.Set(ctx, d.key(id), "1", d.ttl).Err(); err != nil {
		return fmt.Errorf("dedup set: %w", err)
	}
	return nil
}
