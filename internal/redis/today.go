package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/athan/internal/model"
)

const DefaultTodayTTL = 24 * time.Hour

// TodayCache caches prayer time records by date together with their ETag.
// A TodayCache with a nil client, or a nil *TodayCache, caches nothing.
type TodayCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewTodayCache(client *redis.Client, ttl time.Duration) *TodayCache {
	if ttl <= 0 {
		ttl = DefaultTodayTTL
	}
	return &TodayCache{client: client, ttl: ttl}
}

func recordKey(date string) string { return fmt.Sprintf("prayer_times:%s", date) }

func etagKey(date string) string { return fmt.Sprintf("prayer_times:%s:etag", date) }

// ETagOf returns the strong ETag for the JSON form of record.
func ETagOf(record model.PrayerTimeRecord) string {
	body, _ := json.Marshal(record)
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}

func (c *TodayCache) enabled() bool { return c != nil && c.client != nil }

// Get returns the cached record for date and its ETag.
func (c *TodayCache) Get(ctx context.Context, date string) (model.PrayerTimeRecord, string, bool) {
	if !c.enabled() {
		return model.PrayerTimeRecord{}, "", false
	}

	raw, err := c.client.Get(ctx, recordKey(date)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("date", date).Msg("prayer times cache read failed")
		}
		return model.PrayerTimeRecord{}, "", false
	}

	var record model.PrayerTimeRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		log.Warn().Err(err).Str("date", date).Msg("dropping undecodable cached prayer times")
		c.Invalidate(ctx, date)
		return model.PrayerTimeRecord{}, "", false
	}

	etag, err := c.client.Get(ctx, etagKey(date)).Result()
	if err != nil {
		etag = ETagOf(record)
	}
	return record, etag, true
}

// Set caches record under its date and returns its ETag.
func (c *TodayCache) Set(ctx context.Context, record model.PrayerTimeRecord) string {
	etag := ETagOf(record)
	if !c.enabled() {
		return etag
	}

	body, err := json.Marshal(record)
	if err != nil {
		return etag
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, recordKey(record.Date), body, c.ttl)
	pipe.Set(ctx, etagKey(record.Date), etag, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("date", record.Date).Msg("failed to cache prayer times")
		return etag
	}
	log.Debug().Str("date", record.Date).Str("etag", etag).Msg("cached prayer times")
	return etag
}

// Invalidate drops the cached record and ETag for date.
func (c *TodayCache) Invalidate(ctx context.Context, date string) {
	if !c.enabled() {
		return
	}
	if err := c.client.Del(ctx, recordKey(date), etagKey(date)).Err(); err != nil {
		log.Warn().Err(err).Str("date", date).Msg("failed to invalidate prayer times cache")
		return
	}
	log.Debug().Str("date", date).Msg("invalidated prayer times cache")
}
