// Package cache keeps resolved calendar grids in Redis, or in memory while
// Redis is unreachable. Entries are keyed by room type, range and the day
// that was today at resolution time, and dropped per room type whenever an
// event touches that type.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"innkeeper/internal/availability"
	"innkeeper/internal/calendar"
	"innkeeper/internal/events"
	"innkeeper/internal/metrics"
)

const DefaultTTL = 5 * time.Minute

// GridCache satisfies service.GridCache.
type GridCache struct {
	backend Backend
	ttl     time.Duration
	logger  *zerolog.Logger
}

func NewGridCache(backend Backend, ttl time.Duration, logger *zerolog.Logger) *GridCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &GridCache{backend: backend, ttl: ttl, logger: logger}
}

func gridKey(roomTypeID string, from, to, today calendar.DateKey) string {
	return fmt.Sprintf("grid:%s:%s:%s:%s", roomTypeID, from, to, today)
}

func (c *GridCache) GetGrid(ctx context.Context, roomTypeID string, from, to, today calendar.DateKey) (*availability.Grid, bool) {
	data, err := c.backend.Get(ctx, gridKey(roomTypeID, from, to, today))
	if err != nil {
		metrics.IncCache("miss")
		return nil, false
	}
	var g availability.Grid
	if err := json.Unmarshal(data, &g); err != nil {
		c.logger.Warn().Err(err).Str("room_type_id", roomTypeID).Msg("Dropping unreadable cached grid")
		metrics.IncCache("miss")
		return nil, false
	}
	metrics.IncCache("hit")
	return &g, true
}

func (c *GridCache) PutGrid(ctx context.Context, g *availability.Grid) {
	data, err := json.Marshal(g)
	if err != nil {
		return
	}
	if err := c.backend.Set(ctx, g.RoomTypeID, gridKey(g.RoomTypeID, g.From, g.To, g.Today), data, c.ttl); err != nil {
		c.logger.Warn().Err(err).Str("room_type_id", g.RoomTypeID).Msg("Failed to cache grid")
	}
}

// Invalidate drops every cached grid of the room type.
func (c *GridCache) Invalidate(ctx context.Context, roomTypeID string) error {
	return c.backend.InvalidateTag(ctx, roomTypeID)
}

// HandleEvent is an events.EventHandler dropping grids of the event's room types.
func (c *GridCache) HandleEvent(ev events.Event) error {
	scope, err := events.DecodeScope(ev)
	if err != nil {
		return fmt.Errorf("decode %s scope: %w", ev.Type, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, id := range scope.RoomTypeIDs {
		if err := c.Invalidate(ctx, id); err != nil {
			return fmt.Errorf("invalidate %s: %w", id, err)
		}
	}
	return nil
}
