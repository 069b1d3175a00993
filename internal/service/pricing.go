package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"innkeeper/internal/calendar"
	"innkeeper/internal/domain"
	"innkeeper/internal/events"
	"innkeeper/internal/metrics"
	"innkeeper/internal/models"
)

// PriceEntry asks for price on date for every instance of a room type.
type PriceEntry struct {
	RoomTypeID string          `json:"roomTypeId" validate:"required"`
	Date       string          `json:"date" validate:"required"`
	Price      decimal.Decimal `json:"price"`
}

// PriceResult counts per-instance override writes.
type PriceResult struct {
	Set     int `json:"set"`
	Cleared int `json:"cleared"`
}

type PricesEvent struct {
	events.Scope
	Entries int `json:"entries"`
	PriceResult
}

// PricingService applies price overrides from manual edits or accepted
// recommendations. Where the price came from makes no difference.
type PricingService struct {
	*core
}

func NewPricingService(store domain.Store, clock calendar.Clock, bus EventPublisher, logger *zerolog.Logger) *PricingService {
	c := newCore(store, clock, bus, logger)
	l := c.logger.With().Str("component", "pricing").Logger()
	c.logger = &l
	return &PricingService{core: c}
}

type parsedEntry struct {
	date  calendar.DateKey
	price decimal.Decimal
}

// ApplyPriceOverrides sets each price as an override on every instance of the
// room type, or clears the override where the price equals the base price.
// Later entries for the same room type and date win.
func (s *PricingService) ApplyPriceOverrides(ctx context.Context, entries []PriceEntry) (result PriceResult, err error) {
	started := time.Now()
	defer func() { err = s.finish("apply_prices", started, err) }()

	byType := make(map[string][]parsedEntry)
	var order []string
	for i, e := range entries {
		if err := validateStruct(&e); err != nil {
			return result, fmt.Errorf("entries[%d]: %w", i, err)
		}
		d, err := parseDate("date", e.Date)
		if err != nil {
			return result, fmt.Errorf("entries[%d]: %w", i, err)
		}
		if e.Price.IsNegative() {
			return result, fmt.Errorf("entries[%d]: %w", i, domain.Invalid("price", "must not be negative"))
		}
		if _, seen := byType[e.RoomTypeID]; !seen {
			order = append(order, e.RoomTypeID)
		}
		byType[e.RoomTypeID] = append(byType[e.RoomTypeID], parsedEntry{date: d, price: e.Price})
	}
	if len(entries) == 0 {
		return result, nil
	}

	err = s.store.InTx(ctx, func(tx domain.Tx) error {
		result = PriceResult{}
		for _, typeID := range order {
			rt, err := tx.GetRoomType(ctx, typeID)
			if err != nil {
				return err
			}
			instances, err := tx.ListRoomInstances(ctx, typeID)
			if err != nil {
				return err
			}
			for _, inst := range instances {
				for _, e := range byType[typeID] {
					s.applyOne(inst, rt.BasePrice, e, &result)
				}
				if !inst.IsDirty() {
					continue
				}
				if err := tx.SaveRoomInstance(ctx, inst); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return PriceResult{}, fmt.Errorf("apply price overrides: %w", err)
	}

	metrics.AddPriceOverrides("set", result.Set)
	metrics.AddPriceOverrides("clear", result.Cleared)
	s.publish(events.PricesApplied, PricesEvent{
		Scope:       events.Scope{RoomTypeIDs: order},
		Entries:     len(entries),
		PriceResult: result,
	})
	s.logger.Info().
		Int("entries", len(entries)).
		Int("set", result.Set).
		Int("cleared", result.Cleared).
		Msg("Price overrides applied")
	return result, nil
}

func (s *PricingService) applyOne(inst *models.RoomInstance, base decimal.Decimal, e parsedEntry, result *PriceResult) {
	cur, _ := inst.Override(e.date)
	if e.price.Equal(base) {
		if cur.Price.IsSet() {
			s.overrides.Apply(inst, e.date, models.OverridePatch{Price: models.Unset[decimal.Decimal]()})
			result.Cleared++
		}
		return
	}
	if p, ok := cur.Price.Get(); ok && p.Equal(e.price) {
		return
	}
	s.overrides.Apply(inst, e.date, models.OverridePatch{Price: models.Set(e.price)})
	result.Set++
}
