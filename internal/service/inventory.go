package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"innkeeper/internal/availability"
	"innkeeper/internal/calendar"
	"innkeeper/internal/domain"
	"innkeeper/internal/events"
	"innkeeper/internal/models"
)

// MaxCalendarDays bounds one calendar read.
const MaxCalendarDays = 366

type CreateRoomTypeRequest struct {
	OwnerID       string          `json:"ownerId"`
	Name          string          `json:"name" validate:"notblank"`
	BasePrice     decimal.Decimal `json:"basePrice"`
	Amenities     []string        `json:"amenities"`
	TotalQuantity int             `json:"totalQuantity" validate:"min=1,max=500"`
}

// UpdateRoomTypeRequest changes only the fields that are set.
type UpdateRoomTypeRequest struct {
	Name          *string          `json:"name" validate:"omitnil,notblank"`
	BasePrice     *decimal.Decimal `json:"basePrice"`
	Amenities     []string         `json:"amenities"`
	TotalQuantity *int             `json:"totalQuantity" validate:"omitnil,min=1,max=500"`
}

type RoomTypeEvent struct {
	events.Scope
	RoomTypeID string `json:"roomTypeId"`
	Action     string `json:"action"`
}

type RoomStatusEvent struct {
	events.Scope
	InstanceID  string           `json:"instanceId"`
	Date        calendar.DateKey `json:"date"`
	Status      models.Status    `json:"status"`
	BookingCode string           `json:"bookingCode,omitempty"`
}

// InventoryService manages room types and instances and serves resolved state.
type InventoryService struct {
	*core
	cache GridCache
}

func NewInventoryService(store domain.Store, clock calendar.Clock, bus EventPublisher, cache GridCache, logger *zerolog.Logger) *InventoryService {
	c := newCore(store, clock, bus, logger)
	l := c.logger.With().Str("component", "inventory").Logger()
	c.logger = &l
	return &InventoryService{core: c, cache: cache}
}

// CreateRoomType stores the type and its instances numbered 1..TotalQuantity.
func (s *InventoryService) CreateRoomType(ctx context.Context, req CreateRoomTypeRequest) (rt *models.RoomType, err error) {
	started := time.Now()
	defer func() { err = s.finish("create_room_type", started, err) }()

	if err = validateStruct(&req); err != nil {
		return nil, err
	}
	if req.BasePrice.IsNegative() {
		return nil, domain.Invalid("basePrice", "must not be negative")
	}

	rt = &models.RoomType{
		ID:            uuid.NewString(),
		OwnerID:       req.OwnerID,
		Name:          strings.TrimSpace(req.Name),
		BasePrice:     req.BasePrice,
		Amenities:     cleanAmenities(req.Amenities),
		TotalQuantity: req.TotalQuantity,
	}
	err = s.store.InTx(ctx, func(tx domain.Tx) error {
		if err := tx.InsertRoomType(ctx, rt); err != nil {
			return err
		}
		return addInstances(ctx, tx, rt.ID, 1, rt.TotalQuantity)
	})
	if err != nil {
		return nil, fmt.Errorf("create room type: %w", err)
	}

	s.publish(events.RoomTypeChanged, RoomTypeEvent{
		Scope:      events.Scope{RoomTypeIDs: []string{rt.ID}},
		RoomTypeID: rt.ID,
		Action:     "created",
	})
	s.logger.Info().Str("room_type_id", rt.ID).Str("name", rt.Name).Int("quantity", rt.TotalQuantity).Msg("Room type created")
	return rt, nil
}

func addInstances(ctx context.Context, tx domain.Tx, roomTypeID string, first, last int) error {
	for n := first; n <= last; n++ {
		inst := &models.RoomInstance{
			ID:         uuid.NewString(),
			RoomTypeID: roomTypeID,
			RoomNumber: strconv.Itoa(n),
			BaseStatus: models.StatusAvailable,
		}
		if err := tx.InsertRoomInstance(ctx, inst); err != nil {
			return err
		}
	}
	return nil
}

// UpdateRoomType edits name, price and amenities. A larger quantity appends
// instances; a smaller one is rejected because instances carry schedules.
func (s *InventoryService) UpdateRoomType(ctx context.Context, id string, req UpdateRoomTypeRequest) (rt *models.RoomType, err error) {
	started := time.Now()
	defer func() { err = s.finish("update_room_type", started, err) }()

	if err = validateStruct(&req); err != nil {
		return nil, err
	}
	if req.BasePrice != nil && req.BasePrice.IsNegative() {
		return nil, domain.Invalid("basePrice", "must not be negative")
	}

	err = s.store.InTx(ctx, func(tx domain.Tx) error {
		var err error
		rt, err = tx.GetRoomType(ctx, id)
		if err != nil {
			return err
		}
		if req.Name != nil {
			rt.Name = strings.TrimSpace(*req.Name)
		}
		if req.BasePrice != nil {
			rt.BasePrice = *req.BasePrice
		}
		if req.Amenities != nil {
			rt.Amenities = cleanAmenities(req.Amenities)
		}
		if req.TotalQuantity != nil && *req.TotalQuantity != rt.TotalQuantity {
			instances, err := tx.ListRoomInstances(ctx, id)
			if err != nil {
				return err
			}
			have := len(instances)
			if *req.TotalQuantity < have {
				return domain.Invalid("totalQuantity", fmt.Sprintf("cannot be lower than the %d existing instances", have))
			}
			if err := addInstances(ctx, tx, id, have+1, *req.TotalQuantity); err != nil {
				return err
			}
			rt.TotalQuantity = *req.TotalQuantity
		}
		return tx.UpdateRoomType(ctx, rt)
	})
	if err != nil {
		return nil, fmt.Errorf("update room type %s: %w", id, err)
	}

	s.publish(events.RoomTypeChanged, RoomTypeEvent{
		Scope:      events.Scope{RoomTypeIDs: []string{id}},
		RoomTypeID: id,
		Action:     "updated",
	})
	s.logger.Info().Str("room_type_id", id).Msg("Room type updated")
	return rt, nil
}

// DeleteRoomType removes the type with its instances and their overrides.
// A type with live reservations is not deleted.
func (s *InventoryService) DeleteRoomType(ctx context.Context, id string) (err error) {
	started := time.Now()
	defer func() { err = s.finish("delete_room_type", started, err) }()

	err = s.store.InTx(ctx, func(tx domain.Tx) error {
		active, err := tx.ListReservations(ctx, domain.ReservationFilter{RoomTypeID: id, ActiveOnly: true})
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return fmt.Errorf("room type %s has %d active reservations: %w", id, len(active), domain.ErrConflict)
		}
		return tx.DeleteRoomType(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete room type: %w", err)
	}

	s.publish(events.RoomTypeChanged, RoomTypeEvent{
		Scope:      events.Scope{RoomTypeIDs: []string{id}},
		RoomTypeID: id,
		Action:     "deleted",
	})
	s.logger.Info().Str("room_type_id", id).Msg("Room type deleted")
	return nil
}

func (s *InventoryService) GetRoomType(ctx context.Context, id string) (*models.RoomType, error) {
	return s.store.GetRoomType(ctx, id)
}

func (s *InventoryService) ListRoomTypes(ctx context.Context, ownerID string) ([]models.RoomType, error) {
	return s.store.ListRoomTypes(ctx, ownerID)
}

func (s *InventoryService) ListInstances(ctx context.Context, roomTypeID string) ([]*models.RoomInstance, error) {
	if _, err := s.store.GetRoomType(ctx, roomTypeID); err != nil {
		return nil, err
	}
	return s.store.ListRoomInstances(ctx, roomTypeID)
}

// RenumberInstance changes the human room number. Scheduling is unaffected.
func (s *InventoryService) RenumberInstance(ctx context.Context, id, roomNumber string) (inst *models.RoomInstance, err error) {
	started := time.Now()
	defer func() { err = s.finish("renumber_instance", started, err) }()

	roomNumber = strings.TrimSpace(roomNumber)
	if roomNumber == "" {
		return nil, domain.Invalid("roomNumber", "must not be empty")
	}
	err = s.store.InTx(ctx, func(tx domain.Tx) error {
		if err := tx.UpdateRoomNumber(ctx, id, roomNumber); err != nil {
			return err
		}
		var err error
		inst, err = tx.GetRoomInstance(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("renumber instance: %w", err)
	}

	s.publish(events.RoomTypeChanged, RoomTypeEvent{
		Scope:      events.Scope{RoomTypeIDs: []string{inst.RoomTypeID}},
		RoomTypeID: inst.RoomTypeID,
		Action:     "instance_renumbered",
	})
	return inst, nil
}

// ResolveAvailability returns the effective status and price of an instance on date.
func (s *InventoryService) ResolveAvailability(ctx context.Context, instanceID string, date calendar.DateKey) (availability.Resolution, error) {
	inst, err := s.store.GetRoomInstance(ctx, instanceID)
	if err != nil {
		return availability.Resolution{}, err
	}
	rt, err := s.store.GetRoomType(ctx, inst.RoomTypeID)
	if err != nil {
		return availability.Resolution{}, err
	}
	return s.resolver.Resolve(inst, rt.BasePrice, date), nil
}

// SetRoomStatus is the operator's status change for one instance and date.
func (s *InventoryService) SetRoomStatus(ctx context.Context, instanceID string, date calendar.DateKey, status models.Status, bookingCode string) (err error) {
	started := time.Now()
	defer func() { err = s.finish("set_room_status", started, err) }()

	bookingCode = strings.TrimSpace(bookingCode)
	var roomTypeID string
	err = s.store.InTx(ctx, func(tx domain.Tx) error {
		inst, err := tx.GetRoomInstance(ctx, instanceID)
		if err != nil {
			return err
		}
		roomTypeID = inst.RoomTypeID
		if err := s.overrides.SetStatus(inst, date, status, bookingCode); err != nil {
			return err
		}
		if !inst.IsDirty() {
			return nil
		}
		return tx.SaveRoomInstance(ctx, inst)
	})
	if err != nil {
		return fmt.Errorf("set room status: %w", err)
	}

	s.publish(events.RoomStatusChanged, RoomStatusEvent{
		Scope:       events.Scope{RoomTypeIDs: []string{roomTypeID}},
		InstanceID:  instanceID,
		Date:        date,
		Status:      status,
		BookingCode: bookingCode,
	})
	s.logger.Info().
		Str("instance_id", instanceID).
		Str("date", date.String()).
		Str("status", string(status)).
		Msg("Room status set")
	return nil
}

// Calendar returns the resolved grid of a room type over [from, to), through the cache when one is set.
func (s *InventoryService) Calendar(ctx context.Context, roomTypeID string, from, to calendar.DateKey) (*availability.Grid, error) {
	if !from.Before(to) {
		return nil, domain.Invalid("to", "must be after from")
	}
	if calendar.DaysBetween(from, to) > MaxCalendarDays {
		return nil, domain.Invalid("to", fmt.Sprintf("range longer than %d days", MaxCalendarDays))
	}

	today := s.resolver.Today()
	if s.cache != nil {
		if g, ok := s.cache.GetGrid(ctx, roomTypeID, from, to, today); ok {
			return g, nil
		}
	}

	rt, err := s.store.GetRoomType(ctx, roomTypeID)
	if err != nil {
		return nil, err
	}
	instances, err := s.store.ListRoomInstances(ctx, roomTypeID)
	if err != nil {
		return nil, err
	}
	g := s.resolver.Grid(rt, instances, from, to)

	if s.cache != nil {
		s.cache.PutGrid(ctx, g)
	}
	return g, nil
}

func cleanAmenities(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
