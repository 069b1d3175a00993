package service

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"innkeeper/internal/calendar"
	"innkeeper/internal/database"
	"innkeeper/internal/models"
)

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

const testToday = calendar.DateKey("2025-06-01")

type testEnv struct {
	db     *database.DB
	clock  *calendar.FixedClock
	bus    *mockEventBus
	res    *ReservationService
	inv    *InventoryService
	prices *PricingService
}

func newEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "engine.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := calendar.NewFixedClock(testToday)
	bus := new(mockEventBus)
	bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil).Maybe()

	if opts.CodeAttempts == 0 {
		opts.CodeAttempts = 8
	}
	return &testEnv{
		db:     db,
		clock:  clock,
		bus:    bus,
		res:    NewReservationService(db, clock, bus, opts, &logger),
		inv:    NewInventoryService(db, clock, bus, nil, &logger),
		prices: NewPricingService(db, clock, bus, &logger),
	}
}

// deluxe creates the "Deluxe" room type with n instances.
func (e *testEnv) deluxe(t *testing.T, n int) (*models.RoomType, []*models.RoomInstance) {
	t.Helper()
	ctx := context.Background()
	rt, err := e.inv.CreateRoomType(ctx, CreateRoomTypeRequest{
		OwnerID:       "owner-1",
		Name:          "Deluxe",
		BasePrice:     decimal.NewFromInt(150000),
		Amenities:     []string{"wifi"},
		TotalQuantity: n,
	})
	require.NoError(t, err)
	instances, err := e.inv.ListInstances(ctx, rt.ID)
	require.NoError(t, err)
	require.Len(t, instances, n)
	return rt, instances
}

func (e *testEnv) book(t *testing.T, rt *models.RoomType, inst *models.RoomInstance, in, out string) *models.Reservation {
	t.Helper()
	r, err := e.res.CreateReservation(context.Background(), CreateReservationRequest{
		RoomTypeID:     rt.ID,
		RoomInstanceID: inst.ID,
		GuestName:      "Anna",
		GuestPhone:     "+7 900 000-00-00",
		GuestCount:     2,
		CheckInDate:    in,
		CheckOutDate:   out,
		TotalPrice:     decimal.NewFromInt(300000),
	})
	require.NoError(t, err)
	return r
}

func (e *testEnv) instance(t *testing.T, id string) *models.RoomInstance {
	t.Helper()
	inst, err := e.db.GetRoomInstance(context.Background(), id)
	require.NoError(t, err)
	return inst
}

// requireFootprint checks that every date of r carries its code and status.
func requireFootprint(t *testing.T, inst *models.RoomInstance, r *models.Reservation, status models.Status) {
	t.Helper()
	for _, d := range r.Footprint() {
		o, ok := inst.Override(d)
		require.True(t, ok, "missing override on %s", d)
		require.True(t, o.HasCode(r.BookingCode), "wrong code on %s", d)
		require.Equal(t, models.Some(status), o.Status, "wrong status on %s", d)
	}
}

func requireNoCode(t *testing.T, inst *models.RoomInstance, code string) {
	t.Helper()
	for d, o := range inst.Overrides {
		require.False(t, o.HasCode(code), "code %s still on %s", code, d)
	}
}
