package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"innkeeper/internal/calendar"
	"innkeeper/internal/domain"
	"innkeeper/internal/events"
	"innkeeper/internal/models"
)

func TestCreateReservation_StampsFootprint(t *testing.T) {
	env := newEnv(t, Options{})
	ctx := context.Background()
	rt, instances := env.deluxe(t, 2)
	inst := instances[0]

	r := env.book(t, rt, inst, "2025-06-10", "2025-06-12")

	assert.Regexp(t, `^RES-\d{4}$`, r.BookingCode)
	assert.Equal(t, 2, r.Nights)
	assert.Equal(t, models.ReservationBooked, r.Status)
	assert.Equal(t, models.PaymentUnpaid, r.PaymentStatus)
	assert.Equal(t, models.SourceManual, r.Source)

	stored := env.instance(t, inst.ID)
	requireFootprint(t, stored, r, models.StatusBooked)
	assert.Len(t, stored.Overrides, 2)

	res, err := env.inv.ResolveAvailability(ctx, inst.ID, "2025-06-10")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, res.Status)
	assert.True(t, res.Price.Equal(decimal.NewFromInt(150000)))
	assert.Equal(t, r.BookingCode, res.BookingCode)

	// Checkout day is free.
	res, err = env.inv.ResolveAvailability(ctx, inst.ID, "2025-06-12")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, res.Status)

	byCode, err := env.res.GetReservationByCode(ctx, r.BookingCode)
	require.NoError(t, err)
	require.NotNil(t, byCode)
	assert.Equal(t, r.ID, byCode.ID)

	env.bus.AssertCalled(t, "PublishJSON", events.ReservationCreated, mock.Anything)
}

func TestCreateReservation_Validation(t *testing.T) {
	env := newEnv(t, Options{MaxStayNights: 30, MaxGuestsCount: 4})
	ctx := context.Background()
	rt, instances := env.deluxe(t, 1)

	valid := CreateReservationRequest{
		RoomTypeID:     rt.ID,
		RoomInstanceID: instances[0].ID,
		GuestName:      "Anna",
		GuestPhone:     "+70000000000",
		CheckInDate:    "2025-06-10",
		CheckOutDate:   "2025-06-12",
	}

	tests := []struct {
		name   string
		mutate func(r *CreateReservationRequest)
		field  string
	}{
		{"empty name", func(r *CreateReservationRequest) { r.GuestName = "  " }, "guestName"},
		{"empty phone", func(r *CreateReservationRequest) { r.GuestPhone = "" }, "guestPhone"},
		{"checkout equals checkin", func(r *CreateReservationRequest) { r.CheckOutDate = r.CheckInDate }, "checkOutDate"},
		{"checkout before checkin", func(r *CreateReservationRequest) { r.CheckOutDate = "2025-06-01" }, "checkOutDate"},
		{"bad date", func(r *CreateReservationRequest) { r.CheckInDate = "10/06/2025" }, "checkInDate"},
		{"too long", func(r *CreateReservationRequest) { r.CheckOutDate = "2025-08-01" }, "checkOutDate"},
		{"too many guests", func(r *CreateReservationRequest) { r.GuestCount = 5 }, "guestCount"},
		{"negative price", func(r *CreateReservationRequest) { r.TotalPrice = decimal.NewFromInt(-1) }, "totalPrice"},
		{"unknown source", func(r *CreateReservationRequest) { r.Source = "ota" }, "source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := env.res.CreateReservation(ctx, req)
			require.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	// Nothing was written.
	assert.Empty(t, env.instance(t, instances[0].ID).Overrides)
	list, err := env.res.ListReservations(ctx, domain.ReservationFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateReservation_NotFoundAndMismatch(t *testing.T) {
	env := newEnv(t, Options{})
	ctx := context.Background()
	rt, instances := env.deluxe(t, 1)
	other, err := env.inv.CreateRoomType(ctx, CreateRoomTypeRequest{Name: "Suite", BasePrice: decimal.NewFromInt(1), TotalQuantity: 1})
	require.NoError(t, err)

	req := CreateReservationRequest{
		RoomTypeID:     rt.ID,
		RoomInstanceID: "missing",
		GuestName:      "Anna",
		GuestPhone:     "1",
		CheckInDate:    "2025-06-10",
		CheckOutDate:   "2025-06-11",
	}
	_, err = env.res.CreateReservation(ctx, req)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	req.RoomInstanceID = instances[0].ID
	req.RoomTypeID = other.ID
	_, err = env.res.CreateReservation(ctx, req)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestCreateReservation_Conflict(t *testing.T) {
	env := newEnv(t, Options{})
	ctx := context.Background()
	rt, instances := env.deluxe(t, 1)
	inst := instances[0]

	env.book(t, rt, inst, "2025-06-10", "2025-06-12")

	_, err := env.res.CreateReservation(ctx, CreateReservationRequest{
		RoomTypeID: rt.ID, RoomInstanceID: inst.ID, GuestName: "B", GuestPhone: "2",
		CheckInDate: "2025-06-11", CheckOutDate: "2025-06-13",
	})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	require.NoError(t, env.inv.SetRoomStatus(ctx, inst.ID, "2025-06-20", models.StatusMaintenance, ""))
	_, err = env.res.CreateReservation(ctx, CreateReservationRequest{
		RoomTypeID: rt.ID, RoomInstanceID: inst.ID, GuestName: "B", GuestPhone: "2",
		CheckInDate: "2025-06-19", CheckOutDate: "2025-06-21",
	})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	// Adjacent stay is fine.
	env.book(t, rt, inst, "2025-06-12", "2025-06-14")
}

func TestCreateReservation_TrustCaller(t *testing.T) {
	env := newEnv(t, Options{TrustCaller: true})
	rt, instances := env.deluxe(t, 1)

	r1 := env.book(t, rt, instances[0], "2025-06-10", "2025-06-12")
	r2 := env.book(t, rt, instances[0], "2025-06-11", "2025-06-13")

	stored := env.instance(t, instances[0].ID)
	o, _ := stored.Override("2025-06-10")
	assert.True(t, o.HasCode(r1.BookingCode))
	o, _ = stored.Override("2025-06-11")
	assert.True(t, o.HasCode(r2.BookingCode), "later write wins on the shared date")
}

func TestGetReservationByCode_Missing(t *testing.T) {
	env := newEnv(t, Options{})
	r, err := env.res.GetReservationByCode(context.Background(), "RES-0000")
	assert.NoError(t, err)
	assert.Nil(t, r)

	r, err = env.res.GetReservationByCode(context.Background(), " ")
	assert.NoError(t, err)
	assert.Nil(t, r)
}

func TestTransition_CheckInCheckOut(t *testing.T) {
	env := newEnv(t, Options{})
	ctx := context.Background()
	rt, instances := env.deluxe(t, 1)
	inst := instances[0]
	r := env.book(t, rt, inst, "2025-06-10", "2025-06-12")

	r, err := env.res.TransitionReservation(ctx, r.ID, models.ReservationOccupied)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationOccupied, r.Status)
	requireFootprint(t, env.instance(t, inst.ID), r, models.StatusOccupied)

	r, err = env.res.TransitionReservation(ctx, r.ID, models.ReservationAvailable)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCheckedOut, r.Status)

	stored := env.instance(t, inst.ID)
	assert.Empty(t, stored.Overrides, "footprint is back to the natural default")
	for _, d := range calendar.Range("2025-06-10", "2025-06-12") {
		res, err := env.inv.ResolveAvailability(ctx, inst.ID, d)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAvailable, res.Status)
	}

	_, err = env.res.TransitionReservation(ctx, r.ID, models.ReservationOccupied)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	env.bus.AssertCalled(t, "PublishJSON", events.ReservationTransitioned, mock.Anything)
}

func TestTransition_CancelLeavesOtherReservations(t *testing.T) {
	env := newEnv(t, Options{})
	ctx := context.Background()
	rt, instances := env.deluxe(t, 1)
	inst := instances[0]
	r1 := env.book(t, rt, inst, "2025-06-10", "2025-06-12")
	r2 := env.book(t, rt, inst, "2025-06-12", "2025-06-14")

	_, err := env.prices.ApplyPriceOverrides(ctx, []PriceEntry{{RoomTypeID: rt.ID, Date: "2025-06-10", Price: decimal.NewFromInt(99000)}})
	require.NoError(t, err)

	r1, err = env.res.TransitionReservation(ctx, r1.ID, models.ReservationCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCancelled, r1.Status)

	stored := env.instance(t, inst.ID)
	requireNoCode(t, stored, r1.BookingCode)
	requireFootprint(t, stored, r2, models.StatusBooked)

	o, ok := stored.Override("2025-06-10")
	require.True(t, ok, "price override survives the cancel")
	assert.False(t, o.Status.IsSet())
}

func TestTransition_Errors(t *testing.T) {
	env := newEnv(t, Options{})
	ctx := context.Background()
	rt, instances := env.deluxe(t, 1)
	r := env.book(t, rt, instances[0], "2025-06-10", "2025-06-12")

	_, err := env.res.TransitionReservation(ctx, "missing", models.ReservationOccupied)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = env.res.TransitionReservation(ctx, r.ID, models.ReservationCheckedOut)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	_, err = env.res.TransitionReservation(ctx, r.ID, "paid")
	assert.True(t, errors.Is(err, domain.ErrValidation))

	// Failed transitions write nothing.
	got, err := env.res.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationBooked, got.Status)
	assert.Equal(t, r.Version, got.Version)
}

func TestUpdatePaymentStatus(t *testing.T) {
	env := newEnv(t, Options{})
	ctx := context.Background()
	rt, instances := env.deluxe(t, 1)
	r := env.book(t, rt, instances[0], "2025-06-10", "2025-06-12")

	got, err := env.res.UpdatePaymentStatus(ctx, r.ID, models.PaymentPaid)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, r.Version+1, got.Version)

	_, err = env.res.UpdatePaymentStatus(ctx, r.ID, "free")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestListReservations(t *testing.T) {
	env := newEnv(t, Options{})
	ctx := context.Background()
	rt, instances := env.deluxe(t, 2)
	env.book(t, rt, instances[0], "2025-06-10", "2025-06-12")
	env.book(t, rt, instances[1], "2025-06-11", "2025-06-15")

	list, err := env.res.ListReservations(ctx, domain.ReservationFilter{RoomInstanceID: instances[1].ID})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = env.res.ListReservations(ctx, domain.ReservationFilter{RoomTypeID: rt.ID, From: "2025-06-12", To: "2025-06-13"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = env.res.ListReservations(ctx, domain.ReservationFilter{From: "2025-06-12", To: "2025-06-12"})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
