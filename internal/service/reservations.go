package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"innkeeper/internal/calendar"
	"innkeeper/internal/domain"
	"innkeeper/internal/events"
	"innkeeper/internal/metrics"
	"innkeeper/internal/models"
)

type CreateReservationRequest struct {
	RoomTypeID     string               `json:"roomTypeId" validate:"required"`
	RoomInstanceID string               `json:"roomInstanceId" validate:"required"`
	GuestName      string               `json:"guestName" validate:"notblank"`
	GuestPhone     string               `json:"guestPhone" validate:"notblank"`
	GuestCount     int                  `json:"guestCount" validate:"gte=0"`
	CheckInDate    string               `json:"checkInDate" validate:"required"`
	CheckOutDate   string               `json:"checkOutDate" validate:"required"`
	TotalPrice     decimal.Decimal      `json:"totalPrice"`
	PaymentStatus  models.PaymentStatus `json:"paymentStatus" validate:"omitempty,oneof=unpaid partial paid refunded"`
	Source         models.Source        `json:"source" validate:"omitempty,oneof=manual external"`
}

// ReservationEvent is the payload of reservation events.
type ReservationEvent struct {
	events.Scope
	Reservation        models.Reservation       `json:"reservation"`
	From               models.ReservationStatus `json:"from,omitempty"`
	PreviousInstanceID string                   `json:"previousInstanceId,omitempty"`
	PreviousCheckIn    calendar.DateKey         `json:"previousCheckIn,omitempty"`
	PreviousCheckOut   calendar.DateKey         `json:"previousCheckOut,omitempty"`
}

// ReservationService creates, reads, transitions and moves reservations.
type ReservationService struct {
	*core
	codes *CodeGenerator
	fsm   *FSM
	opts  Options
}

func NewReservationService(store domain.Store, clock calendar.Clock, bus EventPublisher, opts Options, logger *zerolog.Logger) *ReservationService {
	if opts.CodePrefix == "" {
		opts.CodePrefix = "RES-"
	}
	c := newCore(store, clock, bus, logger)
	l := c.logger.With().Str("component", "reservations").Logger()
	c.logger = &l
	return &ReservationService{
		core:  c,
		codes: NewCodeGenerator(opts.CodePrefix, opts.CodeDigits, opts.CodeAttempts),
		fsm:   NewFSM(),
		opts:  opts,
	}
}

// FSM exposes the transition table, e.g. for rendering next actions.
func (s *ReservationService) FSM() *FSM {
	return s.fsm
}

func (s *ReservationService) validateCreate(req *CreateReservationRequest) (in, out calendar.DateKey, err error) {
	if err = validateStruct(req); err != nil {
		return "", "", err
	}
	if in, err = parseDate("checkInDate", req.CheckInDate); err != nil {
		return "", "", err
	}
	if out, err = parseDate("checkOutDate", req.CheckOutDate); err != nil {
		return "", "", err
	}
	if !in.Before(out) {
		return "", "", domain.Invalid("checkOutDate", "must be after checkInDate")
	}
	if s.opts.MaxStayNights > 0 && calendar.DaysBetween(in, out) > s.opts.MaxStayNights {
		return "", "", domain.Invalid("checkOutDate", fmt.Sprintf("stay longer than %d nights", s.opts.MaxStayNights))
	}
	if s.opts.MaxGuestsCount > 0 && req.GuestCount > s.opts.MaxGuestsCount {
		return "", "", domain.Invalid("guestCount", fmt.Sprintf("must be at most %d", s.opts.MaxGuestsCount))
	}
	if req.TotalPrice.IsNegative() {
		return "", "", domain.Invalid("totalPrice", "must not be negative")
	}
	return in, out, nil
}

// CreateReservation validates the request, stamps the footprint with booked
// and the new code, and stores the reservation, all in one transaction.
func (s *ReservationService) CreateReservation(ctx context.Context, req CreateReservationRequest) (res *models.Reservation, err error) {
	started := time.Now()
	defer func() { err = s.finish("create_reservation", started, err) }()

	checkIn, checkOut, err := s.validateCreate(&req)
	if err != nil {
		return nil, err
	}

	r := &models.Reservation{
		ID:             uuid.NewString(),
		RoomTypeID:     req.RoomTypeID,
		RoomInstanceID: req.RoomInstanceID,
		GuestName:      strings.TrimSpace(req.GuestName),
		GuestPhone:     strings.TrimSpace(req.GuestPhone),
		GuestCount:     req.GuestCount,
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		Nights:         calendar.DaysBetween(checkIn, checkOut),
		TotalPrice:     req.TotalPrice,
		PaymentStatus:  req.PaymentStatus,
		Source:         req.Source,
		Status:         models.ReservationBooked,
	}
	if r.GuestCount == 0 {
		r.GuestCount = 1
	}
	if r.PaymentStatus == "" {
		r.PaymentStatus = models.PaymentUnpaid
	}
	if r.Source == "" {
		r.Source = models.SourceManual
	}

	err = s.store.InTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.GetRoomType(ctx, r.RoomTypeID); err != nil {
			return err
		}
		inst, err := tx.GetRoomInstance(ctx, r.RoomInstanceID)
		if err != nil {
			return err
		}
		if inst.RoomTypeID != r.RoomTypeID {
			return domain.Invalid("roomInstanceId", "does not belong to the room type")
		}

		footprint := r.Footprint()
		if !s.opts.TrustCaller {
			if ok, day := s.resolver.Free(inst, footprint, ""); !ok {
				return fmt.Errorf("room %s on %s: %w", inst.RoomNumber, day, domain.ErrConflict)
			}
		}

		code, err := s.codes.Next(ctx, tx.BookingCodeExists)
		if err != nil {
			return err
		}
		r.BookingCode = code

		s.overrides.Stamp(inst, footprint, models.StatusBooked, code)
		if err := tx.SaveRoomInstance(ctx, inst); err != nil {
			return err
		}
		return tx.InsertReservation(ctx, r)
	})
	if err != nil {
		return nil, fmt.Errorf("create reservation: %w", err)
	}

	metrics.IncReservationCreated(string(r.Source))
	s.publish(events.ReservationCreated, ReservationEvent{
		Scope:       events.Scope{RoomTypeIDs: []string{r.RoomTypeID}},
		Reservation: *r,
	})
	s.logger.Info().
		Str("reservation_id", r.ID).
		Str("code", r.BookingCode).
		Str("instance_id", r.RoomInstanceID).
		Str("check_in", r.CheckIn.String()).
		Str("check_out", r.CheckOut.String()).
		Msg("Reservation created")
	return r, nil
}

func (s *ReservationService) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	return s.store.GetReservation(ctx, id)
}

// GetReservationByCode returns nil, nil when no reservation has the code.
func (s *ReservationService) GetReservationByCode(ctx context.Context, code string) (*models.Reservation, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	return s.store.GetReservationByCode(ctx, code)
}

func (s *ReservationService) ListReservations(ctx context.Context, f domain.ReservationFilter) ([]models.Reservation, error) {
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return nil, domain.Invalid("to", "must be after from")
	}
	return s.store.ListReservations(ctx, f)
}

// TransitionReservation moves the reservation through the lifecycle table.
// Check-in rewrites the footprint to occupied; checkout and cancel clear the
// dates that still carry the reservation's code.
func (s *ReservationService) TransitionReservation(ctx context.Context, id string, target models.ReservationStatus) (res *models.Reservation, err error) {
	started := time.Now()
	defer func() { err = s.finish("transition_reservation", started, err) }()

	if !target.Valid() && target != models.ReservationAvailable {
		return nil, domain.Invalid("status", fmt.Sprintf("unknown reservation status %q", target))
	}

	var (
		r    *models.Reservation
		from models.ReservationStatus
	)
	err = s.store.InTx(ctx, func(tx domain.Tx) error {
		var err error
		r, err = tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		from = r.Status

		to, err := s.fsm.Resolve(from, target)
		if err != nil {
			return err
		}

		inst, err := tx.GetRoomInstance(ctx, r.RoomInstanceID)
		if err != nil {
			return err
		}
		footprint := r.Footprint()
		switch {
		case to == models.ReservationOccupied:
			s.overrides.Restamp(inst, footprint, r.BookingCode, models.StatusOccupied)
		case to.Terminal():
			s.overrides.ClearFootprint(inst, footprint, r.BookingCode)
		}
		if inst.IsDirty() {
			if err := tx.SaveRoomInstance(ctx, inst); err != nil {
				return err
			}
		}

		r.Status = to
		return tx.UpdateReservation(ctx, r)
	})
	if err != nil {
		return nil, fmt.Errorf("transition reservation %s: %w", id, err)
	}

	metrics.IncTransition(string(r.Status))
	s.publish(events.ReservationTransitioned, ReservationEvent{
		Scope:       events.Scope{RoomTypeIDs: []string{r.RoomTypeID}},
		Reservation: *r,
		From:        from,
	})
	s.logger.Info().
		Str("reservation_id", r.ID).
		Str("code", r.BookingCode).
		Str("from", string(from)).
		Str("to", string(r.Status)).
		Msg("Reservation status changed")
	return r, nil
}

// UpdatePaymentStatus records payment state only. No payment is processed.
func (s *ReservationService) UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) (res *models.Reservation, err error) {
	started := time.Now()
	defer func() { err = s.finish("update_payment", started, err) }()

	if !status.Valid() {
		return nil, domain.Invalid("paymentStatus", fmt.Sprintf("unknown payment status %q", status))
	}

	var r *models.Reservation
	err = s.store.InTx(ctx, func(tx domain.Tx) error {
		var err error
		r, err = tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		r.PaymentStatus = status
		return tx.UpdateReservation(ctx, r)
	})
	if err != nil {
		return nil, fmt.Errorf("update payment of %s: %w", id, err)
	}

	s.publish(events.ReservationUpdated, ReservationEvent{
		Scope:       events.Scope{RoomTypeIDs: []string{r.RoomTypeID}},
		Reservation: *r,
	})
	s.logger.Info().Str("reservation_id", r.ID).Str("payment_status", string(status)).Msg("Payment status updated")
	return r, nil
}
