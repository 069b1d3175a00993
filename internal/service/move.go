package service

import (
	"context"
	"fmt"
	"time"

	"innkeeper/internal/calendar"
	"innkeeper/internal/domain"
	"innkeeper/internal/events"
	"innkeeper/internal/metrics"
	"innkeeper/internal/models"
)

// MoveReservation reschedules a reservation to start on newCheckIn on
// newInstanceID, keeping its number of nights.
//
// The old footprint is cleared only where the reservation's own code is
// found, the new one is stamped with the reservation's current room status,
// and the reservation row is rewritten, all in one transaction. Moving to an
// instance of another room type moves the reservation to that type.
func (s *ReservationService) MoveReservation(ctx context.Context, id string, newCheckIn calendar.DateKey, newInstanceID string) (res *models.Reservation, err error) {
	started := time.Now()
	defer func() { err = s.finish("move_reservation", started, err) }()

	if newCheckIn.IsZero() {
		return nil, domain.Invalid("checkInDate", "must not be empty")
	}
	if _, perr := calendar.Parse(newCheckIn.String()); perr != nil {
		return nil, domain.Invalid("checkInDate", perr.Error())
	}
	if newInstanceID == "" {
		return nil, domain.Invalid("roomInstanceId", "must not be empty")
	}

	var (
		r    *models.Reservation
		prev models.Reservation
		src  *models.RoomInstance
		dst  *models.RoomInstance
	)
	err = s.store.InTx(ctx, func(tx domain.Tx) error {
		var err error
		r, err = tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if !r.Active() {
			return fmt.Errorf("cannot move a %s reservation: %w", r.Status, domain.ErrInvalidTransition)
		}
		prev = *r

		nights := calendar.DaysBetween(r.CheckIn, r.CheckOut)
		newCheckOut := newCheckIn.AddDays(nights)

		src, err = tx.GetRoomInstance(ctx, r.RoomInstanceID)
		if err != nil {
			return err
		}
		dst = src
		if newInstanceID != src.ID {
			if dst, err = tx.GetRoomInstance(ctx, newInstanceID); err != nil {
				return err
			}
		}

		newFootprint := calendar.Range(newCheckIn, newCheckOut)
		if !s.opts.TrustCaller {
			if ok, day := s.resolver.Free(dst, newFootprint, r.BookingCode); !ok {
				return fmt.Errorf("room %s on %s: %w", dst.RoomNumber, day, domain.ErrConflict)
			}
		}

		s.overrides.ClearFootprint(src, r.Footprint(), r.BookingCode)
		s.overrides.Stamp(dst, newFootprint, r.Status.RoomStatus(), r.BookingCode)

		if err := tx.SaveRoomInstance(ctx, src); err != nil {
			return err
		}
		if dst != src {
			if err := tx.SaveRoomInstance(ctx, dst); err != nil {
				return err
			}
		}

		r.RoomInstanceID = dst.ID
		r.RoomTypeID = dst.RoomTypeID
		r.CheckIn = newCheckIn
		r.CheckOut = newCheckOut
		r.Nights = nights
		return tx.UpdateReservation(ctx, r)
	})
	if err != nil {
		return nil, fmt.Errorf("move reservation %s: %w", id, err)
	}

	crossInstance := prev.RoomInstanceID != r.RoomInstanceID
	scope := []string{r.RoomTypeID}
	if prev.RoomTypeID != r.RoomTypeID {
		scope = append(scope, prev.RoomTypeID)
	}
	metrics.IncMoved(crossInstance)
	s.publish(events.ReservationMoved, ReservationEvent{
		Scope:              events.Scope{RoomTypeIDs: scope},
		Reservation:        *r,
		PreviousInstanceID: prev.RoomInstanceID,
		PreviousCheckIn:    prev.CheckIn,
		PreviousCheckOut:   prev.CheckOut,
	})
	s.logger.Info().
		Str("reservation_id", r.ID).
		Str("code", r.BookingCode).
		Str("from_instance", prev.RoomInstanceID).
		Str("to_instance", r.RoomInstanceID).
		Str("from_check_in", prev.CheckIn.String()).
		Str("to_check_in", r.CheckIn.String()).
		Msg("Reservation moved")
	return r, nil
}
