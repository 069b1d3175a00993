package models

import "fmt"

// Status is the per-date state of a room instance.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusBooked      Status = "booked"
	StatusOccupied    Status = "occupied"
	StatusMaintenance Status = "maintenance"
	StatusClosed      Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBooked, StatusOccupied, StatusMaintenance, StatusClosed:
		return true
	}
	return false
}

// HoldsReservation reports whether the status is one a reservation footprint can carry.
func (s Status) HoldsReservation() bool {
	return s == StatusBooked || s == StatusOccupied
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown room status %q", s)
	}
	return st, nil
}

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationBooked     ReservationStatus = "booked"
	ReservationOccupied   ReservationStatus = "occupied"
	ReservationCheckedOut ReservationStatus = "checked_out"
	ReservationCancelled  ReservationStatus = "cancelled"

	// ReservationAvailable is accepted as a transition target only.
	// It resolves to checked_out from occupied and to cancelled from booked.
	ReservationAvailable ReservationStatus = "available"
)

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationBooked, ReservationOccupied, ReservationCheckedOut, ReservationCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationCheckedOut || s == ReservationCancelled
}

// RoomStatus is the status a live reservation stamps on its footprint.
func (s ReservationStatus) RoomStatus() Status {
	if s == ReservationOccupied {
		return StatusOccupied
	}
	return StatusBooked
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPartial  PaymentStatus = "partial"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentPartial, PaymentPaid, PaymentRefunded:
		return true
	}
	return false
}

// Source tells where a reservation came from.
type Source string

const (
	SourceManual   Source = "manual"
	SourceExternal Source = "external"
)

func (s Source) Valid() bool {
	return s == SourceManual || s == SourceExternal
}
