package models

import (
	"time"

	"github.com/shopspring/decimal"

	"innkeeper/internal/calendar"
)

// Reservation is a stay on one room instance for the nights [CheckIn, CheckOut).
type Reservation struct {
	ID             string            `json:"id"`
	BookingCode    string            `json:"bookingCode"`
	RoomTypeID     string            `json:"roomTypeId"`
	RoomInstanceID string            `json:"roomInstanceId"`
	GuestName      string            `json:"guestName"`
	GuestPhone     string            `json:"guestPhone"`
	GuestCount     int               `json:"guestCount"`
	CheckIn        calendar.DateKey  `json:"checkInDate"`
	CheckOut       calendar.DateKey  `json:"checkOutDate"` // exclusive
	Nights         int               `json:"nights"`
	TotalPrice     decimal.Decimal   `json:"totalPrice"`
	PaymentStatus  PaymentStatus     `json:"paymentStatus"`
	Source         Source            `json:"source"`
	Status         ReservationStatus `json:"status"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Footprint returns the date keys the reservation occupies.
func (r *Reservation) Footprint() []calendar.DateKey {
	return calendar.Range(r.CheckIn, r.CheckOut)
}

// Active reports whether the reservation still holds its room.
func (r *Reservation) Active() bool {
	return r.Status == ReservationBooked || r.Status == ReservationOccupied
}

func (r *Reservation) ContainsDate(d calendar.DateKey) bool {
	return calendar.Contains(r.CheckIn, r.CheckOut, d)
}

// OverlapsRange uses half-open semantics: [a, b) and [c, d) overlap if a < d && c < b.
func (r *Reservation) OverlapsRange(from, to calendar.DateKey) bool {
	return r.CheckIn.Before(to) && from.Before(r.CheckOut)
}
