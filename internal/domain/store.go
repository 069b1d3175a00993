package domain

import (
	"context"

	"innkeeper/internal/calendar"
	"innkeeper/internal/models"
)

// ReservationFilter selects reservations. Empty fields match everything.
type ReservationFilter struct {
	RoomInstanceID string
	RoomTypeID     string
	From, To       calendar.DateKey // overlap window [From, To)
	ActiveOnly     bool
}

// Reader is the read side shared by the store and an open transaction.
// Missing rows are reported as ErrNotFound, except GetReservationByCode
// which returns nil, nil.
type Reader interface {
	GetRoomType(ctx context.Context, id string) (*models.RoomType, error)
	ListRoomTypes(ctx context.Context, ownerID string) ([]models.RoomType, error)
	GetRoomInstance(ctx context.Context, id string) (*models.RoomInstance, error)
	ListRoomInstances(ctx context.Context, roomTypeID string) ([]*models.RoomInstance, error)
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	GetReservationByCode(ctx context.Context, code string) (*models.Reservation, error)
	ListReservations(ctx context.Context, f ReservationFilter) ([]models.Reservation, error)
}

// Tx is one atomic unit of work. Writes are visible to its own reads.
type Tx interface {
	Reader

	BookingCodeExists(ctx context.Context, code string) (bool, error)

	InsertRoomType(ctx context.Context, rt *models.RoomType) error
	UpdateRoomType(ctx context.Context, rt *models.RoomType) error
	DeleteRoomType(ctx context.Context, id string) error

	InsertRoomInstance(ctx context.Context, ri *models.RoomInstance) error
	UpdateRoomNumber(ctx context.Context, id, roomNumber string) error
	// SaveRoomInstance persists the base status and the dirty override keys,
	// bumping the version. It fails with ErrConcurrentModification when the
	// stored version differs from ri.Version.
	SaveRoomInstance(ctx context.Context, ri *models.RoomInstance) error

	InsertReservation(ctx context.Context, r *models.Reservation) error
	// UpdateReservation is a compare-and-swap on r.Version.
	UpdateReservation(ctx context.Context, r *models.Reservation) error
}

// Store runs units of work. fn's error rolls everything back.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
