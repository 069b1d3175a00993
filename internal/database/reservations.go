package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"innkeeper/internal/calendar"
	"innkeeper/internal/domain"
	"innkeeper/internal/models"
)

const reservationColumns = `id, booking_code, room_type_id, room_instance_id, guest_name, guest_phone,
	guest_count, check_in, check_out, nights, total_price, payment_status, source, status,
	version, created_at, updated_at`

func scanReservation(s rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var checkIn, checkOut, payment, source, status string
	err := s.Scan(&r.ID, &r.BookingCode, &r.RoomTypeID, &r.RoomInstanceID, &r.GuestName, &r.GuestPhone,
		&r.GuestCount, &checkIn, &checkOut, &r.Nights, &r.TotalPrice, &payment, &source, &status,
		&r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.CheckIn = calendar.DateKey(checkIn)
	r.CheckOut = calendar.DateKey(checkOut)
	r.PaymentStatus = models.PaymentStatus(payment)
	r.Source = models.Source(source)
	r.Status = models.ReservationStatus(status)
	return &r, nil
}

func (r reader) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("reservation %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// GetReservationByCode uses the unique code index. A missing code is nil, nil.
func (r reader) GetReservationByCode(ctx context.Context, code string) (*models.Reservation, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE booking_code = ?`, code)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation by code: %w", err)
	}
	return res, nil
}

func (r reader) ListReservations(ctx context.Context, f domain.ReservationFilter) ([]models.Reservation, error) {
	var (
		where []string
		args  []any
	)
	if f.RoomInstanceID != "" {
		where = append(where, "room_instance_id = ?")
		args = append(args, f.RoomInstanceID)
	}
	if f.RoomTypeID != "" {
		where = append(where, "room_type_id = ?")
		args = append(args, f.RoomTypeID)
	}
	// Half-open overlap: check_in < to AND from < check_out.
	if !f.To.IsZero() {
		where = append(where, "check_in < ?")
		args = append(args, string(f.To))
	}
	if !f.From.IsZero() {
		where = append(where, "check_out > ?")
		args = append(args, string(f.From))
	}
	if f.ActiveOnly {
		where = append(where, "status IN (?, ?)")
		args = append(args, string(models.ReservationBooked), string(models.ReservationOccupied))
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY check_in, booking_code`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var list []models.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *res)
	}
	return list, rows.Err()
}

func (t *txStore) BookingCodeExists(ctx context.Context, code string) (bool, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE booking_code = ?`, code).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check booking code: %w", err)
	}
	return count > 0, nil
}

func (t *txStore) InsertReservation(ctx context.Context, r *models.Reservation) error {
	now := time.Now()
	if r.Version == 0 {
		r.Version = 1
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO reservations (`+reservationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.BookingCode, r.RoomTypeID, r.RoomInstanceID, r.GuestName, r.GuestPhone,
		r.GuestCount, string(r.CheckIn), string(r.CheckOut), r.Nights, r.TotalPrice,
		string(r.PaymentStatus), string(r.Source), string(r.Status), r.Version, now, now)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	r.CreatedAt, r.UpdatedAt = now, now
	return nil
}

func (t *txStore) UpdateReservation(ctx context.Context, r *models.Reservation) error {
	now := time.Now()
	res, err := t.tx.ExecContext(ctx, `
		UPDATE reservations SET
			room_type_id = ?, room_instance_id = ?, guest_name = ?, guest_phone = ?, guest_count = ?,
			check_in = ?, check_out = ?, nights = ?, total_price = ?, payment_status = ?, status = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		r.RoomTypeID, r.RoomInstanceID, r.GuestName, r.GuestPhone, r.GuestCount,
		string(r.CheckIn), string(r.CheckOut), r.Nights, r.TotalPrice, string(r.PaymentStatus), string(r.Status),
		now, r.ID, r.Version)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := t.GetReservation(ctx, r.ID); err != nil {
			return err
		}
		return fmt.Errorf("reservation %s: %w", r.ID, domain.ErrConcurrentModification)
	}
	r.Version++
	r.UpdatedAt = now
	return nil
}
