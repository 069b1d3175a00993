package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"innkeeper/internal/calendar"
	"innkeeper/internal/domain"
	"innkeeper/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type reader struct {
	q querier
}

type rowScanner interface {
	Scan(dest ...any) error
}

const roomTypeColumns = `id, owner_id, name, base_price, amenities, total_quantity, created_at, updated_at`

func scanRoomType(s rowScanner) (*models.RoomType, error) {
	var rt models.RoomType
	var amenities string
	if err := s.Scan(&rt.ID, &rt.OwnerID, &rt.Name, &rt.BasePrice, &amenities,
		&rt.TotalQuantity, &rt.CreatedAt, &rt.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(amenities), &rt.Amenities); err != nil {
		return nil, fmt.Errorf("decode amenities of %s: %w", rt.ID, err)
	}
	if rt.Amenities == nil {
		rt.Amenities = []string{}
	}
	return &rt, nil
}

func (r reader) GetRoomType(ctx context.Context, id string) (*models.RoomType, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+roomTypeColumns+` FROM room_types WHERE id = ?`, id)
	rt, err := scanRoomType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("room type %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get room type: %w", err)
	}
	return rt, nil
}

// ListRoomTypes returns all room types, or those of one owner when ownerID is set.
func (r reader) ListRoomTypes(ctx context.Context, ownerID string) ([]models.RoomType, error) {
	query := `SELECT ` + roomTypeColumns + ` FROM room_types`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY name, id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list room types: %w", err)
	}
	defer rows.Close()

	var types []models.RoomType
	for rows.Next() {
		rt, err := scanRoomType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, *rt)
	}
	return types, rows.Err()
}

const instanceColumns = `id, room_type_id, room_number, base_status, version, created_at, updated_at`

func scanInstance(s rowScanner) (*models.RoomInstance, error) {
	var ri models.RoomInstance
	var status string
	if err := s.Scan(&ri.ID, &ri.RoomTypeID, &ri.RoomNumber, &status, &ri.Version,
		&ri.CreatedAt, &ri.UpdatedAt); err != nil {
		return nil, err
	}
	ri.BaseStatus = models.Status(status)
	ri.Overrides = make(models.OverrideMap)
	return &ri, nil
}

func (r reader) GetRoomInstance(ctx context.Context, id string) (*models.RoomInstance, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM room_instances WHERE id = ?`, id)
	ri, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("room instance %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get room instance: %w", err)
	}

	byID := map[string]*models.RoomInstance{ri.ID: ri}
	if err := r.loadOverrides(ctx, `WHERE instance_id = ?`, []any{id}, byID); err != nil {
		return nil, err
	}
	return ri, nil
}

// ListRoomInstances returns the instances of a room type with their overrides,
// ordered by room number.
func (r reader) ListRoomInstances(ctx context.Context, roomTypeID string) ([]*models.RoomInstance, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM room_instances WHERE room_type_id = ?
		 ORDER BY LENGTH(room_number), room_number, id`, roomTypeID)
	if err != nil {
		return nil, fmt.Errorf("list room instances: %w", err)
	}

	var list []*models.RoomInstance
	byID := make(map[string]*models.RoomInstance)
	for rows.Next() {
		ri, err := scanInstance(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, ri)
		byID[ri.ID] = ri
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(list) == 0 {
		return list, nil
	}
	err = r.loadOverrides(ctx,
		`WHERE instance_id IN (SELECT id FROM room_instances WHERE room_type_id = ?)`,
		[]any{roomTypeID}, byID)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r reader) loadOverrides(ctx context.Context, where string, args []any, byID map[string]*models.RoomInstance) error {
	rows, err := r.q.QueryContext(ctx,
		`SELECT instance_id, date_key, status, price, booking_code FROM room_overrides `+where, args...)
	if err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			instanceID, dateKey string
			status, code        sql.NullString
			price               decimal.NullDecimal
		)
		if err := rows.Scan(&instanceID, &dateKey, &status, &price, &code); err != nil {
			return err
		}
		ri, ok := byID[instanceID]
		if !ok {
			continue
		}
		var o models.Override
		if status.Valid {
			o.Status = models.Some(models.Status(status.String))
		}
		if price.Valid {
			o.Price = models.Some(price.Decimal)
		}
		if code.Valid {
			o.BookingCode = models.Some(code.String)
		}
		ri.Overrides[calendar.DateKey(dateKey)] = o
	}
	return rows.Err()
}

// txStore is the write side, bound to one *sql.Tx.
type txStore struct {
	reader
	tx *sql.Tx
}

var _ domain.Tx = (*txStore)(nil)

func (t *txStore) InsertRoomType(ctx context.Context, rt *models.RoomType) error {
	amenities, err := json.Marshal(nonNil(rt.Amenities))
	if err != nil {
		return err
	}
	now := time.Now()
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO room_types (id, owner_id, name, base_price, amenities, total_quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.ID, rt.OwnerID, rt.Name, rt.BasePrice, string(amenities), rt.TotalQuantity, now, now)
	if err != nil {
		return fmt.Errorf("insert room type: %w", err)
	}
	rt.CreatedAt, rt.UpdatedAt = now, now
	return nil
}

func (t *txStore) UpdateRoomType(ctx context.Context, rt *models.RoomType) error {
	amenities, err := json.Marshal(nonNil(rt.Amenities))
	if err != nil {
		return err
	}
	now := time.Now()
	res, err := t.tx.ExecContext(ctx, `
		UPDATE room_types SET owner_id = ?, name = ?, base_price = ?, amenities = ?, total_quantity = ?, updated_at = ?
		WHERE id = ?`,
		rt.OwnerID, rt.Name, rt.BasePrice, string(amenities), rt.TotalQuantity, now, rt.ID)
	if err != nil {
		return fmt.Errorf("update room type: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("room type %s", rt.ID)
	}
	rt.UpdatedAt = now
	return nil
}

// DeleteRoomType cascades to instances and their overrides.
func (t *txStore) DeleteRoomType(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM room_types WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete room type: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("room type %s", id)
	}
	return nil
}

func (t *txStore) InsertRoomInstance(ctx context.Context, ri *models.RoomInstance) error {
	now := time.Now()
	if ri.Version == 0 {
		ri.Version = 1
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO room_instances (id, room_type_id, room_number, base_status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ri.ID, ri.RoomTypeID, ri.RoomNumber, string(ri.BaseStatus), ri.Version, now, now)
	if err != nil {
		return fmt.Errorf("insert room instance: %w", err)
	}
	ri.CreatedAt, ri.UpdatedAt = now, now
	if ri.Overrides == nil {
		ri.Overrides = make(models.OverrideMap)
	}
	return t.writeOverrides(ctx, ri)
}

func (t *txStore) UpdateRoomNumber(ctx context.Context, id, roomNumber string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE room_instances SET room_number = ?, updated_at = ? WHERE id = ?`,
		roomNumber, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update room number: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFoundf("room instance %s", id)
	}
	return nil
}

func (t *txStore) SaveRoomInstance(ctx context.Context, ri *models.RoomInstance) error {
	now := time.Now()
	res, err := t.tx.ExecContext(ctx, `
		UPDATE room_instances SET base_status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(ri.BaseStatus), now, ri.ID, ri.Version)
	if err != nil {
		return fmt.Errorf("save room instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := t.GetRoomInstance(ctx, ri.ID); err != nil {
			return err
		}
		return fmt.Errorf("room instance %s: %w", ri.ID, domain.ErrConcurrentModification)
	}

	if err := t.writeOverrides(ctx, ri); err != nil {
		return err
	}
	ri.Version++
	ri.UpdatedAt = now
	return nil
}

// writeOverrides upserts or deletes each dirty date key on its own, so
// unrelated dates of the same instance are never rewritten.
func (t *txStore) writeOverrides(ctx context.Context, ri *models.RoomInstance) error {
	now := time.Now()
	for _, key := range ri.DirtyKeys() {
		o, ok := ri.Overrides[key]
		if !ok || o.IsEmpty() {
			if _, err := t.tx.ExecContext(ctx,
				`DELETE FROM room_overrides WHERE instance_id = ? AND date_key = ?`,
				ri.ID, string(key)); err != nil {
				return fmt.Errorf("delete override %s/%s: %w", ri.ID, key, err)
			}
			continue
		}

		var status, code sql.NullString
		var price decimal.NullDecimal
		if s, ok := o.Status.Get(); ok {
			status = sql.NullString{String: string(s), Valid: true}
		}
		if c, ok := o.BookingCode.Get(); ok {
			code = sql.NullString{String: c, Valid: true}
		}
		if p, ok := o.Price.Get(); ok {
			price = decimal.NullDecimal{Decimal: p, Valid: true}
		}

		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO room_overrides (instance_id, date_key, status, price, booking_code, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(instance_id, date_key) DO UPDATE SET
				status = excluded.status,
				price = excluded.price,
				booking_code = excluded.booking_code,
				updated_at = excluded.updated_at`,
			ri.ID, string(key), status, price, code, now)
		if err != nil {
			return fmt.Errorf("upsert override %s/%s: %w", ri.ID, key, err)
		}
	}
	ri.ResetDirty()
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
