package database

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"innkeeper/internal/calendar"
	"innkeeper/internal/config"
	"innkeeper/internal/domain"
	"innkeeper/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedRoom(t *testing.T, db *DB) (*models.RoomType, *models.RoomInstance) {
	t.Helper()
	ctx := context.Background()
	rt := &models.RoomType{
		ID:            "type-1",
		OwnerID:       "owner-1",
		Name:          "Deluxe",
		BasePrice:     decimal.NewFromInt(150000),
		Amenities:     []string{"wifi", "balcony"},
		TotalQuantity: 1,
	}
	ri := &models.RoomInstance{ID: "inst-1", RoomTypeID: rt.ID, RoomNumber: "101", BaseStatus: models.StatusAvailable}
	require.NoError(t, db.InTx(ctx, func(tx domain.Tx) error {
		if err := tx.InsertRoomType(ctx, rt); err != nil {
			return err
		}
		return tx.InsertRoomInstance(ctx, ri)
	}))
	return rt, ri
}

func TestRoomTypes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	rt, _ := seedRoom(t, db)

	got, err := db.GetRoomType(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Deluxe", got.Name)
	assert.True(t, got.BasePrice.Equal(decimal.NewFromInt(150000)))
	assert.Equal(t, []string{"wifi", "balcony"}, got.Amenities)

	list, err := db.ListRoomTypes(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = db.ListRoomTypes(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = db.GetRoomType(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSaveRoomInstance_PersistsDirtyKeysOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, _ = seedRoom(t, db)

	require.NoError(t, db.InTx(ctx, func(tx domain.Tx) error {
		ri, err := tx.GetRoomInstance(ctx, "inst-1")
		if err != nil {
			return err
		}
		ri.PutOverride("2025-06-10", models.Override{
			Status:      models.Some(models.StatusBooked),
			BookingCode: models.Some("RES-1234"),
		})
		ri.PutOverride("2025-06-11", models.Override{Price: models.Some(decimal.RequireFromString("99.50"))})
		return tx.SaveRoomInstance(ctx, ri)
	}))

	ri, err := db.GetRoomInstance(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), ri.Version)
	require.Len(t, ri.Overrides, 2)
	o := ri.Overrides["2025-06-10"]
	assert.True(t, o.HasCode("RES-1234"))
	assert.Equal(t, models.Some(models.StatusBooked), o.Status)
	p, ok := ri.Overrides["2025-06-11"].Price.Get()
	require.True(t, ok)
	assert.True(t, p.Equal(decimal.RequireFromString("99.5")))

	// Delete one key, leave the other untouched.
	require.NoError(t, db.InTx(ctx, func(tx domain.Tx) error {
		ri, err := tx.GetRoomInstance(ctx, "inst-1")
		if err != nil {
			return err
		}
		ri.DeleteOverride("2025-06-10")
		ri.SetBaseStatus(models.StatusMaintenance)
		return tx.SaveRoomInstance(ctx, ri)
	}))

	ri, err = db.GetRoomInstance(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusMaintenance, ri.BaseStatus)
	assert.Len(t, ri.Overrides, 1)
	_, ok = ri.Overrides["2025-06-11"]
	assert.True(t, ok)
}

func TestSaveRoomInstance_VersionMismatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, _ = seedRoom(t, db)

	stale, err := db.GetRoomInstance(ctx, "inst-1")
	require.NoError(t, err)

	require.NoError(t, db.InTx(ctx, func(tx domain.Tx) error {
		ri, err := tx.GetRoomInstance(ctx, "inst-1")
		if err != nil {
			return err
		}
		ri.SetBaseStatus(models.StatusClosed)
		return tx.SaveRoomInstance(ctx, ri)
	}))

	err = db.InTx(ctx, func(tx domain.Tx) error {
		stale.SetBaseStatus(models.StatusMaintenance)
		return tx.SaveRoomInstance(ctx, stale)
	})
	assert.True(t, errors.Is(err, domain.ErrConcurrentModification))
	assert.True(t, errors.Is(err, domain.ErrTransactionFailure))

	err = db.InTx(ctx, func(tx domain.Tx) error {
		return tx.SaveRoomInstance(ctx, &models.RoomInstance{ID: "ghost", Version: 1})
	})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func reservation(code string, in, out string) *models.Reservation {
	return &models.Reservation{
		ID:             "res-" + code,
		BookingCode:    code,
		RoomTypeID:     "type-1",
		RoomInstanceID: "inst-1",
		GuestName:      "Ivan",
		GuestPhone:     "+70000000000",
		GuestCount:     2,
		CheckIn:        calendar.DateKey(in),
		CheckOut:       calendar.DateKey(out),
		Nights:         calendar.DaysBetween(calendar.DateKey(in), calendar.DateKey(out)),
		TotalPrice:     decimal.NewFromInt(300000),
		PaymentStatus:  models.PaymentUnpaid,
		Source:         models.SourceManual,
		Status:         models.ReservationBooked,
	}
}

func TestReservations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, _ = seedRoom(t, db)

	r1 := reservation("RES-0001", "2025-06-10", "2025-06-12")
	r2 := reservation("RES-0002", "2025-06-12", "2025-06-14")
	require.NoError(t, db.InTx(ctx, func(tx domain.Tx) error {
		if err := tx.InsertReservation(ctx, r1); err != nil {
			return err
		}
		exists, err := tx.BookingCodeExists(ctx, "RES-0001")
		if err != nil {
			return err
		}
		assert.True(t, exists)
		return tx.InsertReservation(ctx, r2)
	}))

	got, err := db.GetReservationByCode(ctx, "RES-0002")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r2.ID, got.ID)
	assert.Equal(t, calendar.DateKey("2025-06-12"), got.CheckIn)
	assert.Equal(t, 2, got.Nights)

	missing, err := db.GetReservationByCode(ctx, "RES-9999")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	_, err = db.GetReservation(ctx, "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	list, err := db.ListReservations(ctx, domain.ReservationFilter{
		RoomInstanceID: "inst-1",
		From:           "2025-06-11",
		To:             "2025-06-12",
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "RES-0001", list[0].BookingCode)

	// CAS update.
	got.Status = models.ReservationCancelled
	require.NoError(t, db.InTx(ctx, func(tx domain.Tx) error { return tx.UpdateReservation(ctx, got) }))
	assert.Equal(t, int64(2), got.Version)

	stale := *got
	stale.Version = 1
	err = db.InTx(ctx, func(tx domain.Tx) error { return tx.UpdateReservation(ctx, &stale) })
	assert.True(t, errors.Is(err, domain.ErrConcurrentModification))

	active, err := db.ListReservations(ctx, domain.ReservationFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestInTx_RollsBackEverything(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, _ = seedRoom(t, db)

	boom := errors.New("boom")
	err := db.InTx(ctx, func(tx domain.Tx) error {
		if err := tx.InsertReservation(ctx, reservation("RES-0001", "2025-06-10", "2025-06-12")); err != nil {
			return err
		}
		ri, err := tx.GetRoomInstance(ctx, "inst-1")
		if err != nil {
			return err
		}
		ri.PutOverride("2025-06-10", models.Override{Status: models.Some(models.StatusBooked), BookingCode: models.Some("RES-0001")})
		if err := tx.SaveRoomInstance(ctx, ri); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := db.GetReservationByCode(ctx, "RES-0001")
	require.NoError(t, err)
	assert.Nil(t, got)
	ri, err := db.GetRoomInstance(ctx, "inst-1")
	require.NoError(t, err)
	assert.Empty(t, ri.Overrides)
	assert.Equal(t, int64(1), ri.Version)
}

func TestInTx_DuplicateCodeIsTransactionFailure(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, _ = seedRoom(t, db)

	require.NoError(t, db.InTx(ctx, func(tx domain.Tx) error {
		return tx.InsertReservation(ctx, reservation("RES-0001", "2025-06-10", "2025-06-12"))
	}))

	dup := reservation("RES-0001", "2025-07-10", "2025-07-12")
	dup.ID = "other"
	err := db.InTx(ctx, func(tx domain.Tx) error { return tx.InsertReservation(ctx, dup) })
	assert.True(t, errors.Is(err, domain.ErrTransactionFailure))
}

func TestDeleteRoomType_Cascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, _ = seedRoom(t, db)

	require.NoError(t, db.InTx(ctx, func(tx domain.Tx) error {
		ri, err := tx.GetRoomInstance(ctx, "inst-1")
		if err != nil {
			return err
		}
		ri.PutOverride("2025-06-10", models.Override{Status: models.Some(models.StatusClosed)})
		return tx.SaveRoomInstance(ctx, ri)
	}))

	require.NoError(t, db.InTx(ctx, func(tx domain.Tx) error { return tx.DeleteRoomType(ctx, "type-1") }))

	_, err := db.GetRoomInstance(ctx, "inst-1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM room_overrides`).Scan(&n))
	assert.Zero(t, n)

	err = db.InTx(ctx, func(tx domain.Tx) error { return tx.DeleteRoomType(ctx, "type-1") })
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDeleteStaleOverrides(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, _ = seedRoom(t, db)

	require.NoError(t, db.InTx(ctx, func(tx domain.Tx) error {
		ri, err := tx.GetRoomInstance(ctx, "inst-1")
		if err != nil {
			return err
		}
		ri.PutOverride("2025-01-01", models.Override{Status: models.Some(models.StatusClosed)})
		ri.PutOverride("2025-01-02", models.Override{Status: models.Some(models.StatusBooked), BookingCode: models.Some("RES-1")})
		ri.PutOverride("2025-06-01", models.Override{Status: models.Some(models.StatusClosed)})
		return tx.SaveRoomInstance(ctx, ri)
	}))

	n, err := db.DeleteStaleOverrides(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ri, err := db.GetRoomInstance(ctx, "inst-1")
	require.NoError(t, err)
	assert.Len(t, ri.Overrides, 2)
}

func TestGetTableData(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, _ = seedRoom(t, db)

	rows, cols, err := db.GetTableData(ctx, "room_types")
	require.NoError(t, err)
	assert.Contains(t, cols, "base_price")
	require.Len(t, rows, 1)
	assert.Equal(t, "Deluxe", rows[0]["name"])

	_, _, err = db.GetTableData(ctx, "sqlite_master; DROP TABLE reservations")
	assert.Error(t, err)
}

func TestBackupService(t *testing.T) {
	db := newTestDB(t)
	_, _ = seedRoom(t, db)
	logger := zerolog.New(io.Discard)
	dir := filepath.Join(t.TempDir(), "backups")

	svc := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}, &logger)
	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	old := filepath.Join(dir, "backup_20000101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	assert.Equal(t, 1, svc.CleanupOldBackups())
	_, err = os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
