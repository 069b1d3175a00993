// Package overrides maintains the sparse per-date override map of a room instance.
//
// Every mutation leaves the map minimal: an entry whose status equals the
// date's natural status and carries no booking code has that status removed,
// and an entry with no fields left is deleted. Price overrides are kept
// independently of status.
package overrides

import (
	"fmt"

	"innkeeper/internal/availability"
	"innkeeper/internal/calendar"
	"innkeeper/internal/domain"
	"innkeeper/internal/models"
)

type Store struct {
	resolver *availability.Resolver
}

func New(resolver *availability.Resolver) *Store {
	return &Store{resolver: resolver}
}

// Apply merges patch into the entry for date and drops whatever became redundant.
func (s *Store) Apply(inst *models.RoomInstance, date calendar.DateKey, patch models.OverridePatch) {
	s.apply(inst, date, patch, s.resolver.Today())
}

func (s *Store) apply(inst *models.RoomInstance, date calendar.DateKey, patch models.OverridePatch, today calendar.DateKey) {
	cur, _ := inst.Override(date)
	merged := patch.Merge(cur)
	inst.PutOverride(date, minimal(inst, date, merged, today))
}

// ClearIfDefault removes redundant fields of the entry for date, if any.
func (s *Store) ClearIfDefault(inst *models.RoomInstance, date calendar.DateKey) {
	s.clearIfDefault(inst, date, s.resolver.Today())
}

func (s *Store) clearIfDefault(inst *models.RoomInstance, date calendar.DateKey, today calendar.DateKey) {
	cur, ok := inst.Override(date)
	if !ok {
		return
	}
	if next := minimal(inst, date, cur, today); !next.Equal(cur) {
		inst.PutOverride(date, next)
	}
}

func minimal(inst *models.RoomInstance, date calendar.DateKey, o models.Override, today calendar.DateKey) models.Override {
	st, hasStatus := o.Status.Get()
	hasCode := o.BookingCode.IsSet()

	if hasStatus && !hasCode && st == availability.NaturalStatus(inst, date, today) {
		o.Status = models.None[models.Status]()
		hasStatus = false
	}
	// A code only means something next to the status it holds.
	if hasCode && !hasStatus {
		o.BookingCode = models.None[string]()
	}
	return o
}

// SetStatus is the operator-facing status change for one date.
//
// For today the base status is changed, so the change does not linger as an
// override once the day passes; an existing entry for today is updated too,
// otherwise it would keep shadowing the new base status. Other dates get an
// override. A date held by a reservation cannot be given a status that does
// not hold a reservation, nor be taken over by another code.
func (s *Store) SetStatus(inst *models.RoomInstance, date calendar.DateKey, status models.Status, bookingCode string) error {
	if !status.Valid() {
		return domain.Invalid("status", fmt.Sprintf("unknown status %q", status))
	}
	if bookingCode != "" && !status.HoldsReservation() {
		return domain.Invalid("bookingCode", "booking code requires status booked or occupied")
	}

	cur, exists := inst.Override(date)
	if code, held := cur.BookingCode.Get(); exists && held {
		if !status.HoldsReservation() {
			return fmt.Errorf("%s is held by %s: %w", date, code, domain.ErrConflict)
		}
		if bookingCode != "" && bookingCode != code {
			return fmt.Errorf("%s is held by %s: %w", date, code, domain.ErrConflict)
		}
	}

	today := s.resolver.Today()
	patch := models.OverridePatch{Status: models.Set(status)}
	if bookingCode != "" {
		patch.BookingCode = models.Set(bookingCode)
	}

	if date == today {
		inst.SetBaseStatus(status)
		if exists || bookingCode != "" {
			s.apply(inst, date, patch, today)
		}
		// Closing or reopening the instance moves the natural status of every other date.
		if inst.BaseStatusDirty() {
			s.sweep(inst, today)
		}
		return nil
	}
	s.apply(inst, date, patch, today)
	return nil
}

// Stamp writes status and code on every date.
func (s *Store) Stamp(inst *models.RoomInstance, dates []calendar.DateKey, status models.Status, code string) {
	today := s.resolver.Today()
	patch := models.OverridePatch{
		Status:      models.Set(status),
		BookingCode: models.Set(code),
	}
	for _, d := range dates {
		s.apply(inst, d, patch, today)
	}
}

// Restamp changes the status of the dates that still carry code. It returns
// how many dates were rewritten.
func (s *Store) Restamp(inst *models.RoomInstance, dates []calendar.DateKey, code string, status models.Status) int {
	today := s.resolver.Today()
	n := 0
	for _, d := range dates {
		if o, ok := inst.Override(d); ok && o.HasCode(code) {
			s.apply(inst, d, models.OverridePatch{Status: models.Set(status)}, today)
			n++
		}
	}
	return n
}

// ClearFootprint removes status and code from the dates that carry code.
// Entries of other reservations and price overrides are left as they are.
func (s *Store) ClearFootprint(inst *models.RoomInstance, dates []calendar.DateKey, code string) int {
	today := s.resolver.Today()
	patch := models.OverridePatch{
		Status:      models.Unset[models.Status](),
		BookingCode: models.Unset[string](),
	}
	n := 0
	for _, d := range dates {
		if o, ok := inst.Override(d); ok && o.HasCode(code) {
			s.apply(inst, d, patch, today)
			n++
		}
	}
	return n
}

func (s *Store) sweep(inst *models.RoomInstance, today calendar.DateKey) {
	keys := make([]calendar.DateKey, 0, len(inst.Overrides))
	for d := range inst.Overrides {
		keys = append(keys, d)
	}
	for _, d := range keys {
		s.clearIfDefault(inst, d, today)
	}
}

// Redundant returns the dates whose entries are not minimal. Used by checks and tests.
func (s *Store) Redundant(inst *models.RoomInstance) []calendar.DateKey {
	today := s.resolver.Today()
	var out []calendar.DateKey
	for d, o := range inst.Overrides {
		if o.IsEmpty() || !minimal(inst, d, o, today).Equal(o) {
			out = append(out, d)
		}
	}
	return out
}
