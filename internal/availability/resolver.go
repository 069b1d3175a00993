// Package availability computes the effective status and price of a room instance on a date.
package availability

import (
	"github.com/shopspring/decimal"

	"innkeeper/internal/calendar"
	"innkeeper/internal/models"
)

// Resolution is the effective state of one instance on one date.
type Resolution struct {
	Date        calendar.DateKey `json:"date"`
	Status      models.Status    `json:"status"`
	Price       decimal.Decimal  `json:"price"`
	BookingCode string           `json:"bookingCode,omitempty"`
}

// Resolver is side-effect free. The clock only decides which day is today.
type Resolver struct {
	clock calendar.Clock
}

func NewResolver(clock calendar.Clock) *Resolver {
	return &Resolver{clock: clock}
}

func (r *Resolver) Today() calendar.DateKey {
	return calendar.Today(r.clock)
}

// NaturalStatus is the status of a date with no override: the base status
// for today, otherwise available unless the instance is closed.
func NaturalStatus(inst *models.RoomInstance, date, today calendar.DateKey) models.Status {
	if date == today {
		return inst.BaseStatus
	}
	if inst.BaseStatus == models.StatusClosed {
		return models.StatusClosed
	}
	return models.StatusAvailable
}

func (r *Resolver) NaturalStatus(inst *models.RoomInstance, date calendar.DateKey) models.Status {
	return NaturalStatus(inst, date, r.Today())
}

// Resolve returns the override fields where present, falling back to the
// natural status and the room type's base price.
func (r *Resolver) Resolve(inst *models.RoomInstance, basePrice decimal.Decimal, date calendar.DateKey) Resolution {
	return resolveAt(inst, basePrice, date, r.Today())
}

// ResolveRange resolves every date in [from, to) against a single reading of the clock.
func (r *Resolver) ResolveRange(inst *models.RoomInstance, basePrice decimal.Decimal, from, to calendar.DateKey) []Resolution {
	today := r.Today()
	days := calendar.Range(from, to)
	out := make([]Resolution, 0, len(days))
	for _, d := range days {
		out = append(out, resolveAt(inst, basePrice, d, today))
	}
	return out
}

func resolveAt(inst *models.RoomInstance, basePrice decimal.Decimal, date, today calendar.DateKey) Resolution {
	res := Resolution{
		Date:   date,
		Status: NaturalStatus(inst, date, today),
		Price:  basePrice,
	}
	o, ok := inst.Override(date)
	if !ok {
		return res
	}
	res.Status = o.Status.OrElse(res.Status)
	res.Price = o.Price.OrElse(res.Price)
	res.BookingCode = o.BookingCode.OrElse("")
	return res
}

// Free reports whether every date in dates resolves to available, treating
// dates held by ignoreCode as free. It returns the first blocking date.
func (r *Resolver) Free(inst *models.RoomInstance, dates []calendar.DateKey, ignoreCode string) (bool, calendar.DateKey) {
	today := r.Today()
	for _, d := range dates {
		if ignoreCode != "" {
			if o, ok := inst.Override(d); ok && o.HasCode(ignoreCode) {
				continue
			}
		}
		if st := resolveAt(inst, decimal.Zero, d, today).Status; st != models.StatusAvailable {
			return false, d
		}
	}
	return true, ""
}
