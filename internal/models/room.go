package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"innkeeper/internal/calendar"
)

// RoomType is a bookable category owned by a hotel operator.
type RoomType struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"ownerId"`
	Name          string          `json:"name"`
	BasePrice     decimal.Decimal `json:"basePrice"`
	Amenities     []string        `json:"amenities"`
	TotalQuantity int             `json:"totalQuantity"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Override is a date-scoped exception to an instance's base state.
type Override struct {
	Status      Opt[Status]          `json:"status,omitzero"`
	Price       Opt[decimal.Decimal] `json:"price,omitzero"`
	BookingCode Opt[string]          `json:"bookingCode,omitzero"`
}

func (o Override) IsEmpty() bool {
	return !o.Status.IsSet() && !o.Price.IsSet() && !o.BookingCode.IsSet()
}

// Equal compares field by field; prices compare numerically.
func (o Override) Equal(other Override) bool {
	if o.Status != other.Status || o.BookingCode != other.BookingCode {
		return false
	}
	p1, ok1 := o.Price.Get()
	p2, ok2 := other.Price.Get()
	if ok1 != ok2 {
		return false
	}
	return !ok1 || p1.Equal(p2)
}

// HasCode reports whether the entry carries the given booking code.
func (o Override) HasCode(code string) bool {
	c, ok := o.BookingCode.Get()
	return ok && c == code
}

// OverridePatch describes changes to one override entry.
type OverridePatch struct {
	Status      Field[Status]
	Price       Field[decimal.Decimal]
	BookingCode Field[string]
}

// Merge applies the patch on top of o.
func (p OverridePatch) Merge(o Override) Override {
	return Override{
		Status:      p.Status.Apply(o.Status),
		Price:       p.Price.Apply(o.Price),
		BookingCode: p.BookingCode.Apply(o.BookingCode),
	}
}

// OverrideMap is the sparse per-date override map of one instance.
type OverrideMap map[calendar.DateKey]Override

// RoomInstance is one physical room of a RoomType.
//
// Mutations made through PutOverride, DeleteOverride and SetBaseStatus are
// tracked so the store can persist only the touched date keys.
type RoomInstance struct {
	ID         string      `json:"id"`
	RoomTypeID string      `json:"roomTypeId"`
	RoomNumber string      `json:"roomNumber"`
	BaseStatus Status      `json:"baseStatus"`
	Overrides  OverrideMap `json:"overrides"`
	Version    int64       `json:"version"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`

	dirty     map[calendar.DateKey]struct{}
	baseDirty bool
}

func (ri *RoomInstance) Override(key calendar.DateKey) (Override, bool) {
	o, ok := ri.Overrides[key]
	return o, ok
}

// PutOverride stores o at key. An empty override deletes the entry.
func (ri *RoomInstance) PutOverride(key calendar.DateKey, o Override) {
	if o.IsEmpty() {
		ri.DeleteOverride(key)
		return
	}
	if ri.Overrides == nil {
		ri.Overrides = make(OverrideMap)
	}
	ri.Overrides[key] = o
	ri.markDirty(key)
}

func (ri *RoomInstance) DeleteOverride(key calendar.DateKey) {
	if _, ok := ri.Overrides[key]; !ok {
		return
	}
	delete(ri.Overrides, key)
	ri.markDirty(key)
}

func (ri *RoomInstance) SetBaseStatus(s Status) {
	if ri.BaseStatus == s {
		return
	}
	ri.BaseStatus = s
	ri.baseDirty = true
}

func (ri *RoomInstance) markDirty(key calendar.DateKey) {
	if ri.dirty == nil {
		ri.dirty = make(map[calendar.DateKey]struct{})
	}
	ri.dirty[key] = struct{}{}
}

// DirtyKeys returns the touched date keys in ascending order.
func (ri *RoomInstance) DirtyKeys() []calendar.DateKey {
	keys := make([]calendar.DateKey, 0, len(ri.dirty))
	for k := range ri.dirty {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (ri *RoomInstance) BaseStatusDirty() bool {
	return ri.baseDirty
}

func (ri *RoomInstance) IsDirty() bool {
	return ri.baseDirty || len(ri.dirty) > 0
}

func (ri *RoomInstance) ResetDirty() {
	ri.dirty = nil
	ri.baseDirty = false
}

// CodesIn returns the distinct booking codes found on the given dates.
func (ri *RoomInstance) CodesIn(dates []calendar.DateKey) []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, d := range dates {
		o, ok := ri.Overrides[d]
		if !ok {
			continue
		}
		if c, ok := o.BookingCode.Get(); ok {
			if _, dup := seen[c]; !dup {
				seen[c] = struct{}{}
				codes = append(codes, c)
			}
		}
	}
	return codes
}
