package availability

import (
	"innkeeper/internal/calendar"
	"innkeeper/internal/models"
)

// Grid is the resolved calendar of one room type over [From, To).
type Grid struct {
	RoomTypeID string           `json:"roomTypeId"`
	From       calendar.DateKey `json:"from"`
	To         calendar.DateKey `json:"to"`
	Today      calendar.DateKey `json:"today"`
	Rows       []GridRow        `json:"rows"`
}

type GridRow struct {
	InstanceID string       `json:"instanceId"`
	RoomNumber string       `json:"roomNumber"`
	Days       []Resolution `json:"days"`
}

// Grid resolves every instance of rt over [from, to).
func (r *Resolver) Grid(rt *models.RoomType, instances []*models.RoomInstance, from, to calendar.DateKey) *Grid {
	today := r.Today()
	days := calendar.Range(from, to)
	g := &Grid{
		RoomTypeID: rt.ID,
		From:       from,
		To:         to,
		Today:      today,
		Rows:       make([]GridRow, 0, len(instances)),
	}
	for _, inst := range instances {
		row := GridRow{
			InstanceID: inst.ID,
			RoomNumber: inst.RoomNumber,
			Days:       make([]Resolution, 0, len(days)),
		}
		for _, d := range days {
			row.Days = append(row.Days, resolveAt(inst, rt.BasePrice, d, today))
		}
		g.Rows = append(g.Rows, row)
	}
	return g
}

// AvailableCount returns, per date, how many instances resolve to available.
func (g *Grid) AvailableCount() map[calendar.DateKey]int {
	out := make(map[calendar.DateKey]int)
	for _, row := range g.Rows {
		for _, d := range row.Days {
			if d.Status == models.StatusAvailable {
				out[d.Date]++
			} else if _, ok := out[d.Date]; !ok {
				out[d.Date] = 0
			}
		}
	}
	return out
}
