package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"innkeeper/internal/availability"
	"innkeeper/internal/calendar"
	"innkeeper/internal/metrics"
	"innkeeper/internal/models"
	"innkeeper/internal/service"
)

// RenumberRequest is the body of PATCH /api/instances/{id}.
type RenumberRequest struct {
	RoomNumber string `json:"roomNumber"`
}

// SetStatusRequest is the body of PUT /api/instances/{id}/status.
type SetStatusRequest struct {
	Date        string        `json:"date"` // YYYY-MM-DD
	Status      models.Status `json:"status"`
	BookingCode string        `json:"bookingCode,omitempty"`
}

type CalendarResponse struct {
	*availability.Grid
	Available map[calendar.DateKey]int `json:"available"`
}

// GET /api/room-types?owner_id=
func (s *HTTPServer) handleListRoomTypes(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_room_types")
	types, err := s.svc.Inventory.ListRoomTypes(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"roomTypes": types})
}

func (s *HTTPServer) handleCreateRoomType(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_room_type")
	var req service.CreateRoomTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rt, err := s.svc.Inventory.CreateRoomType(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt)
}

func (s *HTTPServer) handleGetRoomType(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_room_type")
	rt, err := s.svc.Inventory.GetRoomType(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (s *HTTPServer) handleUpdateRoomType(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("update_room_type")
	var req service.UpdateRoomTypeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rt, err := s.svc.Inventory.UpdateRoomType(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (s *HTTPServer) handleDeleteRoomType(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("delete_room_type")
	if err := s.svc.Inventory.DeleteRoomType(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListInstances(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_instances")
	instances, err := s.svc.Inventory.ListInstances(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"instances": instances})
}

func (s *HTTPServer) handleRenumberInstance(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("renumber_instance")
	var req RenumberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	inst, err := s.svc.Inventory.RenumberInstance(r.Context(), mux.Vars(r)["id"], req.RoomNumber)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// GET /api/instances/{id}/availability?date=YYYY-MM-DD
func (s *HTTPServer) handleResolveAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("resolve_availability")
	date, err := calendar.Parse(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	res, err := s.svc.Inventory.ResolveAvailability(r.Context(), mux.Vars(r)["id"], date)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleSetRoomStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("set_room_status")
	var req SetStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	date, err := calendar.Parse(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.svc.Inventory.SetRoomStatus(r.Context(), id, date, req.Status, req.BookingCode); err != nil {
		s.writeDomainError(w, err)
		return
	}
	res, err := s.svc.Inventory.ResolveAvailability(r.Context(), id, date)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /api/calendar?room_type_id=&from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("calendar")
	q := r.URL.Query()
	typeID := q.Get("room_type_id")
	if typeID == "" {
		writeError(w, http.StatusBadRequest, "room_type_id is required")
		return
	}
	from, err := calendar.Parse(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected YYYY-MM-DD")
		return
	}
	to, err := calendar.Parse(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected YYYY-MM-DD")
		return
	}
	g, err := s.svc.Inventory.Calendar(r.Context(), typeID, from, to)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CalendarResponse{Grid: g, Available: g.AvailableCount()})
}
