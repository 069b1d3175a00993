package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"innkeeper/internal/calendar"
	"innkeeper/internal/domain"
	"innkeeper/internal/metrics"
	"innkeeper/internal/models"
	"innkeeper/internal/service"
)

type TransitionRequest struct {
	Status models.ReservationStatus `json:"status"`
}

type MoveRequest struct {
	CheckInDate    string `json:"checkInDate"` // YYYY-MM-DD
	RoomInstanceID string `json:"roomInstanceId"`
}

type PaymentRequest struct {
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
}

type PricesRequest struct {
	Entries []service.PriceEntry `json:"entries"`
}

func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_reservation")
	var req service.CreateReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.svc.Reservations.CreateReservation(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GET /api/reservations?instance_id=&room_type_id=&from=&to=&active=true
func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_reservations")
	q := r.URL.Query()
	f := domain.ReservationFilter{
		RoomInstanceID: q.Get("instance_id"),
		RoomTypeID:     q.Get("room_type_id"),
		ActiveOnly:     q.Get("active") == "true",
	}
	for param, dst := range map[string]*calendar.DateKey{"from": &f.From, "to": &f.To} {
		v := q.Get(param)
		if v == "" {
			continue
		}
		d, err := calendar.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+param+"; expected YYYY-MM-DD")
			return
		}
		*dst = d
	}
	list, err := s.svc.Reservations.ListReservations(r.Context(), f)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservations": list})
}

func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_reservation")
	res, err := s.svc.Reservations.GetReservation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleGetReservationByCode(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_reservation_by_code")
	res, err := s.svc.Reservations.GetReservationByCode(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "reservation not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("transition_reservation")
	var req TransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.svc.Reservations.TransitionReservation(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleMove(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("move_reservation")
	var req MoveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	checkIn, err := calendar.Parse(req.CheckInDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid checkInDate; expected YYYY-MM-DD")
		return
	}
	res, err := s.svc.Reservations.MoveReservation(r.Context(), mux.Vars(r)["id"], checkIn, req.RoomInstanceID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handlePayment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("update_payment")
	var req PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.svc.Reservations.UpdatePaymentStatus(r.Context(), mux.Vars(r)["id"], req.PaymentStatus)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/prices/overrides
func (s *HTTPServer) handleApplyPrices(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("apply_prices")
	var req PricesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.svc.Pricing.ApplyPriceOverrides(r.Context(), req.Entries)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
