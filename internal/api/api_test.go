package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"innkeeper/internal/calendar"
	"innkeeper/internal/config"
	"innkeeper/internal/database"
	"innkeeper/internal/events"
	"innkeeper/internal/models"
	"innkeeper/internal/service"
)

const testAPIKey = "valid-key"

type apiEnv struct {
	handler http.Handler
}

func newAPIEnv(t *testing.T, cfg config.HTTPConfig) *apiEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := calendar.NewFixedClock("2025-06-01")
	bus := events.NewEventBus(&logger)
	svc := Services{
		Reservations: service.NewReservationService(db, clock, bus, service.Options{CodeAttempts: 8}, &logger),
		Inventory:    service.NewInventoryService(db, clock, bus, nil, &logger),
		Pricing:      service.NewPricingService(db, clock, bus, &logger),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = testAPIKey
	}
	return &apiEnv{handler: NewHTTPServer(cfg, svc, &logger).Handler()}
}

func (e *apiEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", testAPIKey)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// seed creates a two-room "Deluxe" type and returns it with its instances.
func (e *apiEnv) seed(t *testing.T) (models.RoomType, []models.RoomInstance) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/room-types", map[string]interface{}{
		"name": "Deluxe", "basePrice": "150000", "totalQuantity": 2,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rt := decode[models.RoomType](t, w)

	w = e.do(t, http.MethodGet, "/api/room-types/"+rt.ID+"/instances", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Instances []models.RoomInstance `json:"instances"`
	}](t, w)
	require.Len(t, list.Instances, 2)
	return rt, list.Instances
}

func (e *apiEnv) reserve(t *testing.T, rt models.RoomType, inst models.RoomInstance, in, out string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/reservations", map[string]interface{}{
		"roomTypeId":     rt.ID,
		"roomInstanceId": inst.ID,
		"guestName":      "Anna",
		"guestPhone":     "+7 900 000-00-00",
		"checkInDate":    in,
		"checkOutDate":   out,
	})
}

func TestAuth(t *testing.T) {
	env := newAPIEnv(t, config.HTTPConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/room-types", http.NoBody)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/room-types", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	env := newAPIEnv(t, config.HTTPConfig{RateLimitRPS: 0.001, RateLimitBurst: 2})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/room-types", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/room-types", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, "/api/room-types", nil).Code)
}

func TestReservationFlow(t *testing.T) {
	env := newAPIEnv(t, config.HTTPConfig{})
	rt, instances := env.seed(t)

	w := env.reserve(t, rt, instances[0], "2025-06-10", "2025-06-12")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[models.Reservation](t, w)
	assert.Equal(t, 2, res.Nights)
	assert.Equal(t, models.ReservationBooked, res.Status)

	w = env.do(t, http.MethodGet, "/api/reservations/by-code/"+res.BookingCode, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, res.ID, decode[models.Reservation](t, w).ID)

	w = env.do(t, http.MethodGet, "/api/reservations/by-code/RES-NONE", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/instances/"+instances[0].ID+"/availability?date=2025-06-11", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]interface{}](t, w)
	assert.Equal(t, "booked", body["status"])
	assert.Equal(t, res.BookingCode, body["bookingCode"])

	// Overlap on the same room.
	w = env.reserve(t, rt, instances[0], "2025-06-11", "2025-06-13")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decode[errorResponse](t, w).Kind)

	w = env.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/move", MoveRequest{CheckInDate: "2025-06-15", RoomInstanceID: instances[1].ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	moved := decode[models.Reservation](t, w)
	assert.EqualValues(t, "2025-06-17", moved.CheckOut)
	assert.Equal(t, instances[1].ID, moved.RoomInstanceID)

	w = env.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/transition", TransitionRequest{Status: models.ReservationCheckedOut})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", decode[errorResponse](t, w).Kind)

	w = env.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/transition", TransitionRequest{Status: models.ReservationOccupied})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPut, "/api/reservations/"+res.ID+"/payment", PaymentRequest{PaymentStatus: models.PaymentPaid})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PaymentPaid, decode[models.Reservation](t, w).PaymentStatus)

	w = env.do(t, http.MethodGet, "/api/reservations?instance_id="+instances[1].ID+"&active=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Reservations []models.Reservation `json:"reservations"`
	}](t, w)
	assert.Len(t, list.Reservations, 1)
}

func TestCreateReservation_BadInput(t *testing.T) {
	env := newAPIEnv(t, config.HTTPConfig{})
	rt, instances := env.seed(t)

	w := env.reserve(t, rt, instances[0], "2025-06-12", "2025-06-10")
	require.Equal(t, http.StatusBadRequest, w.Code)
	errResp := decode[errorResponse](t, w)
	assert.Equal(t, "validation", errResp.Kind)
	assert.Equal(t, "checkOutDate", errResp.Field)

	w = env.do(t, http.MethodPost, "/api/reservations", `{"unknownField": 1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/reservations", "not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/reservations/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCalendarAndPrices(t *testing.T) {
	env := newAPIEnv(t, config.HTTPConfig{})
	rt, instances := env.seed(t)
	require.Equal(t, http.StatusCreated, env.reserve(t, rt, instances[0], "2025-06-10", "2025-06-12").Code)

	w := env.do(t, http.MethodPost, "/api/prices/overrides", PricesRequest{Entries: []service.PriceEntry{
		{RoomTypeID: rt.ID, Date: "2025-06-11"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, service.PriceResult{Set: 2}, decode[service.PriceResult](t, w))

	w = env.do(t, http.MethodGet, "/api/calendar?room_type_id="+rt.ID+"&from=2025-06-10&to=2025-06-12", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cal := decode[struct {
		Rows []struct {
			Days []struct {
				Status string `json:"status"`
				Price  string `json:"price"`
			} `json:"days"`
		} `json:"rows"`
		Available map[string]int `json:"available"`
	}](t, w)
	require.Len(t, cal.Rows, 2)
	assert.Equal(t, "booked", cal.Rows[0].Days[0].Status)
	assert.Equal(t, "0", cal.Rows[1].Days[1].Price)
	assert.Equal(t, 1, cal.Available["2025-06-10"])

	w = env.do(t, http.MethodGet, "/api/calendar?room_type_id="+rt.ID+"&from=2025-06-10", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPut, "/api/instances/"+instances[1].ID+"/status", SetStatusRequest{Date: "2025-06-20", Status: models.StatusMaintenance})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "maintenance", decode[map[string]interface{}](t, w)["status"])

	w = env.do(t, http.MethodDelete, "/api/room-types/"+rt.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
