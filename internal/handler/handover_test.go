package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medirent/equipment-rental/internal/lifecycle"
	"github.com/medirent/equipment-rental/internal/model"
	"github.com/medirent/equipment-rental/internal/repository"
	"github.com/medirent/equipment-rental/internal/service"
)

// Wire-level tests for the QR handover contract the mobile client depends
// on: camelCase fields, qrData on generate, "Invalid Code" on a bad scan and
// a 404 body of {"error":"Booking not found"} for unknown bookings.

type memBookings struct {
	byID map[uint64]*model.Booking
}

func (m *memBookings) Create(_ context.Context, b *model.Booking) error {
	m.byID[b.ID] = b
	return nil
}

func (m *memBookings) GetByID(_ context.Context, id uint64) (*model.Booking, error) {
	b, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBookings) ListInStatus(_ context.Context, status lifecycle.Status) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range m.byID {
		if b.Status == status {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memBookings) TransitionStatus(_ context.Context, bookingID uint64, from, to lifecycle.Status, _ uint64, _ *bool) error {
	b, ok := m.byID[bookingID]
	if !ok {
		return repository.ErrBookingNotFound
	}
	if b.Status != from {
		return repository.ErrConcurrentModification
	}
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	return nil
}

type memCodes struct {
	bookings *memBookings
	byPhase  map[model.HandoverPhase]*model.HandoverCode
}

func (m *memCodes) SaveCode(_ context.Context, bookingID uint64, phase model.HandoverPhase, code string) error {
	m.byPhase[phase] = &model.HandoverCode{BookingID: bookingID, Phase: phase, Code: code}
	return nil
}

func (m *memCodes) GetActiveCode(_ context.Context, _ uint64, phase model.HandoverPhase) (*model.HandoverCode, error) {
	c, ok := m.byPhase[phase]
	if !ok || c.Consumed {
		return nil, repository.ErrNoActiveCode
	}
	return c, nil
}

func (m *memCodes) ConsumeAndTransition(ctx context.Context, bookingID uint64, phase model.HandoverPhase, from, to lifecycle.Status, itemID uint64, itemAvailable *bool) error {
	c, ok := m.byPhase[phase]
	if !ok || c.Consumed {
		return repository.ErrConcurrentModification
	}
	c.Consumed = true
	return m.bookings.TransitionStatus(ctx, bookingID, from, to, itemID, itemAvailable)
}

func setupHandoverAPI(t *testing.T, status lifecycle.Status) (*echo.Echo, *memBookings, *memCodes) {
	t.Helper()
	bookings := &memBookings{byID: map[uint64]*model.Booking{
		1: {ID: 1, ItemID: 10, OwnerID: 1, RenterID: 2, DeliveryMethod: lifecycle.MethodPickup, Status: status},
	}}
	codes := &memCodes{bookings: bookings, byPhase: make(map[model.HandoverPhase]*model.HandoverCode)}
	svc := service.NewHandoverService(bookings, codes, nil)
	h := NewHandoverHandler(svc, nil)

	e := echo.New()
	e.POST("/generate-handover", h.Generate)
	e.POST("/scan-handover", h.Scan)
	return e, bookings, codes
}

func postJSON(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGenerateHandover(t *testing.T) {
	e, _, codes := setupHandoverAPI(t, lifecycle.StatusAccepted)

	rec := postJSON(e, "/generate-handover", `{"bookingId":1,"handoverType":"pickup"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Regexp(t, `^\d{6}$`, body["qrData"])
	assert.Equal(t, codes.byPhase[model.PhasePickup].Code, body["qrData"])
}

func TestGenerateHandoverUnknownBooking(t *testing.T) {
	e, _, _ := setupHandoverAPI(t, lifecycle.StatusAccepted)

	rec := postJSON(e, "/generate-handover", `{"bookingId":99,"handoverType":"pickup"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Booking not found"}`, rec.Body.String())
}

func TestGenerateHandoverBadPhase(t *testing.T) {
	e, _, _ := setupHandoverAPI(t, lifecycle.StatusAccepted)
	rec := postJSON(e, "/generate-handover", `{"bookingId":1,"handoverType":"swap"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanHandoverSuccess(t *testing.T) {
	e, bookings, codes := setupHandoverAPI(t, lifecycle.StatusAccepted)
	codes.byPhase[model.PhasePickup] = &model.HandoverCode{BookingID: 1, Phase: model.PhasePickup, Code: "042137"}

	rec := postJSON(e, "/scan-handover", `{"bookingId":1,"scannedCode":"042137","handoverType":"pickup"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Handover Complete!"}`, rec.Body.String())

	// In-person pickup: the rental started.
	assert.Equal(t, lifecycle.StatusInUse, bookings.byID[1].Status)
	assert.True(t, codes.byPhase[model.PhasePickup].Consumed)
}

func TestScanHandoverWrongCode(t *testing.T) {
	e, bookings, codes := setupHandoverAPI(t, lifecycle.StatusAccepted)
	codes.byPhase[model.PhasePickup] = &model.HandoverCode{BookingID: 1, Phase: model.PhasePickup, Code: "042137"}

	rec := postJSON(e, "/scan-handover", `{"bookingId":1,"scannedCode":"111111","handoverType":"pickup"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Invalid Code"}`, rec.Body.String())

	// Nothing moved and the code is still live.
	assert.Equal(t, lifecycle.StatusAccepted, bookings.byID[1].Status)
	assert.False(t, codes.byPhase[model.PhasePickup].Consumed)
}

func TestScanHandoverNoCode(t *testing.T) {
	e, _, _ := setupHandoverAPI(t, lifecycle.StatusAccepted)
	rec := postJSON(e, "/scan-handover", `{"bookingId":1,"scannedCode":"042137","handoverType":"pickup"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"message":"Invalid Code"}`, rec.Body.String())
}

func TestScanHandoverUnknownBooking(t *testing.T) {
	e, _, _ := setupHandoverAPI(t, lifecycle.StatusAccepted)
	rec := postJSON(e, "/scan-handover", `{"bookingId":99,"scannedCode":"042137","handoverType":"pickup"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Booking not found"}`, rec.Body.String())
}

func TestScanHandoverWrongStatus(t *testing.T) {
	e, _, codes := setupHandoverAPI(t, lifecycle.StatusRequested)
	codes.byPhase[model.PhasePickup] = &model.HandoverCode{BookingID: 1, Phase: model.PhasePickup, Code: "042137"}

	rec := postJSON(e, "/scan-handover", `{"bookingId":1,"scannedCode":"042137","handoverType":"pickup"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body scanHandoverResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.NotEqual(t, "Invalid Code", body.Message)
}
