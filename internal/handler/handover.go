package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medirent/equipment-rental/internal/lifecycle"
	"github.com/medirent/equipment-rental/internal/model"
	"github.com/medirent/equipment-rental/internal/repository"
	"github.com/medirent/equipment-rental/internal/service"
)

// HandoverHandler serves the handover code exchange consumed by the mobile
// QR flow.  The request and response shapes follow the scanner client's
// contract, camelCase fields included, so they differ from the rest of the
// API on purpose.
type HandoverHandler struct {
	Svc     *service.HandoverService
	Tracker *service.TransitTracker
}

func NewHandoverHandler(svc *service.HandoverService, tracker *service.TransitTracker) *HandoverHandler {
	return &HandoverHandler{Svc: svc, Tracker: tracker}
}

type generateHandoverReq struct {
	BookingID    uint64 `json:"bookingId"`
	HandoverType string `json:"handoverType"`
}

type scanHandoverReq struct {
	BookingID    uint64 `json:"bookingId"`
	ScannedCode  string `json:"scannedCode"`
	HandoverType string `json:"handoverType"`
}

type scanHandoverResp struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Generate issues a fresh one-time code for a booking and phase.  The code
// string is returned as qrData for the client to render as a QR image.
func (h *HandoverHandler) Generate(c echo.Context) error {
	var req generateHandoverReq
	if err := c.Bind(&req); err != nil || req.BookingID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "bookingId required"})
	}
	if !model.ValidHandoverPhase(req.HandoverType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "handoverType must be pickup or return"})
	}
	phase := model.HandoverPhase(req.HandoverType)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	code, err := h.Svc.GenerateCode(ctx, req.BookingID, phase)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Booking not found"})
		}
		if errors.Is(err, service.ErrBookingClosed) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "booking already closed"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "generate failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"qrData": code})
}

// Scan verifies a scanned code and, on match, advances the booking through
// the handover transition.  A wrong or spent code reads as "Invalid Code";
// the client tells the human to rescan.
func (h *HandoverHandler) Scan(c echo.Context) error {
	var req scanHandoverReq
	if err := c.Bind(&req); err != nil || req.BookingID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "bookingId required"})
	}
	if !model.ValidHandoverPhase(req.HandoverType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "handoverType must be pickup or return"})
	}
	phase := model.HandoverPhase(req.HandoverType)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	b, err := h.Svc.VerifyCode(ctx, req.BookingID, phase, req.ScannedCode)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrBookingNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Booking not found"})
		case errors.Is(err, service.ErrCodeMismatch), errors.Is(err, service.ErrNoActiveCode):
			return c.JSON(http.StatusBadRequest, scanHandoverResp{Success: false, Message: "Invalid Code"})
		case errors.Is(err, lifecycle.ErrIllegalTransition), errors.Is(err, lifecycle.ErrActorNotAllowed):
			return c.JSON(http.StatusBadRequest, scanHandoverResp{Success: false, Message: "Booking is not ready for this handover"})
		case errors.Is(err, repository.ErrConcurrentModification):
			return c.JSON(http.StatusConflict, scanHandoverResp{Success: false, Message: "Booking changed, please retry"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "scan failed"})
		}
	}

	// A verified pickup on a delivery booking starts the simulated leg.
	if h.Tracker != nil && lifecycle.InTransit(b.Status, b.DeliveryMethod) {
		h.Tracker.Track(ctx, b)
	}
	return c.JSON(http.StatusOK, scanHandoverResp{Success: true, Message: "Handover Complete!"})
}
