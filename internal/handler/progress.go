package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medirent/equipment-rental/internal/lifecycle"
	"github.com/medirent/equipment-rental/internal/repository"
	"github.com/medirent/equipment-rental/internal/routing"
	"github.com/medirent/equipment-rental/internal/service"
)

// ProgressHandler projects a booking's status onto the 3-step delivery strip
// and, while a simulated leg is running, reports the courier's position.
type ProgressHandler struct {
	Bookings *repository.BookingRepo
	Tracker  *service.TransitTracker
}

func NewProgressHandler(bookings *repository.BookingRepo, tracker *service.TransitTracker) *ProgressHandler {
	return &ProgressHandler{Bookings: bookings, Tracker: tracker}
}

type transitView struct {
	Fraction   float64              `json:"fraction"`
	Position   *routing.Coordinate  `json:"position,omitempty"`
	Path       []routing.Coordinate `json:"path,omitempty"`
	EtaSeconds float64              `json:"eta_seconds"`
}

type progressView struct {
	BookingID uint64       `json:"booking_id"`
	Status    string       `json:"status"`
	Variant   string       `json:"variant"`
	Step      int          `json:"step"`
	Label     string       `json:"label"`
	Steps     []string     `json:"steps"`
	Transit   *transitView `json:"transit,omitempty"`
}

// Get returns the progress projection for a booking.  Only the parties to
// the booking may read it.  The transit block is present only while the
// booking is in a simulated courier leg; its fraction is recomputed from
// the leg start and the clock, never stored.
func (h *ProgressHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	b, err := h.Bookings.GetByID(ctx, id)
	if err != nil {
		return writeBookingErr(c, err)
	}
	if _, party := b.RoleOf(uid); !party {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a party to this booking"})
	}

	p, ok := lifecycle.ProgressFor(b.Status, b.DeliveryMethod)
	if !ok {
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking has no delivery progress in status " + string(b.Status)})
	}
	labels := lifecycle.StepLabels(p.Variant)
	view := progressView{
		BookingID: b.ID,
		Status:    string(b.Status),
		Variant:   string(p.Variant),
		Step:      p.Step,
		Label:     p.Label,
		Steps:     labels[:],
	}

	if lifecycle.InTransit(b.Status, b.DeliveryMethod) && h.Tracker != nil {
		route := h.Tracker.RouteFor(ctx, b)
		frac := lifecycle.TransitPosition(b.UpdatedAt, time.Now().UTC(), route.Duration)
		pos := routing.PointAlong(route.Path, frac)
		remaining := time.Duration(float64(route.Duration) * (1 - frac))
		view.Transit = &transitView{
			Fraction:   frac,
			Position:   &pos,
			Path:       route.Path,
			EtaSeconds: remaining.Seconds(),
		}
	}
	return c.JSON(http.StatusOK, view)
}
