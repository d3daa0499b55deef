package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medirent/equipment-rental/internal/audit"
	"github.com/medirent/equipment-rental/internal/lifecycle"
	"github.com/medirent/equipment-rental/internal/model"
	"github.com/medirent/equipment-rental/internal/repository"
	"github.com/medirent/equipment-rental/internal/service"
)

// BookingHandler serves booking creation, listing and every lifecycle action
// that is not a handover code exchange.
type BookingHandler struct {
	Svc      *service.BookingService
	Bookings *repository.BookingRepo
	Tracker  *service.TransitTracker
	Audit    *audit.Client
}

func NewBookingHandler(svc *service.BookingService, bookings *repository.BookingRepo, tracker *service.TransitTracker, auditClient *audit.Client) *BookingHandler {
	return &BookingHandler{Svc: svc, Bookings: bookings, Tracker: tracker, Audit: auditClient}
}

type createBookingReq struct {
	ItemID          uint64   `json:"item_id"`
	StartDate       string   `json:"start_date"` // YYYY-MM-DD
	EndDate         string   `json:"end_date"`   // YYYY-MM-DD
	DeliveryMethod  string   `json:"delivery_method"`
	DeliveryAddress *string  `json:"delivery_address,omitempty"`
	DeliveryLat     *float64 `json:"delivery_lat,omitempty"`
	DeliveryLng     *float64 `json:"delivery_lng,omitempty"`
}

type bookingView struct {
	ID              uint64   `json:"id"`
	ItemID          uint64   `json:"item_id"`
	RenterID        uint64   `json:"renter_id"`
	OwnerID         uint64   `json:"owner_id"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	TotalPriceCents uint32   `json:"total_price_cents"`
	DeliveryMethod  string   `json:"delivery_method"`
	DeliveryAddress *string  `json:"delivery_address,omitempty"`
	DeliveryLat     *float64 `json:"delivery_lat,omitempty"`
	DeliveryLng     *float64 `json:"delivery_lng,omitempty"`
	Status          string   `json:"status"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

func toBookingView(b *model.Booking) bookingView {
	return bookingView{
		ID:              b.ID,
		ItemID:          b.ItemID,
		RenterID:        b.RenterID,
		OwnerID:         b.OwnerID,
		StartDate:       b.StartDate.UTC().Format("2006-01-02"),
		EndDate:         b.EndDate.UTC().Format("2006-01-02"),
		TotalPriceCents: b.TotalPriceCents,
		DeliveryMethod:  string(b.DeliveryMethod),
		DeliveryAddress: b.DeliveryAddress,
		DeliveryLat:     b.DeliveryLat,
		DeliveryLng:     b.DeliveryLng,
		Status:          string(b.Status),
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Create files a new booking request for an item.
func (h *BookingHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createBookingReq
	if err := c.Bind(&req); err != nil || req.ItemID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "start_date must be YYYY-MM-DD"})
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "end_date must be YYYY-MM-DD"})
	}
	method := lifecycle.DeliveryMethod(strings.TrimSpace(req.DeliveryMethod))
	if method != lifecycle.MethodPickup && method != lifecycle.MethodDelivery {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "delivery_method must be pickup or delivery"})
	}
	if method == lifecycle.MethodDelivery && (req.DeliveryAddress == nil || strings.TrimSpace(*req.DeliveryAddress) == "") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "delivery_address required for delivery"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	b, err := h.Svc.Request(ctx, service.BookingRequest{
		ItemID:          req.ItemID,
		RenterID:        uid,
		StartDate:       start,
		EndDate:         end,
		DeliveryMethod:  method,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryLat:     req.DeliveryLat,
		DeliveryLng:     req.DeliveryLng,
	})
	if err != nil {
		return writeBookingErr(c, err)
	}
	return c.JSON(http.StatusCreated, toBookingView(b))
}

// List returns every booking the authenticated user is a party to.
func (h *BookingHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	list, err := h.Bookings.ListForUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list bookings failed"})
	}
	views := make([]bookingView, 0, len(list))
	for i := range list {
		views = append(views, toBookingView(&list[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": views})
}

// Get returns a single booking.  Only the owner and the renter may read it.
func (h *BookingHandler) Get(c echo.Context) error {
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
	return c.JSON(http.StatusOK, toBookingView(b))
}

// Lifecycle actions.  Each applies one event as the authenticated user; the
// transition table decides whether that user's role may take the edge from
// the booking's current status.

func (h *BookingHandler) Accept(c echo.Context) error { return h.apply(c, lifecycle.EventAccept) }
func (h *BookingHandler) Reject(c echo.Context) error { return h.apply(c, lifecycle.EventReject) }
func (h *BookingHandler) Cancel(c echo.Context) error { return h.apply(c, lifecycle.EventCancel) }
func (h *BookingHandler) StartUse(c echo.Context) error {
	return h.apply(c, lifecycle.EventStartUse)
}
func (h *BookingHandler) RequestReturn(c echo.Context) error {
	return h.apply(c, lifecycle.EventRequestReturn)
}
func (h *BookingHandler) AcceptReturn(c echo.Context) error {
	return h.apply(c, lifecycle.EventAcceptReturn)
}
func (h *BookingHandler) MarkReturnPickedUp(c echo.Context) error {
	return h.apply(c, lifecycle.EventMarkReturnPickedUp)
}
func (h *BookingHandler) Complete(c echo.Context) error { return h.apply(c, lifecycle.EventComplete) }

// MarkDelivered is the owner's manual confirmation of a delivery.  It races
// the simulated arrival on purpose; whichever lands first wins and the loser
// sees the booking already delivered.
func (h *BookingHandler) MarkDelivered(c echo.Context) error {
	return h.apply(c, lifecycle.EventMarkDelivered)
}

func (h *BookingHandler) apply(c echo.Context, ev lifecycle.Event) error {
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
	b, err := h.Svc.Apply(ctx, uid, id, ev)
	if err != nil {
		return writeBookingErr(c, err)
	}
	h.syncTracker(ctx, b)
	return c.JSON(http.StatusOK, toBookingView(b))
}

// syncTracker starts or stops the transit timer to match the booking's new
// status.
func (h *BookingHandler) syncTracker(ctx context.Context, b *model.Booking) {
	if h.Tracker == nil {
		return
	}
	if lifecycle.InTransit(b.Status, b.DeliveryMethod) {
		h.Tracker.Track(ctx, b)
	} else {
		h.Tracker.Cancel(b.ID)
	}
}

// ReturnAudit lets the owner submit photos of a returned item for the damage
// comparison verdict.  The verdict only informs the settlement conversation
// between the parties; it never moves the booking.
func (h *BookingHandler) ReturnAudit(c echo.Context) error {
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
	if b.OwnerID != uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "only the owner can audit a return"})
	}
	if !returnAuditable(b.Status) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking has no return to audit in status " + string(b.Status)})
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "multipart form required"})
	}
	images, err := readImages(form.File["images"])
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if len(images) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least 1 photo of the returned item is required"})
	}

	verdict, err := h.Audit.AuditReturn(c.Request().Context(), b.ItemID, images)
	if err != nil {
		if errors.Is(err, audit.ErrUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "audit service unavailable, try again later"})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, verdict)
}

// returnAuditable reports whether a booking is far enough along for return
// photos to mean anything.
func returnAuditable(s lifecycle.Status) bool {
	switch s {
	case lifecycle.StatusReturnRequested, lifecycle.StatusReturnAccepted,
		lifecycle.StatusReturnPickedUp, lifecycle.StatusReturned, lifecycle.StatusCompleted:
		return true
	}
	return false
}

// writeBookingErr translates booking domain errors into HTTP responses.
func writeBookingErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Booking not found"})
	case errors.Is(err, repository.ErrItemNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "item not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a party to this booking"})
	case errors.Is(err, lifecycle.ErrActorNotAllowed):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "this action belongs to the other party"})
	case errors.Is(err, lifecycle.ErrIllegalTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrConcurrentModification):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking was modified concurrently, reload and retry"})
	case errors.Is(err, repository.ErrItemUnavailable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "item is not available"})
	case errors.Is(err, service.ErrInvalidDates),
		errors.Is(err, service.ErrOwnBooking),
		errors.Is(err, service.ErrRentalTooLong),
		errors.Is(err, service.ErrItemNotVerified):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "operation failed"})
	}
}
