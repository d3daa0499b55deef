package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medirent/equipment-rental/internal/audit"
	"github.com/medirent/equipment-rental/internal/model"
	"github.com/medirent/equipment-rental/internal/repository"
)

// maxListingImageBytes caps each uploaded listing photo.
const maxListingImageBytes = 8 << 20

// maxVideoBytes caps an uploaded walkthrough video.
const maxVideoBytes = 64 << 20

// ItemHandler serves equipment listing endpoints.  Creating a listing runs
// the photos through the external audit service; only verified listings
// show up in public browsing.
type ItemHandler struct {
	Items *repository.ItemRepo
	Audit *audit.Client
}

func NewItemHandler(items *repository.ItemRepo, auditClient *audit.Client) *ItemHandler {
	return &ItemHandler{Items: items, Audit: auditClient}
}

type itemView struct {
	ID          uint64   `json:"id"`
	OwnerID     uint64   `json:"owner_id"`
	Title       string   `json:"title"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	PricePerDay uint32   `json:"price_per_day_cents"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
	AddressText string   `json:"address_text"`
	ImageURL    string   `json:"image_url"`
	AIStatus    string   `json:"ai_status"`
	AIReason    string   `json:"ai_reason,omitempty"`
	IsAvailable bool     `json:"is_available"`
	CreatedAt   string   `json:"created_at"`
}

func toItemView(it *model.Item) itemView {
	return itemView{
		ID:          it.ID,
		OwnerID:     it.OwnerID,
		Title:       it.Title,
		Category:    it.Category,
		Description: it.Description,
		PricePerDay: it.PricePerDay,
		Lat:         it.Lat,
		Lng:         it.Lng,
		AddressText: it.AddressText,
		ImageURL:    it.ImageURL,
		AIStatus:    it.AIStatus,
		AIReason:    it.AIReason,
		IsAvailable: it.IsAvailable,
		CreatedAt:   it.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Create accepts a multipart form with the listing fields plus at least two
// photos under "images".  The photos are sent to the audit service and the
// verdict is stored on the listing; a rejected or needs_more_info verdict
// still creates the row so the owner can see the reason, but the listing
// never appears in public browsing.
func (h *ItemHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	title := strings.TrimSpace(c.FormValue("title"))
	category := strings.TrimSpace(c.FormValue("category"))
	if title == "" || category == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title and category are required"})
	}
	price, err := strconv.ParseUint(c.FormValue("price_per_day_cents"), 10, 32)
	if err != nil || price == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price_per_day_cents must be a positive integer"})
	}

	it := &model.Item{
		OwnerID:     uid,
		Title:       title,
		Category:    category,
		Description: strings.TrimSpace(c.FormValue("description")),
		AddressText: strings.TrimSpace(c.FormValue("address_text")),
		ImageURL:    strings.TrimSpace(c.FormValue("image_url")),
		PricePerDay: uint32(price),
	}
	if v := c.FormValue("lat"); v != "" {
		lat, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lat"})
		}
		it.Lat = &lat
	}
	if v := c.FormValue("lng"); v != "" {
		lng, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid lng"})
		}
		it.Lng = &lng
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "multipart form required"})
	}
	images, err := readImages(form.File["images"])
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if len(images) < 2 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least 2 photos from different angles are required"})
	}

	verdict, err := h.Audit.AuditListing(c.Request().Context(), images)
	if err != nil {
		if errors.Is(err, audit.ErrUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "audit service unavailable, try again later"})
		}
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	it.AIStatus = verdict.Status
	it.AIReason = auditReason(verdict)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Items.Create(ctx, it); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create listing failed"})
	}
	return c.JSON(http.StatusCreated, toItemView(it))
}

// auditReason flattens a listing verdict into the single assessment column.
func auditReason(v *audit.ListingVerdict) string {
	parts := make([]string, 0, 4)
	if v.ItemIdentified != "" {
		parts = append(parts, "identified: "+v.ItemIdentified)
	}
	parts = append(parts, fmt.Sprintf("safety %d/100", v.SafetyScore))
	if len(v.FlawsFound) > 0 {
		parts = append(parts, "flaws: "+strings.Join(v.FlawsFound, "; "))
	}
	if v.Reason != "" {
		parts = append(parts, v.Reason)
	}
	if v.MissingEvidence != "" {
		parts = append(parts, "missing: "+v.MissingEvidence)
	}
	return strings.Join(parts, " | ")
}

func readImages(files []*multipart.FileHeader) ([]audit.Image, error) {
	images := make([]audit.Image, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxListingImageBytes {
			return nil, fmt.Errorf("image %s exceeds size limit", fh.Filename)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open image %s failed", fh.Filename)
		}
		data, err := io.ReadAll(io.LimitReader(f, maxListingImageBytes+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read image %s failed", fh.Filename)
		}
		images = append(images, audit.Image{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return images, nil
}

// AnalyzeVideo forwards a walkthrough video to the audit service and returns
// its screening verdict verbatim.  Owners use it before listing to learn
// whether the footage shows a safe medical device; the verdict is advisory
// and nothing is stored.
func (h *ItemHandler) AnalyzeVideo(c echo.Context) error {
	if _, err := getUserID(c); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	fh, err := c.FormFile("video")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "a video file is required"})
	}
	if fh.Size > maxVideoBytes {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "video exceeds size limit"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "open video failed"})
	}
	data, err := io.ReadAll(io.LimitReader(f, maxVideoBytes+1))
	f.Close()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "read video failed"})
	}

	verdict, err := h.Audit.AnalyzeVideo(c.Request().Context(), audit.Image{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		if errors.Is(err, audit.ErrUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "audit service unavailable, try again later"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "video analysis failed"})
	}
	return c.JSON(http.StatusOK, verdict)
}

// List returns verified listings for public browsing.  Supports
// ?category=... and ?available=true filters.
func (h *ItemHandler) List(c echo.Context) error {
	availableOnly := c.QueryParam("available") == "true"
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	items, err := h.Items.List(ctx, strings.TrimSpace(c.QueryParam("category")), availableOnly)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list items failed"})
	}
	views := make([]itemView, 0, len(items))
	for i := range items {
		views = append(views, toItemView(&items[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": views})
}

// Get returns a single listing by ID.
func (h *ItemHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	it, err := h.Items.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "item not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load item failed"})
	}
	return c.JSON(http.StatusOK, toItemView(it))
}

// MyListings returns every listing of the authenticated user, including ones
// the audit service rejected, so the owner can read the verdict.
func (h *ItemHandler) MyListings(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	items, err := h.Items.ListByOwner(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list items failed"})
	}
	views := make([]itemView, 0, len(items))
	for i := range items {
		views = append(views, toItemView(&items[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": views})
}
