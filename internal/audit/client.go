// Package audit is the client for the external image-based condition audit
// service.  The service inspects listing photos before publication and
// return photos at settlement; this process never runs the analysis itself
// and never lets an audit failure block a status transition already in
// flight.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

// ErrUnavailable is returned when the audit service cannot be reached.
// Callers degrade the feature that needed the verdict instead of failing
// the surrounding operation.
var ErrUnavailable = errors.New("audit service unavailable")

// Listing audit verdict statuses.
const (
	VerdictVerified      = "verified"
	VerdictRejected      = "rejected"
	VerdictNeedsMoreInfo = "needs_more_info"
)

// Return audit verdict statuses.
const (
	ReturnClear          = "clear"
	ReturnDamageReported = "damage_reported"
)

// ListingVerdict is the audit service's judgment of a new listing.
type ListingVerdict struct {
	Status          string   `json:"status"`
	ItemIdentified  string   `json:"item_identified"`
	SafetyScore     int      `json:"safety_score"`
	FlawsFound      []string `json:"flaws_found"`
	Reason          string   `json:"reason"`
	MissingEvidence string   `json:"missing_evidence"`
}

// ReturnVerdict is the audit service's comparison of an item's condition at
// return time against its listing photos.  It only feeds the settlement
// invoice; it never drives the state machine.
type ReturnVerdict struct {
	Status             string   `json:"status"`
	Analysis           string   `json:"analysis"`
	NewDamageFound     []string `json:"new_damage_found"`
	SuggestedDeduction uint32   `json:"suggested_deduction"`
}

// VideoVerdict is the audit service's screening of a condition walkthrough
// video.  Owners can run it before creating a listing to learn whether the
// footage shows a safe, genuinely medical device and which flaws are visible.
type VideoVerdict struct {
	IsMedical bool     `json:"is_medical"`
	IsSafe    bool     `json:"is_safe"`
	ItemName  string   `json:"item_name"`
	Flaws     []string `json:"flaws"`
	Summary   string   `json:"summary"`
}

// Image is one photo to submit for auditing.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Client calls the audit service over HTTP.
type Client struct {
	baseURL string
	hc      *http.Client
}

// NewClient builds an audit client.  An empty baseURL yields a client that
// always reports ErrUnavailable.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 60 * time.Second}, // image analysis is slow
	}
}

// AuditListing submits listing photos (at least two angles) and returns the
// verdict.
func (c *Client) AuditListing(ctx context.Context, images []Image) (*ListingVerdict, error) {
	if len(images) < 2 {
		return nil, errors.New("at least 2 images required")
	}
	var v ListingVerdict
	if err := c.postFiles(ctx, "/audit-item", "images", images, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// AuditReturn submits return-time photos for an item and returns the damage
// comparison verdict.
func (c *Client) AuditReturn(ctx context.Context, itemID uint64, images []Image) (*ReturnVerdict, error) {
	if len(images) == 0 {
		return nil, errors.New("at least 1 image required")
	}
	fields := map[string]string{"item_id": strconv.FormatUint(itemID, 10)}
	var v ReturnVerdict
	if err := c.postFiles(ctx, "/audit-return", "images", images, fields, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// AnalyzeVideo submits a single walkthrough video for screening.  The video
// travels as an Image payload; only the form field name differs.
func (c *Client) AnalyzeVideo(ctx context.Context, video Image) (*VideoVerdict, error) {
	if len(video.Data) == 0 {
		return nil, errors.New("video payload is empty")
	}
	var v VideoVerdict
	if err := c.postFiles(ctx, "/analyze-video", "video", []Image{video}, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) postFiles(ctx context.Context, path, field string, files []Image, fields map[string]string, out interface{}) error {
	if c.baseURL == "" {
		return ErrUnavailable
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(field, f.Filename)
		if err != nil {
			return err
		}
		if _, err := part.Write(f.Data); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
