package audit

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleVideo() Image {
	return Image{Filename: "walkthrough.mp4", ContentType: "video/mp4", Data: []byte("not really mp4")}
}

func TestAnalyzeVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/analyze-video", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, fh, err := r.FormFile("video")
		require.NoError(t, err, "the video travels under the 'video' form field")
		defer f.Close()
		assert.Equal(t, "walkthrough.mp4", fh.Filename)
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, []byte("not really mp4"), data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"is_medical": true,
			"is_safe": false,
			"item_name": "Hospital Bed",
			"flaws": ["bent side rail"],
			"summary": "Functional but the rail needs repair."
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	v, err := c.AnalyzeVideo(context.Background(), sampleVideo())
	require.NoError(t, err)
	assert.True(t, v.IsMedical)
	assert.False(t, v.IsSafe)
	assert.Equal(t, "Hospital Bed", v.ItemName)
	assert.Equal(t, []string{"bent side rail"}, v.Flaws)
	assert.NotEmpty(t, v.Summary)
}

func TestAnalyzeVideoEmptyPayload(t *testing.T) {
	c := NewClient("http://audit.invalid")
	_, err := c.AnalyzeVideo(context.Background(), Image{Filename: "empty.mp4"})
	assert.Error(t, err)
}

func TestAnalyzeVideoServiceDown(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		c := NewClient("")
		_, err := c.AnalyzeVideo(context.Background(), sampleVideo())
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("upstream error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error": "Video Analysis Failed"}`, http.StatusInternalServerError)
		}))
		defer srv.Close()
		c := NewClient(srv.URL)
		_, err := c.AnalyzeVideo(context.Background(), sampleVideo())
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestAuditListingRequiresTwoImages(t *testing.T) {
	c := NewClient("http://audit.invalid")
	_, err := c.AuditListing(context.Background(), []Image{{Filename: "one.jpg", Data: []byte("x")}})
	assert.Error(t, err)
}
