package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestExtractParsesDocuments(t *testing.T) {
	preview := testPNG(t, 800, 600)
	var gotFiles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		for _, fh := range r.MultipartForm.File["files"] {
			gotFiles = append(gotFiles, fh.Filename)
		}
		resp := map[string]any{"documents": []map[string]any{
			{
				"filename": "a.pdf", "party_name": "Acme Corp", "tax_id": "123", "gross": "1200,50",
				"net": 1000.5, "tax": "200", "currency": "MAD", "issue_date": "2024-01-01",
				"reference": "F-1", "preview": preview,
				"lines": []map[string]any{{"code": "P1", "description": "Bolt", "quantity": 2, "unit_price": "3,25"}},
			},
			{"filename": "b.pdf", "party_name": nil, "tax_id": "", "gross": nil, "lines": nil},
		}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second)
	docs, err := client.Extract(context.Background(), []File{
		{Name: "a.pdf", Content: strings.NewReader("%PDF-a")},
		{Name: "b.pdf", Content: strings.NewReader("%PDF-b")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, gotFiles)
	require.Len(t, docs, 2)

	first := docs[0]
	assert.Equal(t, "Acme Corp", first.PartyName)
	require.True(t, first.Gross.Valid)
	assert.True(t, first.Gross.Decimal.Equal(decimal.RequireFromString("1200.50")))
	assert.True(t, first.Net.Decimal.Equal(decimal.RequireFromString("1000.5")))
	require.Len(t, first.Lines, 1)
	assert.True(t, first.Lines[0].UnitPrice.Decimal.Equal(decimal.RequireFromString("3.25")))
	require.NotEmpty(t, first.Thumbnail)

	thumb, err := base64.StdEncoding.DecodeString(first.Thumbnail)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, ThumbnailWidth, cfg.Width)
	assert.Equal(t, 240, cfg.Height)

	second := docs[1]
	assert.Empty(t, second.PartyName)
	assert.False(t, second.Gross.Valid)
	assert.Empty(t, second.Lines)
	assert.Empty(t, second.Thumbnail)
}

func TestExtractFailsOnBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "ocr unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Extract(context.Background(), []File{{Name: "a.pdf", Content: strings.NewReader("x")}})
	require.ErrorIs(t, err, ErrExtraction)
	assert.Contains(t, err.Error(), "503")
}

func TestExtractRejectsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"documents":[{"gross":"twelve"}]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Extract(context.Background(), []File{{Name: "a.pdf", Content: strings.NewReader("x")}})
	require.ErrorIs(t, err, ErrExtraction)
	assert.Contains(t, err.Error(), "schema")
}

func TestExtractRequiresFiles(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:0", time.Second).Extract(context.Background(), nil)
	require.ErrorIs(t, err, ErrExtraction)
}

func TestValidateResponseRequiresDocuments(t *testing.T) {
	require.Error(t, ValidateResponse([]byte(`{}`)))
	require.Error(t, ValidateResponse([]byte(`not json`)))
	require.NoError(t, ValidateResponse([]byte(`{"documents":[]}`)))
}

func TestAmountUnmarshal(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"gross":"","net":"12,5","tax":3}`), &doc))
	assert.False(t, doc.Gross.Valid)
	assert.True(t, doc.Net.Decimal.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, doc.Tax.Or(decimal.Zero).Equal(decimal.NewFromInt(3)))
	assert.True(t, doc.Gross.Or(decimal.Zero).IsZero())

	require.Error(t, json.Unmarshal([]byte(`{"gross":"abc"}`), &doc))
}

func TestThumbnailKeepsSmallImages(t *testing.T) {
	out, err := Thumbnail(testPNG(t, 100, 50), ThumbnailWidth)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(out)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)

	_, err = Thumbnail("!!not-base64", ThumbnailWidth)
	require.Error(t, err)
}

func TestDocumentLabel(t *testing.T) {
	assert.Equal(t, "a.pdf (F-1)", Document{Filename: "a.pdf", Reference: "F-1"}.Label())
	assert.Equal(t, "unnamed document", Document{}.Label())
}
