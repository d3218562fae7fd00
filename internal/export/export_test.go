package export

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/marketing-datagen/internal/config"
	"github.com/AngelCh415/marketing-datagen/internal/metrics"
	"github.com/AngelCh415/marketing-datagen/internal/models"
	"github.com/AngelCh415/marketing-datagen/internal/store"
)

var day = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func post(t *testing.T, c HTTPClient, url string) error {
	t.Helper()
	return postJSON(context.Background(), c, url, []byte(`[]`), nil)
}

func TestHTTPClientHandles500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := post(t, NewHTTPClient(2*time.Second), srv.URL)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.True(t, se.Retryable())
}

func TestHTTPClientHandles404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	err := post(t, NewHTTPClient(2*time.Second), srv.URL)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.False(t, se.Retryable())
}

func TestHTTPClientHandlesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(1500 * time.Millisecond)
	}))
	defer srv.Close()

	err := post(t, NewHTTPClient(200*time.Millisecond), srv.URL)
	require.Error(t, err)
}

func exporter(t *testing.T, url string) *Exporter {
	t.Helper()
	st := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.WriteCampaigns(ctx, []models.Campaign{{ID: 1, Channel: "Meta", StartDate: day}}, nil))
	require.NoError(t, st.WritePerformance(ctx, []models.DailyCampaignPerformance{
		{ID: 1, CampaignID: 1, Day: 0, Date: day, Impressions: 1000, Clicks: 0, Installs: 0, Spend: 10},
	}))
	cfg := config.Config{SinkURL: url, SinkSecret: "s3cret", ExportBackoff: time.Millisecond, ExportRetries: 2}
	return NewExporter(NewHTTPClient(time.Second), metrics.NewService(st), slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
}

func TestExportDaySignsBody(t *testing.T) {
	var got []models.Metrics
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if r.Header.Get(SignatureHeader) != Sign("s3cret", b) {
			http.Error(w, "bad signature", http.StatusUnauthorized)
			return
		}
		json.Unmarshal(b, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n, err := exporter(t, srv.URL).ExportDay(context.Background(), day.Add(13*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01-01", got[0].Date)
	assert.Equal(t, "Meta", got[0].Channel)
	// zero clicks leaves derived ratios at zero
	assert.Zero(t, got[0].CVR)
	assert.Zero(t, got[0].CPI)
}

func TestExportDayRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := exporter(t, srv.URL).ExportDay(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExportDayStopsOnClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := exporter(t, srv.URL).ExportDay(context.Background(), day)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExportDayNotConfigured(t *testing.T) {
	_, err := exporter(t, "").ExportDay(context.Background(), day)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestExportDayWithoutRows(t *testing.T) {
	n, err := exporter(t, "http://127.0.0.1:1").ExportDay(context.Background(), day.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Zero(t, n)
}
