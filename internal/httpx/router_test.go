package httpx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/marketing-datagen/internal/config"
	"github.com/AngelCh415/marketing-datagen/internal/export"
	"github.com/AngelCh415/marketing-datagen/internal/generator"
	"github.com/AngelCh415/marketing-datagen/internal/metrics"
	"github.com/AngelCh415/marketing-datagen/internal/models"
	"github.com/AngelCh415/marketing-datagen/internal/predict"
	"github.com/AngelCh415/marketing-datagen/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newServer(t *testing.T, generate bool, sinkURL string) *httptest.Server {
	t.Helper()
	st := store.NewMemoryStore()
	if generate {
		p := generator.DefaultParams()
		p.Days, p.Users, p.Campaigns = 14, 2000, 1
		g, err := generator.New(p, quiet)
		require.NoError(t, err)
		_, err = g.Run(context.Background(), st)
		require.NoError(t, err)
	}
	svc := metrics.NewService(st)
	cfg := config.Config{SinkURL: sinkURL, SinkSecret: "k", ExportBackoff: time.Millisecond}
	h := NewRouter(quiet, Deps{
		Metrics:     svc,
		Exporter:    export.NewExporter(export.NewHTTPClient(time.Second), svc, quiet, cfg),
		Predictor:   predict.RuleBased{},
		CORSOrigins: []string{"*"},
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, dst any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

func post(t *testing.T, url, body string, dst any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

func TestReadyzWaitsForData(t *testing.T) {
	empty := newServer(t, false, "")
	assert.Equal(t, http.StatusServiceUnavailable, get(t, empty.URL+"/readyz", nil))
	assert.Equal(t, http.StatusOK, get(t, empty.URL+"/healthz", nil))

	full := newServer(t, true, "")
	assert.Equal(t, http.StatusOK, get(t, full.URL+"/readyz", nil))
}

func TestQueryEndpoints(t *testing.T) {
	srv := newServer(t, true, "")

	var sum models.Summary
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/api/executive/summary", &sum))
	assert.Equal(t, "2024-01-01", sum.From)
	assert.Positive(t, sum.TotalInstalls)

	var days []models.DayTotals
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/api/executive/trends?from=2024-01-02&to=2024-01-04", &days))
	assert.Len(t, days, 3)

	var chans []models.Metrics
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/api/paid/channels?channel=meta", &chans))
	require.Len(t, chans, 1)
	assert.Equal(t, "Meta", chans[0].Channel)

	var camps []models.Metrics
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/api/paid/campaigns?limit=2", &camps))
	assert.Len(t, camps, 2)

	var org []models.DailyOrganicMetric
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/api/organic/trends", &org))
	assert.Len(t, org, 14)

	var bad []models.DayTotals
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/api/reconcile", &bad))
	assert.Empty(t, bad)

	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/api/executive/trends?from=nope", nil))
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/metrics", nil))
}

func TestSignalDismiss(t *testing.T) {
	srv := newServer(t, true, "")
	assert.Equal(t, http.StatusNotFound, post(t, srv.URL+"/api/signals/9999/dismiss", "", nil))
	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/api/signals/x/dismiss", "", nil))

	var sigs []models.Signal
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/api/signals", &sigs))
	for _, s := range sigs {
		var got models.Signal
		require.Equal(t, http.StatusOK, post(t, srv.URL+"/api/signals/"+strconv.FormatInt(s.ID, 10)+"/dismiss", "", &got))
		assert.True(t, got.Dismissed)
	}
	var after []models.Signal
	require.Equal(t, http.StatusOK, get(t, srv.URL+"/api/signals", &after))
	assert.Empty(t, after)
}

func TestPredictions(t *testing.T) {
	srv := newServer(t, true, "")

	var sc predict.ScenarioResult
	require.Equal(t, http.StatusOK, post(t, srv.URL+"/api/scenarios/predict", `{"budget_shift":{"TikTok":10,"Meta":-5}}`, &sc))
	assert.Equal(t, 4.0, sc.InstallsChangePct)
	assert.Equal(t, -2.5, sc.CACChangePct)
	assert.Equal(t, 5000.0, sc.EstimatedMonthlyImpact)
	assert.Len(t, sc.CPIForecast["TikTok"], 7)

	var ltv map[string]any
	require.Equal(t, http.StatusOK, post(t, srv.URL+"/api/predict/ltv", `{"retention_d7":1,"is_payer":true,"session_count_7d":4}`, &ltv))
	assert.Equal(t, 60.0, ltv["ltv"])
	assert.Equal(t, 0.2, ltv["churn_probability"])
	assert.Equal(t, predict.KindRules, ltv["predictor"])

	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/api/predict/ltv", `{"retention_d7":3}`, nil))
	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/api/predict/ltv", `{"unknown":1}`, nil))
}

func TestExportRun(t *testing.T) {
	var hits int
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.NotEmpty(t, r.Header.Get(export.SignatureHeader))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer sink.Close()

	srv := newServer(t, true, sink.URL)
	var out map[string]int
	require.Equal(t, http.StatusOK, post(t, srv.URL+"/export/run?date=2024-01-03", "", &out))
	assert.Positive(t, out["exported"])
	assert.Equal(t, 1, hits)

	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/export/run", "", nil))
	assert.Equal(t, http.StatusBadRequest, post(t, srv.URL+"/export/run?date=03-01-2024", "", nil))

	unconfigured := newServer(t, true, "")
	assert.Equal(t, http.StatusServiceUnavailable, post(t, unconfigured.URL+"/export/run?date=2024-01-03", "", nil))
}
