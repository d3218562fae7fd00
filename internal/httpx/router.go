package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AngelCh415/marketing-datagen/internal/export"
	"github.com/AngelCh415/marketing-datagen/internal/metrics"
	"github.com/AngelCh415/marketing-datagen/internal/predict"
	"github.com/AngelCh415/marketing-datagen/internal/store"
	"github.com/AngelCh415/marketing-datagen/internal/utils"
)

const maxBody = 1 << 20

type Deps struct {
	Metrics     *metrics.Service
	Exporter    *export.Exporter
	Predictor   predict.Predictor
	CORSOrigins []string
}

func NewRouter(log *slog.Logger, d Deps) http.Handler {
	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log))
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", utils.RequestIDHeader},
		ExposedHeaders: []string{utils.RequestIDHeader},
		MaxAge:         300,
	}))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !d.Metrics.Ready() {
			http.Error(w, "generating", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
		w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.Route("/api", func(api chi.Router) {
		api.Get("/executive/summary", query(d.Metrics.Summary))
		api.Get("/executive/trends", query(d.Metrics.Trends))
		api.Get("/paid/channels", query(d.Metrics.QueryChannel))
		api.Get("/paid/campaigns", query(d.Metrics.QueryCampaign))
		api.Get("/organic/trends", query(d.Metrics.OrganicTrends))
		api.Get("/signals", query(d.Metrics.Signals))
		api.Get("/reconcile", query(d.Metrics.Reconcile))

		api.Post("/signals/{id}/dismiss", func(w http.ResponseWriter, r *http.Request) {
			id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
			if err != nil {
				http.Error(w, "bad signal id", 400)
				return
			}
			sig, err := d.Metrics.Dismiss(id)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, sig)
		})

		api.Post("/scenarios/predict", func(w http.ResponseWriter, r *http.Request) {
			var sc predict.Scenario
			if !readJSON(w, r, &sc) {
				return
			}
			res, err := predict.PredictScenario(d.Predictor, sc, d.Metrics.CPIHistory())
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, res)
		})

		api.Post("/predict/ltv", func(w http.ResponseWriter, r *http.Request) {
			var f predict.Features
			if !readJSON(w, r, &f) {
				return
			}
			ltv, err := d.Predictor.LTV(f)
			if err != nil {
				writeErr(w, err)
				return
			}
			churn, err := d.Predictor.Churn(f)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, map[string]any{"ltv": ltv, "churn_probability": churn, "predictor": d.Predictor.Kind()})
		})
	})

	mux.Post("/export/run", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("date")
		if q == "" {
			http.Error(w, "date required (YYYY-MM-DD)", 400)
			return
		}
		t, err := time.Parse("2006-01-02", q)
		if err != nil {
			http.Error(w, "bad date", 400)
			return
		}
		n, err := d.Exporter.ExportDay(r.Context(), t)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]any{"exported": n})
	})

	return mux
}

func query[T any](fn func(url.Values) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := fn(r.URL.Query())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, rows)
	}
}

func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, metrics.ErrBadQuery), errors.Is(err, predict.ErrBadInput):
		code = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, export.ErrNotConfigured):
		code = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), code)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "bad json: "+err.Error(), 400)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
