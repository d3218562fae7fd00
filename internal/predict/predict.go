// Package predict serves LTV, churn and CPI predictions. A trained network
// is used when a model file is present; otherwise deterministic formulas
// answer every call.
package predict

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"sort"
)

const (
	KindRules  = "rules"
	KindNeural = "neural"

	forecastDays   = 7
	defaultCPI     = 2.50
	defaultRetD7   = 0.5
	baseLTV        = 15.0
	payerLTVFactor = 2.0
)

var ErrBadInput = errors.New("invalid prediction input")

// Features describes one user for LTV and churn prediction.
type Features struct {
	RetentionD7    float64 `json:"retention_d7"`
	IsPayer        bool    `json:"is_payer"`
	SessionCount7d int     `json:"session_count_7d"`
	LTV7d          float64 `json:"ltv_7d"`
}

func (f Features) check() error {
	if f.RetentionD7 < 0 || f.RetentionD7 > 1 || math.IsNaN(f.RetentionD7) {
		return fmt.Errorf("%w: retention_d7 must be within [0,1]", ErrBadInput)
	}
	if f.SessionCount7d < 0 {
		return fmt.Errorf("%w: session_count_7d must not be negative", ErrBadInput)
	}
	if f.LTV7d < 0 {
		return fmt.Errorf("%w: ltv_7d must not be negative", ErrBadInput)
	}
	return nil
}

type Predictor interface {
	Kind() string
	LTV(f Features) (float64, error)
	Churn(f Features) (float64, error)
	ForecastCPI(history []float64) []float64
}

// Select picks the predictor for modelPath. A missing file selects the
// formulas; a file that exists but cannot be loaded is an error.
func Select(modelPath string, log *slog.Logger) (Predictor, error) {
	if log == nil {
		log = slog.Default()
	}
	if modelPath == "" {
		log.Info("predictor selected", "kind", KindRules, "reason", "no model configured")
		return RuleBased{}, nil
	}
	if _, err := os.Stat(modelPath); errors.Is(err, fs.ErrNotExist) {
		log.Info("predictor selected", "kind", KindRules, "reason", "model file absent", "path", modelPath)
		return RuleBased{}, nil
	}
	m, err := LoadModel(modelPath)
	if err != nil {
		return nil, err
	}
	log.Info("predictor selected", "kind", KindNeural, "path", modelPath, "trained_on", m.TrainedOn)
	return &Neural{model: m}, nil
}

// RuleBased answers with fixed formulas.
type RuleBased struct{}

func (RuleBased) Kind() string { return KindRules }

// LTV scales a base value by D7 retention relative to 0.5 and doubles it
// for payers. A zero retention is read as unknown.
func (RuleBased) LTV(f Features) (float64, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	ret := f.RetentionD7
	if ret == 0 {
		ret = defaultRetD7
	}
	v := baseLTV * (ret / defaultRetD7)
	if f.IsPayer {
		v *= payerLTVFactor
	}
	return round2(v), nil
}

func (RuleBased) Churn(f Features) (float64, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	ret := f.RetentionD7
	if ret == 0 {
		ret = defaultRetD7
	}
	switch {
	case f.SessionCount7d == 0:
		return 0.9, nil
	case ret < 0.3:
		return 0.7, nil
	case ret < 0.5:
		return 0.4, nil
	}
	return 0.2, nil
}

// ForecastCPI projects the next seven days from the mean of the last seven
// observations with a 1% daily drift. No history yields the default CPI.
func (RuleBased) ForecastCPI(history []float64) []float64 {
	out := make([]float64, forecastDays)
	var recent []float64
	for _, v := range history {
		if v > 0 && !math.IsNaN(v) {
			recent = append(recent, v)
		}
	}
	if len(recent) == 0 {
		for i := range out {
			out[i] = defaultCPI
		}
		return out
	}
	if len(recent) > forecastDays {
		recent = recent[len(recent)-forecastDays:]
	}
	var sum float64
	for _, v := range recent {
		sum += v
	}
	mean := sum / float64(len(recent))
	for i := range out {
		out[i] = round2(mean * (1 + float64(i)*0.01))
	}
	return out
}

type Scenario struct {
	BudgetShift map[string]float64 `json:"budget_shift"`
}

type ScenarioResult struct {
	InstallsChangePct      float64              `json:"installs_change_pct"`
	CACChangePct           float64              `json:"cac_change_pct"`
	EstimatedMonthlyImpact float64              `json:"estimated_monthly_impact"`
	CPIForecast            map[string][]float64 `json:"cpi_forecast,omitempty"`
	Predictor              string               `json:"predictor"`
}

// PredictScenario scores a budget reallocation given as percentage shifts
// per channel. history holds each channel's daily CPI, oldest first.
func PredictScenario(p Predictor, s Scenario, history map[string][]float64) (ScenarioResult, error) {
	names := make([]string, 0, len(s.BudgetShift))
	for name := range s.BudgetShift {
		names = append(names, name)
	}
	sort.Strings(names)

	var total float64
	res := ScenarioResult{Predictor: p.Kind(), CPIForecast: map[string][]float64{}}
	for _, name := range names {
		v := s.BudgetShift[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ScenarioResult{}, fmt.Errorf("%w: budget_shift[%s]", ErrBadInput, name)
		}
		total += v
		if h, ok := history[name]; ok {
			res.CPIForecast[name] = p.ForecastCPI(h)
		}
	}
	res.InstallsChangePct = round2(total * 0.8)
	res.CACChangePct = round2(-total * 0.5)
	res.EstimatedMonthlyImpact = round2(total * 1000)
	return res, nil
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
