// Package signals re-scans generated series for the footprint of each golden
// event and materializes what it finds as Signal rows.
package signals

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/AngelCh415/marketing-datagen/internal/events"
	"github.com/AngelCh415/marketing-datagen/internal/models"
)

const (
	BaselineDays    = 14
	MinBaselineDays = 3

	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

var recommendedActions = map[string]string{
	"creative_breakthrough": "Shift +15% budget from Meta to TikTok",
	"creative_fatigue":      "Pause fatigued creatives, launch new batch",
	"viral_moment":          "Retarget organic cohort with paid ads within 48h",
	"competitor_launch":     "Pause bottom 15% of ad groups, shift budget to Tier-2",
	"budget_overrun":        "Reduce daily budgets by 25% across all channels",
	"synergy_detected":      "Coordinate Meta campaigns with influencer drops",
}

const defaultAction = "Review recent changes on the affected channel"

var metricLabels = map[string]string{
	events.MetricSpend:           "spend",
	events.MetricInstalls:        "installs",
	events.MetricCPI:             "CPI",
	events.MetricCTR:             "CTR",
	events.MetricOrganicInstalls: "organic installs",
	events.MetricSocialMentions:  "social mentions",
	events.MetricAppStoreRank:    "app store rank",
	events.MetricSentiment:       "sentiment",
}

// RecommendedAction is the fixed advice for an event kind.
func RecommendedAction(kind string) string {
	if a, ok := recommendedActions[kind]; ok {
		return a
	}
	return defaultAction
}

type Input struct {
	Days        int
	Start       time.Time
	Channels    []models.Channel
	Performance []models.DailyCampaignPerformance
	Organic     []models.DailyOrganicMetric
	Events      events.Set
}

// Miss records a golden event whose footprint was not found.
type Miss struct {
	Event  string
	Reason string
}

// Materialize emits at most one signal per event: the first active day on
// which the scope series deviates from its pre-event baseline by at least
// the event's z threshold in the expected direction. Events outside the
// run are skipped; events that leave no footprint are returned as misses.
func Materialize(in Input) ([]models.Signal, []Miss) {
	names := map[int64]string{}
	for _, c := range in.Channels {
		names[c.ID] = c.Name
	}
	var (
		out    []models.Signal
		misses []Miss
	)
	for _, e := range in.Events.Events {
		if !e.Intersects(in.Days) {
			continue
		}
		s := buildSeries(in, names, e.Detect.Scope, e.Detect.Metric)
		sig, reason := detect(in, e, s)
		if reason != "" {
			misses = append(misses, Miss{Event: e.Name, Reason: reason})
			continue
		}
		sig.ID = int64(len(out) + 1)
		out = append(out, sig)
	}
	return out, misses
}

// series is one value per day; ok marks days with data.
type series struct {
	v  []float64
	ok []bool
}

func buildSeries(in Input, names map[int64]string, scope, metric string) series {
	s := series{v: make([]float64, in.Days), ok: make([]bool, in.Days)}
	if scope == events.TargetOrganic {
		for _, o := range in.Organic {
			if o.Day < 0 || o.Day >= in.Days {
				continue
			}
			var v float64
			switch metric {
			case events.MetricOrganicInstalls:
				v = float64(o.OrganicInstalls)
			case events.MetricSocialMentions:
				v = float64(o.SocialMentions)
			case events.MetricAppStoreRank:
				v = float64(o.AppStoreRank)
			case events.MetricSentiment:
				v = o.SentimentScore
			default:
				continue
			}
			s.v[o.Day], s.ok[o.Day] = v, true
		}
		return s
	}

	spend := make([]float64, in.Days)
	installs := make([]float64, in.Days)
	clicks := make([]float64, in.Days)
	impr := make([]float64, in.Days)
	bid := make([]float64, in.Days)
	priced := make([]float64, in.Days)
	seen := make([]bool, in.Days)
	for _, p := range in.Performance {
		if p.Day < 0 || p.Day >= in.Days {
			continue
		}
		if scope != events.TargetAll && names[p.ChannelID] != scope {
			continue
		}
		seen[p.Day] = true
		spend[p.Day] += p.Spend
		installs[p.Day] += float64(p.Installs)
		clicks[p.Day] += float64(p.Clicks)
		impr[p.Day] += float64(p.Impressions)
		if p.Installs > 0 {
			f := p.FatigueFactor
			if f <= 0 {
				f = 1
			}
			bid[p.Day] += p.CPI * f
			priced[p.Day]++
		}
	}
	for d := 0; d < in.Days; d++ {
		if !seen[d] {
			continue
		}
		switch metric {
		case events.MetricSpend:
			s.v[d], s.ok[d] = spend[d], true
		case events.MetricInstalls:
			s.v[d], s.ok[d] = installs[d], true
		case events.MetricCPI:
			// mean bid price with creative fatigue undone, so campaign
			// turnover does not mask a price shift
			if priced[d] > 0 {
				s.v[d], s.ok[d] = bid[d]/priced[d], true
			}
		case events.MetricCTR:
			if impr[d] > 0 {
				s.v[d], s.ok[d] = clicks[d]/impr[d], true
			}
		}
	}
	return s
}

// baseline walks back from the event start collecting days on which no
// other event moving the same scope is active.
func baseline(in Input, e events.Event, s series) []float64 {
	var xs []float64
	for d := e.Day - 1; d >= 0 && len(xs) < BaselineDays; d-- {
		if d >= in.Days || !s.ok[d] || otherActive(in.Events, e, d) {
			continue
		}
		xs = append(xs, s.v[d])
	}
	return xs
}

func otherActive(set events.Set, e events.Event, day int) bool {
	for _, o := range set.Events {
		if o.Name == e.Name {
			continue
		}
		if o.StateOn(day) == events.Active && o.AffectsScope(e.Detect.Scope) {
			return true
		}
	}
	return false
}

func detect(in Input, e events.Event, s series) (models.Signal, string) {
	base := baseline(in, e, s)
	if len(base) < MinBaselineDays {
		return models.Signal{}, fmt.Sprintf("baseline has %d usable days, need %d", len(base), MinBaselineDays)
	}
	m := mean(base)
	sd := math.Max(stdDev(base, m), math.Max(0.01*math.Abs(m), 1e-9))
	sign := 1.0
	if e.Detect.Direction == "down" {
		sign = -1
	}
	first := e.Day
	if first < 0 {
		first = 0
	}
	for d := first; d < e.End() && d < in.Days; d++ {
		if !s.ok[d] {
			continue
		}
		z := (s.v[d] - m) / sd
		if sign*z >= e.Detect.Threshold {
			return build(in, e, d, s.v[d], m, z, len(base)), ""
		}
	}
	return models.Signal{}, fmt.Sprintf("no day in [%d, %d) crossed z=%.1f", e.Day, e.End(), e.Detect.Threshold)
}

func build(in Input, e events.Event, day int, observed, base, z float64, n int) models.Signal {
	chg := 0.0
	if base != 0 {
		chg = (observed - base) / math.Abs(base)
	}
	sev := severity(chg)
	conf := math.Min(0.99, math.Max(0.5, logistic(math.Abs(z)-e.Detect.Threshold)))
	dir := "up"
	if chg < 0 {
		dir = "down"
	}
	label := metricLabels[e.Detect.Metric]
	date := in.Start.AddDate(0, 0, day)

	impact := "{}"
	if len(e.PredictedImpact) > 0 {
		if b, err := json.Marshal(e.PredictedImpact); err == nil {
			impact = string(b)
		}
	}
	channel := e.Channel
	if channel == "" {
		channel = e.Detect.Scope
	}
	return models.Signal{
		EventName: e.Name,
		Kind:      e.Kind,
		Channel:   channel,
		Day:       day,
		Date:      date,
		Metric:    e.Detect.Metric,
		Baseline:  round(base, 4),
		Observed:  round(observed, 4),
		ChangePct: round(chg*100, 1),
		ZScore:    round(z, 2),
		Severity:  sev,
		Title: fmt.Sprintf("%s %s %s %.0f%% vs %d-day baseline",
			scopeLabel(e.Detect.Scope), label, dir, math.Abs(chg)*100, n),
		Description: fmt.Sprintf("%s. %s reached %s on %s against a baseline of %s (z=%.1f).",
			strings.TrimSuffix(e.Description, "."), capitalize(label), format(observed),
			date.Format("2006-01-02"), format(base), z),
		RecommendedAction: RecommendedAction(e.Kind),
		Confidence:        round(conf, 3),
		PriorityScore:     round(100*conf*severityWeight(sev)/3, 1),
		PredictedImpact:   impact,
	}
}

func severity(chg float64) string {
	switch a := math.Abs(chg); {
	case a >= 0.5:
		return SeverityCritical
	case a >= 0.25:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func severityWeight(s string) float64 {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	}
	return 1
}

func scopeLabel(scope string) string {
	if scope == events.TargetAll {
		return "Total paid"
	}
	return scope
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func format(v float64) string {
	switch a := math.Abs(v); {
	case a >= 100:
		return fmt.Sprintf("%.0f", v)
	case a >= 1:
		return fmt.Sprintf("%.2f", v)
	}
	return fmt.Sprintf("%.4f", v)
}
