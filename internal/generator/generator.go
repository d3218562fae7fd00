// Package generator produces the synthetic marketing dataset: channels,
// campaigns and creatives, daily campaign performance, users with their
// sessions, organic metrics and the signals golden events leave behind.
//
// A run is a single sequential pass driven by one seeded random stream.
// Identical Params always yield byte-identical output in identical write
// order; Report.Digest fingerprints it.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AngelCh415/marketing-datagen/internal/events"
	"github.com/AngelCh415/marketing-datagen/internal/models"
	"github.com/AngelCh415/marketing-datagen/internal/profiles"
	"github.com/AngelCh415/marketing-datagen/internal/rng"
	"github.com/AngelCh415/marketing-datagen/internal/signals"
)

type Report struct {
	Seed            int64          `json:"seed"`
	Days            int            `json:"days"`
	StartDate       string         `json:"start_date"`
	Channels        int            `json:"channels"`
	Campaigns       int            `json:"campaigns"`
	Creatives       int            `json:"creatives"`
	PerformanceRows int            `json:"performance_rows"`
	Users           int            `json:"users"`
	Sessions        int            `json:"sessions"`
	OrganicRows     int            `json:"organic_rows"`
	Signals         int            `json:"signals"`
	Reclamps        map[string]int `json:"reclamps"`
	Undetected      []string       `json:"undetected_events"`
	Digest          string         `json:"digest"`
	Elapsed         string         `json:"elapsed"`
}

type Generator struct {
	params Params
	table  profiles.Table
	events events.Set
	log    *slog.Logger
}

// New validates everything up front so a run never starts on bad input.
func New(p Params, log *slog.Logger) (*Generator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	table := profiles.Default()
	if p.Profiles != nil {
		table = *p.Profiles
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	for name := range p.ChannelCampaigns {
		if _, err := table.Lookup(name); err != nil {
			return nil, fmt.Errorf("%w: channel_campaigns: %v", ErrInvalidParams, err)
		}
	}
	set := events.Default()
	if p.Events != nil {
		set = *p.Events
	}
	if err := set.Validate(table.Names()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Generator{params: p, table: table, events: set, log: log}, nil
}

func (g *Generator) Params() Params        { return g.params }
func (g *Generator) Events() events.Set    { return g.events }
func (g *Generator) Table() profiles.Table { return g.table }

// scale maps the nominal profile volumes onto the requested user count.
func (g *Generator) scale() float64 {
	p := g.params
	denom := float64(p.Days) * float64(g.table.TotalDailyVolume()+g.table.Organic.BaseInstalls)
	return safeDiv(float64(p.Users), denom)
}

// Run generates the dataset into w. Persistence errors abort the run; a
// golden event without a signal is only reported.
func (g *Generator) Run(ctx context.Context, w Writer) (Report, error) {
	began := time.Now()
	p := g.params
	r := rng.New(p.Seed)
	diag := newDiagnostics()
	digest := NewDigest()
	out := MultiWriter(w, digest)
	start := p.start()
	scale := g.scale()

	g.log.Info("generation started",
		"seed", p.Seed, "days", p.Days, "users", p.Users, "campaigns", p.Campaigns,
		"start", start.Format("2006-01-02"), "events", len(g.events.Events))

	channels := buildChannels(g.table)
	if err := out.WriteChannels(ctx, channels); err != nil {
		return Report{}, fmt.Errorf("write channels: %w", err)
	}
	rowsGenerated.WithLabelValues("channels").Add(float64(len(channels)))

	cat := buildCatalog(r, g.table, channels, p, scale)
	if err := out.WriteCampaigns(ctx, cat.campaigns, cat.creatives); err != nil {
		return Report{}, fmt.Errorf("write campaigns: %w", err)
	}
	rowsGenerated.WithLabelValues("campaigns").Add(float64(len(cat.campaigns)))
	rowsGenerated.WithLabelValues("creatives").Add(float64(len(cat.creatives)))

	tl := simulate(r, g.table, cat, g.events, p.Days, start, scale, diag)
	organic := buildOrganic(r, g.table, tl, g.events, p.Days, start, scale, diag)

	perf := func() []models.DailyCampaignPerformance {
		rows := make([]models.DailyCampaignPerformance, len(tl.rows))
		for i, row := range tl.rows {
			rows[i] = row.DailyCampaignPerformance
		}
		return rows
	}
	sigs, misses := signals.Materialize(signals.Input{
		Days:        p.Days,
		Start:       start,
		Channels:    channels,
		Performance: perf(),
		Organic:     organic,
		Events:      g.events,
	})
	undetected := make([]string, 0, len(misses))
	for _, m := range misses {
		undetected = append(undetected, m.Event)
		undetectedEvents.Inc()
		g.log.Warn("golden event produced no signal", "event", m.Event, "reason", m.Reason)
	}

	us := newUserSynth(r, g.table, g.events, p.Days, start, p.batchSize(), out)
	if err := us.run(ctx, &tl, organic); err != nil {
		return Report{}, fmt.Errorf("write users: %w", err)
	}

	perfRows := perf()
	if err := out.WritePerformance(ctx, perfRows); err != nil {
		return Report{}, fmt.Errorf("write performance: %w", err)
	}
	rowsGenerated.WithLabelValues("daily_campaign_performance").Add(float64(len(perfRows)))
	if err := out.WriteOrganic(ctx, organic); err != nil {
		return Report{}, fmt.Errorf("write organic: %w", err)
	}
	rowsGenerated.WithLabelValues("daily_organic_metrics").Add(float64(len(organic)))
	if err := out.WriteSignals(ctx, sigs); err != nil {
		return Report{}, fmt.Errorf("write signals: %w", err)
	}
	rowsGenerated.WithLabelValues("signals").Add(float64(len(sigs)))

	elapsed := time.Since(began)
	runSeconds.Observe(elapsed.Seconds())
	rep := Report{
		Seed:            p.Seed,
		Days:            p.Days,
		StartDate:       start.Format("2006-01-02"),
		Channels:        len(channels),
		Campaigns:       len(cat.campaigns),
		Creatives:       len(cat.creatives),
		PerformanceRows: len(perfRows),
		Users:           us.totalUsers,
		Sessions:        us.totalSessions,
		OrganicRows:     len(organic),
		Signals:         len(sigs),
		Reclamps:        diag.snapshot(),
		Undetected:      undetected,
		Digest:          digest.Sum(),
		Elapsed:         elapsed.Round(time.Millisecond).String(),
	}
	g.log.Info("generation finished",
		"users", rep.Users, "sessions", rep.Sessions, "performance_rows", rep.PerformanceRows,
		"signals", rep.Signals, "undetected", len(undetected), "digest", rep.Digest, "elapsed", rep.Elapsed)
	return rep, nil
}
