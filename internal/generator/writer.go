package generator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash"

	"github.com/AngelCh415/marketing-datagen/internal/models"
)

// Writer receives generated rows table by table. Each call is expected to be
// atomic on the receiving side. WriteUsers is called once per batch, always
// after WriteCampaigns and before WritePerformance.
type Writer interface {
	WriteChannels(ctx context.Context, rows []models.Channel) error
	WriteCampaigns(ctx context.Context, campaigns []models.Campaign, creatives []models.Creative) error
	WriteUsers(ctx context.Context, users []models.UserInstall, sessions []models.UserSession) error
	WritePerformance(ctx context.Context, rows []models.DailyCampaignPerformance) error
	WriteOrganic(ctx context.Context, rows []models.DailyOrganicMetric) error
	WriteSignals(ctx context.Context, rows []models.Signal) error
}

type multiWriter []Writer

// MultiWriter fans every call out to ws in order, stopping at the first error.
func MultiWriter(ws ...Writer) Writer { return multiWriter(ws) }

func (m multiWriter) each(fn func(Writer) error) error {
	for _, w := range m {
		if err := fn(w); err != nil {
			return err
		}
	}
	return nil
}

func (m multiWriter) WriteChannels(ctx context.Context, rows []models.Channel) error {
	return m.each(func(w Writer) error { return w.WriteChannels(ctx, rows) })
}

func (m multiWriter) WriteCampaigns(ctx context.Context, c []models.Campaign, cr []models.Creative) error {
	return m.each(func(w Writer) error { return w.WriteCampaigns(ctx, c, cr) })
}

func (m multiWriter) WriteUsers(ctx context.Context, u []models.UserInstall, s []models.UserSession) error {
	return m.each(func(w Writer) error { return w.WriteUsers(ctx, u, s) })
}

func (m multiWriter) WritePerformance(ctx context.Context, rows []models.DailyCampaignPerformance) error {
	return m.each(func(w Writer) error { return w.WritePerformance(ctx, rows) })
}

func (m multiWriter) WriteOrganic(ctx context.Context, rows []models.DailyOrganicMetric) error {
	return m.each(func(w Writer) error { return w.WriteOrganic(ctx, rows) })
}

func (m multiWriter) WriteSignals(ctx context.Context, rows []models.Signal) error {
	return m.each(func(w Writer) error { return w.WriteSignals(ctx, rows) })
}

// Collector keeps the whole dataset in memory.
type Collector struct {
	Channels    []models.Channel
	Campaigns   []models.Campaign
	Creatives   []models.Creative
	Users       []models.UserInstall
	Sessions    []models.UserSession
	Performance []models.DailyCampaignPerformance
	Organic     []models.DailyOrganicMetric
	Signals     []models.Signal
}

func (c *Collector) WriteChannels(_ context.Context, rows []models.Channel) error {
	c.Channels = append(c.Channels, rows...)
	return nil
}

func (c *Collector) WriteCampaigns(_ context.Context, campaigns []models.Campaign, creatives []models.Creative) error {
	c.Campaigns = append(c.Campaigns, campaigns...)
	c.Creatives = append(c.Creatives, creatives...)
	return nil
}

func (c *Collector) WriteUsers(_ context.Context, users []models.UserInstall, sessions []models.UserSession) error {
	c.Users = append(c.Users, users...)
	c.Sessions = append(c.Sessions, sessions...)
	return nil
}

func (c *Collector) WritePerformance(_ context.Context, rows []models.DailyCampaignPerformance) error {
	c.Performance = append(c.Performance, rows...)
	return nil
}

func (c *Collector) WriteOrganic(_ context.Context, rows []models.DailyOrganicMetric) error {
	c.Organic = append(c.Organic, rows...)
	return nil
}

func (c *Collector) WriteSignals(_ context.Context, rows []models.Signal) error {
	c.Signals = append(c.Signals, rows...)
	return nil
}

// digestTables is the fixed order per-table sums are folded into the digest.
var digestTables = []string{
	"channels", "campaigns", "creatives", "daily_campaign_performance",
	"user_installs", "user_sessions", "daily_organic_metrics", "signals",
}

// Digest hashes each table's rows in write order. Two runs with equal
// digests wrote byte-identical tables, however the rows were batched.
type Digest struct {
	hs map[string]hash.Hash
}

func NewDigest() *Digest {
	d := &Digest{hs: make(map[string]hash.Hash, len(digestTables))}
	for _, t := range digestTables {
		d.hs[t] = sha256.New()
	}
	return d
}

func (d *Digest) Sum() string {
	h := sha256.New()
	for _, t := range digestTables {
		h.Write([]byte(t))
		h.Write(d.hs[t].Sum(nil))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestRows[T any](d *Digest, table string, rows []T) error {
	h := d.hs[table]
	for _, r := range rows {
		b, err := json.Marshal(r)
		if err != nil {
			return err
		}
		h.Write(b)
		h.Write([]byte{'\n'})
	}
	return nil
}

func (d *Digest) WriteChannels(_ context.Context, rows []models.Channel) error {
	return digestRows(d, "channels", rows)
}

func (d *Digest) WriteCampaigns(_ context.Context, campaigns []models.Campaign, creatives []models.Creative) error {
	if err := digestRows(d, "campaigns", campaigns); err != nil {
		return err
	}
	return digestRows(d, "creatives", creatives)
}

func (d *Digest) WriteUsers(_ context.Context, users []models.UserInstall, sessions []models.UserSession) error {
	if err := digestRows(d, "user_installs", users); err != nil {
		return err
	}
	return digestRows(d, "user_sessions", sessions)
}

func (d *Digest) WritePerformance(_ context.Context, rows []models.DailyCampaignPerformance) error {
	return digestRows(d, "daily_campaign_performance", rows)
}

func (d *Digest) WriteOrganic(_ context.Context, rows []models.DailyOrganicMetric) error {
	return digestRows(d, "daily_organic_metrics", rows)
}

func (d *Digest) WriteSignals(_ context.Context, rows []models.Signal) error {
	return digestRows(d, "signals", rows)
}
