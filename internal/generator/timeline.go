package generator

import (
	"math"
	"time"

	"github.com/AngelCh415/marketing-datagen/internal/events"
	"github.com/AngelCh415/marketing-datagen/internal/models"
	"github.com/AngelCh415/marketing-datagen/internal/profiles"
	"github.com/AngelCh415/marketing-datagen/internal/rng"
)

// perfRow carries a generated performance row plus the creative users on
// that campaign-day are attributed to.
type perfRow struct {
	models.DailyCampaignPerformance
	creativeID int64
	channel    string
}

type timeline struct {
	rows []perfRow
	// byDay[d] indexes the rows of day d
	byDay [][]int
	// paid totals per day, read by the organic generator
	paidInstalls []int
	paidSpend    []float64
}

// simulate produces one row per (day, channel, active campaign), in that
// order. Channels with no active campaign contribute zero spend.
func simulate(r *rng.Source, t profiles.Table, cat catalog, ev events.Set, days int, start time.Time, scale float64, diag *diagnostics) timeline {
	tl := timeline{
		byDay:        make([][]int, days),
		paidInstalls: make([]int, days),
		paidSpend:    make([]float64, days),
	}
	byChannel := map[string][]models.Campaign{}
	for _, c := range cat.campaigns {
		byChannel[c.Channel] = append(byChannel[c.Channel], c)
	}
	var id int64
	for d := 0; d < days; d++ {
		date := dayDate(start, d)
		for _, prof := range t.Channels {
			var active []models.Campaign
			for _, c := range byChannel[prof.Name] {
				if c.Active(d) {
					active = append(active, c)
				}
			}
			if len(active) == 0 {
				continue
			}
			weekend := 1.0
			if isWeekend(date) {
				weekend = prof.WeekendMultiplier
			}
			for _, c := range active {
				id++
				row := simulateDay(r, prof, c, cat.byCampaign[c.ID], ev, d, len(active), weekend, scale, t.FatigueFloor, diag)
				row.ID = id
				row.Date = date
				tl.byDay[d] = append(tl.byDay[d], len(tl.rows))
				tl.rows = append(tl.rows, row)
				tl.paidInstalls[d] += row.Installs
				tl.paidSpend[d] += row.Spend
			}
		}
	}
	return tl
}

func simulateDay(r *rng.Source, prof profiles.ChannelProfile, c models.Campaign, crs []models.Creative,
	ev events.Set, day, active int, weekend, scale, floor float64, diag *diagnostics) perfRow {
	ch := prof.Name
	meanFatigue, best := campaignFatigue(crs, prof.FatigueDecayRate, floor, day)

	target := float64(prof.DailyVolume) * scale / float64(active) * r.Uniform(0.8, 1.2) * weekend
	target = ev.Apply(ch, events.MetricVolume, day, target)
	impressions := int(math.Floor(diag.reclamp("impressions", target/(c.BaseCTR*c.BaseCVR), 0, math.MaxInt32)))

	ctr := c.BaseCTR * r.Uniform(0.9, 1.1)
	ctr = diag.reclamp("ctr", ev.Apply(ch, events.MetricCTR, day, ctr), 0, 1)
	cvr := c.BaseCVR * meanFatigue
	cvr = diag.reclamp("cvr", ev.Apply(ch, events.MetricCVR, day, cvr), 0, 1)

	clicks := int(math.Floor(float64(impressions) * ctr))
	installs := int(math.Floor(float64(clicks) * cvr))

	cpi := prof.BaseCPI * r.Normal(1, prof.CPIVariance)
	cpi = ev.Apply(ch, events.MetricCPI, day, cpi)
	cpi = ev.Apply(ch, events.MetricSpend, day, cpi)
	cpi /= meanFatigue
	cpi = round2(diag.reclamp("cpi", cpi, prof.CPIMin, prof.CPIMax))
	if installs == 0 {
		// nothing was bought
		cpi = 0
	}
	spend := cents(cpi).Mul(cents(float64(installs))).Round(2)
	spendF, _ := spend.Float64()

	return perfRow{
		DailyCampaignPerformance: models.DailyCampaignPerformance{
			CampaignID:    c.ID,
			ChannelID:     c.ChannelID,
			Day:           day,
			Spend:         spendF,
			Impressions:   impressions,
			Clicks:        clicks,
			Installs:      installs,
			CPI:           cpi,
			CTR:           roundTo(ctr, 4),
			CVR:           roundTo(cvr, 4),
			FatigueFactor: roundTo(meanFatigue, 4),
		},
		creativeID: best,
		channel:    ch,
	}
}
