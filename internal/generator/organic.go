package generator

import (
	"math"
	"time"

	"github.com/AngelCh415/marketing-datagen/internal/events"
	"github.com/AngelCh415/marketing-datagen/internal/models"
	"github.com/AngelCh415/marketing-datagen/internal/profiles"
	"github.com/AngelCh415/marketing-datagen/internal/rng"
)

const haloLag = 3

// walk is a clamped random walk.
type walk struct {
	v, sd, lo, hi float64
}

func (w *walk) step(r *rng.Source) float64 {
	w.v = clamp(w.v+r.Normal(0, w.sd), w.lo, w.hi)
	return w.v
}

// buildOrganic produces one row per day. Paid activity over the previous
// one to three days lifts installs, rank and mentions.
func buildOrganic(r *rng.Source, t profiles.Table, tl timeline, ev events.Set, days int, start time.Time, scale float64, diag *diagnostics) []models.DailyOrganicMetric {
	rank := walk{v: 60, sd: 1.5, lo: 30, hi: 90}
	rating := walk{v: 4.4, sd: 0.02, lo: 4.0, hi: 4.8}
	sentiment := walk{v: 0.72, sd: 0.02, lo: 0.4, hi: 0.95}

	nominalSpend := 0.0
	for _, p := range t.Channels {
		nominalSpend += p.BaseCPI * float64(p.DailyVolume) * scale
	}

	org := t.Organic
	out := make([]models.DailyOrganicMetric, days)
	for d := 0; d < days; d++ {
		lagInstalls, lagSpend := laggedPaid(tl, d)
		haloRatio := 1.0
		if d > 0 && nominalSpend > 0 {
			haloRatio = lagSpend / nominalSpend
		}

		base := math.Floor(float64(org.BaseInstalls) * scale * r.Uniform(0.8, 1.2))
		halo := math.Floor(org.HaloRate * lagInstalls)
		installs := ev.Apply(events.TargetOrganic, events.MetricOrganicInstalls, d, base+halo)
		installs = math.Floor(diag.reclamp("organic_installs", installs, 0, math.MaxInt32))

		rk := math.Round(rank.step(r) - 10*(haloRatio-1))
		rk = ev.Apply(events.TargetOrganic, events.MetricAppStoreRank, d, rk)
		rk = diag.reclamp("app_store_rank", math.Round(rk), 1, 500)

		snt := ev.Apply(events.TargetOrganic, events.MetricSentiment, d, sentiment.step(r))
		snt = diag.reclamp("sentiment_score", snt, -1, 1)

		mentions := float64(org.BaseMentions) * r.Uniform(0.85, 1.15) * (1 + 0.3*(haloRatio-1))
		mentions = ev.Apply(events.TargetOrganic, events.MetricSocialMentions, d, mentions)
		mentions = diag.reclamp("social_mentions", math.Round(mentions), 0, math.MaxInt32)

		out[d] = models.DailyOrganicMetric{
			Day:                  d,
			Date:                 dayDate(start, d),
			OrganicInstalls:      int(installs),
			AppStoreRank:         int(rk),
			AppStoreRating:       roundTo(rating.step(r), 2),
			AppStoreReviews:      int(math.Round(installs * 0.02)),
			SocialMentions:       int(mentions),
			SentimentScore:       roundTo(snt, 3),
			PaidHaloContribution: halo,
		}
	}
	return out
}

// laggedPaid averages paid installs and spend over the up to three days
// before d.
func laggedPaid(tl timeline, d int) (installs, spend float64) {
	n := 0
	for k := d - haloLag; k < d; k++ {
		if k < 0 {
			continue
		}
		installs += float64(tl.paidInstalls[k])
		spend += tl.paidSpend[k]
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return installs / float64(n), spend / float64(n)
}
