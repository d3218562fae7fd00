package generator

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AngelCh415/marketing-datagen/internal/events"
	"github.com/AngelCh415/marketing-datagen/internal/models"
	"github.com/AngelCh415/marketing-datagen/internal/profiles"
	"github.com/AngelCh415/marketing-datagen/internal/rng"
)

const organicQuality = 0.75

// acquisition is everything a new user inherits from where it came from.
type acquisition struct {
	source         string
	channelID      int64
	channel        string
	campaignID     int64
	creativeID     int64
	quality        float64
	ltvMultiplier  float64
	segmentWeights []float64
	deviceWeights  []float64
}

// cohortStats accumulates what a campaign-day's users went on to do.
type cohortStats struct {
	revenue decimal.Decimal
	d1, d7  int
	users   int
}

type userSynth struct {
	r        *rng.Source
	t        profiles.Table
	ev       events.Set
	days     int
	start    time.Time
	geo      []float64
	batch    int
	w        Writer
	users    []models.UserInstall
	sessions []models.UserSession

	totalUsers, totalSessions int
}

func newUserSynth(r *rng.Source, t profiles.Table, ev events.Set, days int, start time.Time, batch int, w Writer) *userSynth {
	return &userSynth{
		r: r, t: t, ev: ev, days: days, start: start, batch: batch, w: w,
		geo: t.CountryWeights(),
	}
}

// run turns every install of the timeline and organic series into a user,
// streaming batches to the writer. Cohort outcomes flow back into the
// timeline rows.
func (u *userSynth) run(ctx context.Context, tl *timeline, organic []models.DailyOrganicMetric) error {
	stats := make([]cohortStats, len(tl.rows))
	for d := 0; d < u.days; d++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, idx := range tl.byDay[d] {
			row := tl.rows[idx]
			prof, _ := u.t.Lookup(row.channel)
			acq := acquisition{
				source:         models.SourcePaid,
				channelID:      row.ChannelID,
				channel:        row.channel,
				campaignID:     row.CampaignID,
				creativeID:     row.creativeID,
				quality:        prof.QualityScore,
				ltvMultiplier:  prof.LTVMultiplier * u.ev.Factor(row.channel, events.MetricLTV, d),
				segmentWeights: prof.SegmentWeights,
				deviceWeights:  prof.DeviceWeights,
			}
			for i := 0; i < row.Installs; i++ {
				usr, err := u.user(ctx, acq, d)
				if err != nil {
					return err
				}
				st := &stats[idx]
				st.users++
				st.revenue = st.revenue.Add(decimal.NewFromFloat(usr.LTV))
				if usr.D1Active {
					st.d1++
				}
				if usr.D7Active {
					st.d7++
				}
			}
		}
		org := acquisition{
			source:         models.SourceOrganic,
			channel:        models.OrganicChannel,
			quality:        organicQuality,
			ltvMultiplier:  u.ev.Factor(events.TargetOrganic, events.MetricLTV, d),
			segmentWeights: u.t.Organic.SegmentWeights,
			deviceWeights:  u.t.Organic.DeviceWeights,
		}
		for i := 0; i < organic[d].OrganicInstalls; i++ {
			if _, err := u.user(ctx, org, d); err != nil {
				return err
			}
		}
	}
	if err := u.flush(ctx); err != nil {
		return err
	}
	for i := range tl.rows {
		row := &tl.rows[i]
		st := stats[i]
		rev, _ := st.revenue.Round(2).Float64()
		row.Revenue = rev
		row.ROAS = roundTo(safeDiv(rev, row.Spend), 3)
		row.RetentionD1 = roundTo(safeDiv(float64(st.d1), float64(st.users)), 4)
		row.RetentionD7 = roundTo(safeDiv(float64(st.d7), float64(st.users)), 4)
	}
	return nil
}

// retention resolves the D1/D7/D30 curve for a segment, shifted by channel
// quality and any active retention effect, kept non-increasing.
func (u *userSynth) retention(sp profiles.SegmentProfile, acq acquisition, day int) (d1, d7, d30 float64) {
	adj := 1 + (acq.quality-0.65)*0.5
	target := acq.channel
	if acq.source == models.SourceOrganic {
		target = events.TargetOrganic
	}
	shift := func(v float64) float64 {
		return clamp(u.ev.Apply(target, events.MetricRetention, day, v*adj), 0, 1)
	}
	d1 = shift(sp.D1)
	d7 = math.Min(shift(sp.D7), d1)
	d30 = math.Min(shift(sp.D30), d7)
	return
}

// survival is the conditional probability of still being active on day
// offset t given activity on t-1, interpolating the curve geometrically.
func survival(t int, d1, d7, d30 float64) float64 {
	ratio := func(a, b float64, n int) float64 {
		if a <= 0 {
			return 0
		}
		return math.Pow(b/a, 1/float64(n))
	}
	switch {
	case t <= 1:
		return d1
	case t <= 7:
		return ratio(d1, d7, 6)
	default:
		return ratio(d7, d30, 23)
	}
}

func (u *userSynth) user(ctx context.Context, acq acquisition, day int) (models.UserInstall, error) {
	r := u.r
	seg := profiles.Segments[r.Categorical(acq.segmentWeights)]
	sp := u.t.Segment(seg)
	installDate := dayDate(u.start, day)
	usr := models.UserInstall{
		UserID:      r.UUID(),
		InstallDay:  day,
		InstallDate: installDate,
		Source:      acq.source,
		ChannelID:   acq.channelID,
		Channel:     acq.channel,
		CampaignID:  acq.campaignID,
		CreativeID:  acq.creativeID,
		Device:      profiles.Devices[r.Categorical(acq.deviceWeights)],
		Country:     u.t.Countries[r.Categorical(u.geo)].Code,
		Segment:     seg,
		IsPayer:     r.Bernoulli(sp.PayingRate),
		ChurnDay:    -1,
	}
	d1, d7, d30 := u.retention(sp, acq, day)

	var ltv, ltv7, ltv30 decimal.Decimal
	whole, frac := math.Modf(sp.SessionRate)
	horizon := u.days - day
	for t := 0; t < horizon; t++ {
		if t > 0 && !r.Bernoulli(survival(t, d1, d7, d30)) {
			usr.IsChurned = true
			usr.ChurnDay = t
			break
		}
		switch t {
		case 1:
			usr.D1Active = true
		case 7:
			usr.D7Active = true
		case 30:
			usr.D30Active = true
		}
		n := int(whole)
		if r.Bernoulli(frac) {
			n++
		}
		if t == 0 && n == 0 {
			n = 1
		}
		for k := 0; k < n; k++ {
			s := u.session(usr, sp, acq, t, installDate)
			usr.SessionCount++
			rev := decimal.NewFromFloat(s.Revenue)
			ltv = ltv.Add(rev)
			if t < 7 {
				usr.SessionCount7d++
				ltv7 = ltv7.Add(rev)
			}
			if t < 30 {
				usr.SessionCount30d++
				ltv30 = ltv30.Add(rev)
			}
			u.sessions = append(u.sessions, s)
		}
	}
	usr.LTV, _ = ltv.Round(2).Float64()
	usr.LTV7d, _ = ltv7.Round(2).Float64()
	usr.LTV30d, _ = ltv30.Round(2).Float64()

	u.users = append(u.users, usr)
	u.totalUsers++
	if len(u.users) >= u.batch {
		if err := u.flush(ctx); err != nil {
			return usr, err
		}
	}
	return usr, nil
}

func (u *userSynth) session(usr models.UserInstall, sp profiles.SegmentProfile, acq acquisition, t int, installDate time.Time) models.UserSession {
	r := u.r
	s := models.UserSession{
		SessionID:       r.UUID(),
		UserID:          usr.UserID,
		Day:             usr.InstallDay + t,
		DayOffset:       t,
		StartedAt:       installDate.AddDate(0, 0, t).Add(time.Duration(r.IntRange(0, 86399)) * time.Second),
		DurationSeconds: r.IntRange(sp.SessionMinSecs, sp.SessionMaxSecs),
		EngagementScore: roundTo(r.Uniform(sp.EngagementFloor, 100), 2),
	}
	if usr.IsPayer && r.Bernoulli(sp.PurchaseProb) {
		amount := sp.AvgPurchase * r.Uniform(0.5, 2.0) * acq.ltvMultiplier
		s.Revenue = round2(amount)
	}
	return s
}

func (u *userSynth) flush(ctx context.Context) error {
	if len(u.users) == 0 {
		return nil
	}
	if err := u.w.WriteUsers(ctx, u.users, u.sessions); err != nil {
		return err
	}
	rowsGenerated.WithLabelValues("user_installs").Add(float64(len(u.users)))
	rowsGenerated.WithLabelValues("user_sessions").Add(float64(len(u.sessions)))
	u.totalSessions += len(u.sessions)
	u.users = make([]models.UserInstall, 0, u.batch)
	u.sessions = nil
	return nil
}
