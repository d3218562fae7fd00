// Package validate checks a generated dataset against the properties every
// run must satisfy. It is a generator.Writer, so it can observe a run as it
// streams and report afterwards. Violations are data, never errors.
package validate

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/AngelCh415/marketing-datagen/internal/events"
	"github.com/AngelCh415/marketing-datagen/internal/models"
)

const (
	PropReferential   = "referential_integrity"
	PropWindow        = "lifecycle_window"
	PropCPIBand       = "cpi_band"
	PropCounts        = "count_ordering"
	PropConservation  = "conservation"
	PropFatigue       = "monotonic_fatigue"
	PropDetectability = "golden_event_detectability"

	maxKept = 200
)

type Violation struct {
	Property string `json:"property"`
	Detail   string `json:"detail"`
}

type Result struct {
	Rows       map[string]int `json:"rows"`
	Counts     map[string]int `json:"violations_by_property"`
	Violations []Violation    `json:"violations"`
}

func (r Result) OK() bool { return len(r.Counts) == 0 }

type Checker struct {
	events events.Set
	days   int

	channels  map[int64]models.Channel
	campaigns map[int64]models.Campaign
	creatives map[int64]int64 // creative -> campaign
	users     map[string]struct{}

	usersByDay   map[int]int
	paidByDay    map[int]int
	organicByDay map[int]int
	perf         []models.DailyCampaignPerformance
	signals      []models.Signal

	rows       map[string]int
	counts     map[string]int
	violations []Violation
}

func NewChecker(set events.Set, days int) *Checker {
	return &Checker{
		events:       set,
		days:         days,
		channels:     map[int64]models.Channel{},
		campaigns:    map[int64]models.Campaign{},
		creatives:    map[int64]int64{},
		users:        map[string]struct{}{},
		usersByDay:   map[int]int{},
		paidByDay:    map[int]int{},
		organicByDay: map[int]int{},
		rows:         map[string]int{},
		counts:       map[string]int{},
	}
}

func (c *Checker) fail(prop, format string, args ...any) {
	c.counts[prop]++
	if len(c.violations) < maxKept {
		c.violations = append(c.violations, Violation{Property: prop, Detail: fmt.Sprintf(format, args...)})
	}
}

func (c *Checker) WriteChannels(_ context.Context, rows []models.Channel) error {
	for _, r := range rows {
		c.channels[r.ID] = r
	}
	c.rows["channels"] += len(rows)
	return nil
}

func (c *Checker) WriteCampaigns(_ context.Context, campaigns []models.Campaign, creatives []models.Creative) error {
	for _, cm := range campaigns {
		if _, ok := c.channels[cm.ChannelID]; !ok {
			c.fail(PropReferential, "campaign %d references unknown channel %d", cm.ID, cm.ChannelID)
		}
		if cm.StartDay > cm.EndDay || cm.StartDay < 0 || cm.EndDay >= c.days {
			c.fail(PropWindow, "campaign %d window [%d, %d] outside run", cm.ID, cm.StartDay, cm.EndDay)
		}
		c.campaigns[cm.ID] = cm
	}
	for _, cr := range creatives {
		if _, ok := c.campaigns[cr.CampaignID]; !ok {
			c.fail(PropReferential, "creative %d references unknown campaign %d", cr.ID, cr.CampaignID)
		}
		c.creatives[cr.ID] = cr.CampaignID
	}
	c.rows["campaigns"] += len(campaigns)
	c.rows["creatives"] += len(creatives)
	return nil
}

func (c *Checker) WriteUsers(_ context.Context, users []models.UserInstall, sessions []models.UserSession) error {
	for _, u := range users {
		c.users[u.UserID] = struct{}{}
		c.usersByDay[u.InstallDay]++
		if u.Source != models.SourcePaid {
			continue
		}
		cm, ok := c.campaigns[u.CampaignID]
		if !ok {
			c.fail(PropReferential, "user %s references unknown campaign %d", u.UserID, u.CampaignID)
			continue
		}
		if !cm.Active(u.InstallDay) {
			c.fail(PropWindow, "user %s installed on day %d outside campaign %d", u.UserID, u.InstallDay, cm.ID)
		}
		if owner, ok := c.creatives[u.CreativeID]; !ok || owner != u.CampaignID {
			c.fail(PropReferential, "user %s creative %d not in campaign %d", u.UserID, u.CreativeID, u.CampaignID)
		}
	}
	for _, s := range sessions {
		if _, ok := c.users[s.UserID]; !ok {
			c.fail(PropReferential, "session %s references unknown user %s", s.SessionID, s.UserID)
		}
		if s.Day >= c.days {
			c.fail(PropWindow, "session %s on day %d beyond run", s.SessionID, s.Day)
		}
	}
	c.rows["user_installs"] += len(users)
	c.rows["user_sessions"] += len(sessions)
	return nil
}

func (c *Checker) WritePerformance(_ context.Context, rows []models.DailyCampaignPerformance) error {
	for _, r := range rows {
		c.perf = append(c.perf, r)
		c.paidByDay[r.Day] += r.Installs
		cm, ok := c.campaigns[r.CampaignID]
		if !ok {
			c.fail(PropReferential, "performance row %d references unknown campaign %d", r.ID, r.CampaignID)
			continue
		}
		if !cm.Active(r.Day) {
			c.fail(PropWindow, "performance row %d on day %d outside campaign %d [%d, %d]", r.ID, r.Day, cm.ID, cm.StartDay, cm.EndDay)
		}
		if r.Impressions < 0 || r.Clicks > r.Impressions || r.Installs > r.Clicks || r.Clicks < 0 || r.Installs < 0 {
			c.fail(PropCounts, "performance row %d: impressions %d, clicks %d, installs %d", r.ID, r.Impressions, r.Clicks, r.Installs)
		}
		ch := c.channels[cm.ChannelID]
		switch {
		case r.Installs == 0:
			if r.CPI != 0 || r.Spend != 0 {
				c.fail(PropCPIBand, "performance row %d: no installs but CPI %.2f, spend %.2f", r.ID, r.CPI, r.Spend)
			}
		case r.CPI < ch.CPIMin || r.CPI > ch.CPIMax:
			c.fail(PropCPIBand, "performance row %d: CPI %.2f outside [%.2f, %.2f]", r.ID, r.CPI, ch.CPIMin, ch.CPIMax)
		default:
			eff := r.Spend / float64(r.Installs)
			if eff < ch.CPIMin-0.005 || eff > ch.CPIMax+0.005 {
				c.fail(PropCPIBand, "performance row %d: spend/installs %.4f outside band", r.ID, eff)
			}
		}
	}
	c.rows["daily_campaign_performance"] += len(rows)
	return nil
}

func (c *Checker) WriteOrganic(_ context.Context, rows []models.DailyOrganicMetric) error {
	for _, r := range rows {
		c.organicByDay[r.Day] += r.OrganicInstalls
	}
	c.rows["daily_organic_metrics"] += len(rows)
	return nil
}

func (c *Checker) WriteSignals(_ context.Context, rows []models.Signal) error {
	c.signals = append(c.signals, rows...)
	c.rows["signals"] += len(rows)
	return nil
}

// Result runs the whole-dataset checks and returns everything found.
func (c *Checker) Result() Result {
	c.checkConservation()
	c.checkFatigue()
	c.checkDetectability()
	rows := make(map[string]int, len(c.rows))
	for k, v := range c.rows {
		rows[k] = v
	}
	counts := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		counts[k] = v
	}
	return Result{Rows: rows, Counts: counts, Violations: append([]Violation(nil), c.violations...)}
}

func (c *Checker) checkConservation() {
	for d := 0; d < c.days; d++ {
		want := c.paidByDay[d] + c.organicByDay[d]
		if got := c.usersByDay[d]; got != want {
			c.fail(PropConservation, "day %d: %d paid + %d organic installs but %d users", d, c.paidByDay[d], c.organicByDay[d], got)
		}
	}
}

// checkFatigue requires CVR to be non-increasing between consecutive days
// of a campaign unless an event moving CVR on its channel is active.
func (c *Checker) checkFatigue() {
	rows := append([]models.DailyCampaignPerformance(nil), c.perf...)
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CampaignID != rows[j].CampaignID {
			return rows[i].CampaignID < rows[j].CampaignID
		}
		return rows[i].Day < rows[j].Day
	})
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if prev.CampaignID != cur.CampaignID || cur.Day != prev.Day+1 {
			continue
		}
		ch := c.campaigns[cur.CampaignID].Channel
		if c.cvrEventActive(ch, prev.Day) || c.cvrEventActive(ch, cur.Day) {
			continue
		}
		if cur.CVR > prev.CVR+1e-9 {
			c.fail(PropFatigue, "campaign %d: CVR rose from %.4f to %.4f on day %d", cur.CampaignID, prev.CVR, cur.CVR, cur.Day)
		}
	}
}

func (c *Checker) cvrEventActive(channel string, day int) bool {
	for _, e := range c.events.ActiveOn(channel, day) {
		if _, ok := e.Multipliers[events.MetricCVR]; ok {
			return true
		}
		if _, ok := e.Offsets[events.MetricCVR]; ok {
			return true
		}
	}
	return false
}

func (c *Checker) checkDetectability() {
	for _, e := range c.events.Events {
		if !e.Intersects(c.days) {
			continue
		}
		found := false
		for _, s := range c.signals {
			if s.EventName == e.Name && s.Channel == e.Channel && s.Day >= e.Day && s.Day < int(math.Min(float64(e.End()), float64(c.days))) {
				found = true
				break
			}
		}
		if !found {
			c.fail(PropDetectability, "golden event %s (day %d, %s) has no signal in its active window", e.Name, e.Day, e.Channel)
		}
	}
}
