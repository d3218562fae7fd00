package generator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/marketing-datagen/internal/events"
	"github.com/AngelCh415/marketing-datagen/internal/models"
	"github.com/AngelCh415/marketing-datagen/internal/profiles"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func params(days, users, campaigns int) Params {
	p := DefaultParams()
	p.Days, p.Users, p.Campaigns = days, users, campaigns
	return p
}

func run(t *testing.T, p Params) (*Collector, Report) {
	t.Helper()
	g, err := New(p, quietLogger())
	require.NoError(t, err)
	c := &Collector{}
	rep, err := g.Run(context.Background(), c)
	require.NoError(t, err)
	return c, rep
}

func TestSmallScenarioIsStable(t *testing.T) {
	c1, r1 := run(t, params(7, 1000, 2))
	c2, r2 := run(t, params(7, 1000, 2))

	assert.Len(t, c1.Channels, 4)
	assert.Len(t, c1.Campaigns, 8)
	assert.Len(t, c1.Creatives, 24)
	assert.NotZero(t, len(c1.Users))
	assert.NotZero(t, len(c1.Sessions))

	assert.Equal(t, len(c1.Users), len(c2.Users))
	assert.Equal(t, len(c1.Sessions), len(c2.Sessions))
	assert.Equal(t, r1.Digest, r2.Digest)
	assert.Equal(t, c1.Users[0].UserID, c2.Users[0].UserID)
	assert.Equal(t, len(c1.Users), r1.Users)
	assert.Equal(t, len(c1.Sessions), r1.Sessions)
}

func TestDigestDependsOnSeedNotBatching(t *testing.T) {
	p := params(14, 3000, 2)
	c1, base := run(t, p)

	p.BatchSize = 7
	c2, batched := run(t, p)
	assert.Equal(t, c1.Users, c2.Users)
	assert.Equal(t, c1.Sessions, c2.Sessions)
	assert.Equal(t, base.Digest, batched.Digest)

	p.Seed = 7
	_, other := run(t, p)
	assert.NotEqual(t, base.Digest, other.Digest)
}

func TestDigestIgnoresCallSplit(t *testing.T) {
	ctx := context.Background()
	users := []models.UserInstall{{UserID: "a"}, {UserID: "b"}, {UserID: "c"}}
	sessions := []models.UserSession{{UserID: "a"}, {UserID: "b", Day: 1}, {UserID: "c", Day: 2}}

	whole := NewDigest()
	require.NoError(t, whole.WriteUsers(ctx, users, sessions))

	split := NewDigest()
	require.NoError(t, split.WriteUsers(ctx, users[:1], sessions[:1]))
	require.NoError(t, split.WriteUsers(ctx, users[1:], sessions[1:]))
	assert.Equal(t, whole.Sum(), split.Sum())

	swapped := NewDigest()
	require.NoError(t, swapped.WriteUsers(ctx, users[1:], sessions))
	require.NoError(t, swapped.WriteUsers(ctx, users[:1], nil))
	assert.NotEqual(t, whole.Sum(), swapped.Sum())
}

func TestZeroCampaignsForOneChannel(t *testing.T) {
	p := params(10, 2000, 2)
	p.ChannelCampaigns = map[string]int{"Meta": 0}
	c, _ := run(t, p)

	assert.Len(t, c.Campaigns, 6)
	for _, cm := range c.Campaigns {
		assert.NotEqual(t, "Meta", cm.Channel)
	}
	for _, row := range c.Performance {
		assert.NotEqual(t, int64(1), row.ChannelID)
	}
	for _, u := range c.Users {
		assert.NotEqual(t, "Meta", u.Channel)
	}
}

func TestZeroCampaignsEverywhere(t *testing.T) {
	c, rep := run(t, params(10, 2000, 0))
	assert.Empty(t, c.Campaigns)
	assert.Empty(t, c.Creatives)
	assert.Empty(t, c.Performance)
	assert.Len(t, c.Organic, 10)
	assert.NotEmpty(t, c.Users)
	for _, u := range c.Users {
		assert.Equal(t, models.SourceOrganic, u.Source)
	}
	// no golden event starts inside a 10 day run
	assert.Empty(t, c.Signals)
	assert.Empty(t, rep.Undetected)
}

func TestMissingPaidDataIsReportedNotRaised(t *testing.T) {
	c, rep := run(t, params(40, 3000, 0))
	assert.Empty(t, c.Performance)
	assert.Contains(t, rep.Undetected, "budget_pacing_alert")
	assert.Contains(t, rep.Undetected, "tiktok_breakthrough")
}

func TestDatasetInvariants(t *testing.T) {
	c, _ := run(t, params(30, 6000, 3))
	tbl := profiles.Default()

	campaigns := map[int64]models.Campaign{}
	for _, cm := range c.Campaigns {
		campaigns[cm.ID] = cm
	}
	channels := map[int64]models.Channel{}
	for _, ch := range c.Channels {
		channels[ch.ID] = ch
	}

	installsByDay := map[int]int{}
	for _, row := range c.Performance {
		cm, ok := campaigns[row.CampaignID]
		require.True(t, ok, "perf row %d references unknown campaign", row.ID)
		assert.True(t, cm.Active(row.Day), "perf row %d outside campaign window", row.ID)
		assert.Equal(t, cm.ChannelID, row.ChannelID)

		ch := channels[row.ChannelID]
		if row.Installs == 0 {
			assert.Zero(t, row.CPI, "perf row %d bought nothing", row.ID)
			assert.Zero(t, row.Spend, "perf row %d bought nothing", row.ID)
		} else {
			assert.GreaterOrEqual(t, row.CPI, ch.CPIMin)
			assert.LessOrEqual(t, row.CPI, ch.CPIMax)
			assert.InDelta(t, row.CPI, row.Spend/float64(row.Installs), 0.006)
		}
		assert.LessOrEqual(t, row.Clicks, row.Impressions)
		assert.LessOrEqual(t, row.Installs, row.Clicks)
		installsByDay[row.Day] += row.Installs
	}
	for _, o := range c.Organic {
		installsByDay[o.Day] += o.OrganicInstalls
	}

	usersByDay := map[int]int{}
	users := map[string]models.UserInstall{}
	for _, u := range c.Users {
		usersByDay[u.InstallDay]++
		users[u.UserID] = u
		if u.Source == models.SourcePaid {
			_, ok := campaigns[u.CampaignID]
			assert.True(t, ok)
		}
		_, ok := tbl.SegmentsByName[u.Segment]
		assert.True(t, ok)
	}
	assert.Equal(t, installsByDay, usersByDay)

	for _, s := range c.Sessions {
		u, ok := users[s.UserID]
		require.True(t, ok)
		assert.Less(t, s.Day, 30)
		assert.Equal(t, u.InstallDay+s.DayOffset, s.Day)
	}
}

func TestZeroInstallRowsCarryNoPrice(t *testing.T) {
	// thin volume spread over many campaigns leaves some days unbought
	c, _ := run(t, params(20, 300, 15))
	empty := 0
	for _, row := range c.Performance {
		if row.Installs > 0 {
			assert.Positive(t, row.CPI)
			continue
		}
		empty++
		assert.Zero(t, row.CPI, "perf row %d", row.ID)
		assert.Zero(t, row.Spend, "perf row %d", row.ID)
	}
	assert.Positive(t, empty)
}

func TestCampaignWindowsCoverRun(t *testing.T) {
	c, _ := run(t, params(45, 1000, 4))
	for _, ch := range c.Channels {
		for d := 0; d < 45; d++ {
			covered := false
			for _, cm := range c.Campaigns {
				if cm.ChannelID == ch.ID && cm.Active(d) {
					covered = true
					break
				}
			}
			assert.True(t, covered, "%s has no campaign on day %d", ch.Name, d)
		}
	}
}

func TestConversionRateNeverRecovers(t *testing.T) {
	c, _ := run(t, params(60, 2000, 2))
	last := map[int64]models.DailyCampaignPerformance{}
	for _, row := range c.Performance {
		if prev, ok := last[row.CampaignID]; ok && prev.Day == row.Day-1 {
			assert.LessOrEqual(t, row.CVR, prev.CVR, "campaign %d day %d", row.CampaignID, row.Day)
			assert.LessOrEqual(t, row.FatigueFactor, prev.FatigueFactor)
		}
		last[row.CampaignID] = row
	}
}

func TestGoldenEventsAreDetected(t *testing.T) {
	if testing.Short() {
		t.Skip("full 90 day runs")
	}
	for _, campaigns := range []int{4, 15} {
		for seed := int64(1); seed <= 8; seed++ {
			t.Run(fmt.Sprintf("campaigns=%d/seed=%d", campaigns, seed), func(t *testing.T) {
				p := params(90, 30000, campaigns)
				p.Seed = seed
				c, rep := run(t, p)
				assert.Empty(t, rep.Undetected)

				for _, e := range events.Default().Events {
					found := false
					for _, s := range c.Signals {
						if s.EventName == e.Name && s.Channel == e.Channel && s.Day >= e.Day && s.Day < e.End() {
							found = true
						}
					}
					assert.True(t, found, "no signal for %s", e.Name)
				}
			})
		}
	}
}

func TestFatigueCurve(t *testing.T) {
	cr := models.Creative{StartDay: 10, FatigueOnset: 3}
	assert.Equal(t, 1.0, fatigue(cr, 0.1, 0.75, 5))
	assert.Equal(t, 1.0, fatigue(cr, 0.1, 0.75, 13))
	prev := 1.0
	for d := 14; d < 60; d++ {
		f := fatigue(cr, 0.1, 0.75, d)
		assert.LessOrEqual(t, f, prev)
		assert.GreaterOrEqual(t, f, 0.75)
		prev = f
	}
}

func TestParamsValidation(t *testing.T) {
	p := params(90, -5, 2)
	err := p.Validate()
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Contains(t, err.Error(), "users")

	p = params(0, 10, 2)
	assert.ErrorIs(t, p.Validate(), ErrInvalidParams)

	p = params(10, 10, 2)
	p.ChannelCampaigns = map[string]int{"Snapchat": 1}
	_, err = New(p, quietLogger())
	assert.ErrorIs(t, err, ErrInvalidParams)

	p.ChannelCampaigns = map[string]int{"Meta": -1}
	_, err = New(p, quietLogger())
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestParseChannelCampaigns(t *testing.T) {
	got, err := ParseChannelCampaigns([]string{"Meta=0, TikTok=3", "Google=1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Meta": 0, "TikTok": 3, "Google": 1}, got)

	_, err = ParseChannelCampaigns([]string{"Meta"})
	assert.ErrorIs(t, err, ErrInvalidParams)

	for _, bad := range []string{"Meta=3x", "Meta=", "Meta=1.5", "TikTok= 2 3"} {
		_, err = ParseChannelCampaigns([]string{bad})
		assert.ErrorIs(t, err, ErrInvalidParams, bad)
	}
}
