package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/marketing-datagen/internal/generator"
	"github.com/AngelCh415/marketing-datagen/internal/models"
	"github.com/AngelCh415/marketing-datagen/internal/store"
)

func generated(t *testing.T) (*Service, *generator.Collector) {
	t.Helper()
	p := generator.DefaultParams()
	p.Days, p.Users, p.Campaigns = 21, 3000, 2
	g, err := generator.New(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	st := store.NewMemoryStore()
	col := &generator.Collector{}
	_, err = g.Run(context.Background(), generator.MultiWriter(st, col))
	require.NoError(t, err)
	return NewService(st), col
}

func TestSummaryMatchesRawRows(t *testing.T) {
	svc, col := generated(t)
	sum, err := svc.Summary(url.Values{})
	require.NoError(t, err)

	var spend float64
	var paid, organic int
	for _, p := range col.Performance {
		spend += p.Spend
		paid += p.Installs
	}
	for _, o := range col.Organic {
		organic += o.OrganicInstalls
	}
	assert.Equal(t, "2024-01-01", sum.From)
	assert.Equal(t, "2024-01-21", sum.To)
	assert.InDelta(t, spend, sum.Spend, 0.01)
	assert.Equal(t, paid, sum.PaidInstalls)
	assert.Equal(t, organic, sum.OrganicInstall)
	assert.Equal(t, paid+organic, sum.TotalInstalls)
	assert.InDelta(t, round2(spend/float64(paid+organic)), sum.BlendedCAC, 0.011)
}

func TestTrendsReconcile(t *testing.T) {
	svc, _ := generated(t)
	days, err := svc.Trends(url.Values{"from": {"2024-01-03"}, "to": {"2024-01-09"}})
	require.NoError(t, err)
	require.Len(t, days, 7)
	assert.Equal(t, "2024-01-03", days[0].Date)
	for _, d := range days {
		assert.Equal(t, d.PaidInstalls+d.OrganicInstalls, d.UserInstalls, d.Date)
	}

	bad, err := svc.Reconcile(url.Values{})
	require.NoError(t, err)
	assert.Empty(t, bad)
}

func TestWindowErrors(t *testing.T) {
	svc, _ := generated(t)
	_, err := svc.Summary(url.Values{"from": {"yesterday"}})
	assert.ErrorIs(t, err, ErrBadQuery)
	_, err = svc.Trends(url.Values{"from": {"2024-01-10"}, "to": {"2024-01-02"}})
	assert.ErrorIs(t, err, ErrBadQuery)
}

func TestChannelsAndCampaigns(t *testing.T) {
	svc, col := generated(t)
	chans, err := svc.QueryChannel(url.Values{})
	require.NoError(t, err)
	require.Len(t, chans, 4)
	assert.Equal(t, "Google", chans[0].Channel)

	only, err := svc.QueryChannel(url.Values{"channel": {" tiktok ,META"}})
	require.NoError(t, err)
	require.Len(t, only, 2)
	assert.Equal(t, "Meta", only[0].Channel)
	assert.Equal(t, "TikTok", only[1].Channel)

	camps, err := svc.QueryCampaign(url.Values{"limit": {"3"}})
	require.NoError(t, err)
	require.Len(t, camps, 3)
	assert.GreaterOrEqual(t, camps[0].Spend, camps[1].Spend)

	all, err := svc.QueryCampaign(url.Values{"offset": {"2"}, "limit": {"-1"}})
	require.NoError(t, err)
	assert.Len(t, all, len(col.Campaigns)-2)

	none, err := svc.QueryCampaign(url.Values{"offset": {"500"}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSignalsFilterAndDismiss(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.WriteSignals(ctx, []models.Signal{
		{ID: 1, Date: d, Severity: "warning", PriorityScore: 40},
		{ID: 2, Date: d, Severity: "critical", PriorityScore: 90},
		{ID: 3, Date: d, Severity: "info", PriorityScore: 10},
	}))
	svc := NewService(st)

	got, err := svc.Signals(url.Values{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].ID)

	got, err = svc.Signals(url.Values{"severity": {"critical,warning"}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = svc.Dismiss(2)
	require.NoError(t, err)
	got, err = svc.Signals(url.Values{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	got, err = svc.Signals(url.Values{"include_dismissed": {"true"}})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = svc.Dismiss(99)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPaginateAndClamp(t *testing.T) {
	l, o := clampLimitOffset(5000, -3, 10)
	assert.Equal(t, 1000, l)
	assert.Equal(t, 0, o)
	assert.Equal(t, []int{3, 4}, paginate([]int{1, 2, 3, 4}, 5, 2))
	assert.Equal(t, 7, atoiDef("x", 7))
}
