package metrics

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AngelCh415/marketing-datagen/internal/models"
	"github.com/AngelCh415/marketing-datagen/internal/store"
)

const dateLayout = "2006-01-02"

var ErrBadQuery = errors.New("bad query")

type Service struct{ st *store.MemoryStore }

func NewService(st *store.MemoryStore) *Service { return &Service{st: st} }
func norm(s string) string                      { return strings.ToLower(strings.TrimSpace(s)) }

func csvSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, p := range strings.Split(s, ",") {
		p = norm(p)
		if p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

// window resolves from/to against the generated span. Missing bounds
// default to the span; a reversed window is rejected.
func (s *Service) window(v url.Values) (time.Time, time.Time, error) {
	from, to := s.st.Span()
	if raw := v.Get("from"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return from, to, fmt.Errorf("%w: from: %v", ErrBadQuery, err)
		}
		from = t
	}
	if raw := v.Get("to"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return from, to, fmt.Errorf("%w: to: %v", ErrBadQuery, err)
		}
		to = t
	}
	if to.Before(from) {
		return from, to, fmt.Errorf("%w: to before from", ErrBadQuery)
	}
	return from, to, nil
}

func isOrganic(a models.DailyAgg) bool { return a.Key.Channel == models.OrganicChannel }

// Summary rolls the window up into executive totals.
func (s *Service) Summary(v url.Values) (models.Summary, error) {
	from, to, err := s.window(v)
	if err != nil {
		return models.Summary{}, err
	}
	out := models.Summary{From: from.Format(dateLayout), To: to.Format(dateLayout)}
	for _, a := range s.st.Query(from, to, nil) {
		out.Spend += a.Spend
		out.Revenue += a.Revenue
		if !isOrganic(a) {
			out.PaidInstalls += a.Installs
		}
	}
	for _, o := range s.st.Organic(from, to) {
		out.OrganicInstall += o.OrganicInstalls
	}
	out.TotalInstalls = out.PaidInstalls + out.OrganicInstall
	if out.TotalInstalls > 0 {
		out.BlendedCAC = round2(out.Spend / float64(out.TotalInstalls))
	}
	if out.PaidInstalls > 0 {
		out.PaidCPI = round2(out.Spend / float64(out.PaidInstalls))
	}
	if out.Spend > 0 {
		out.ROAS = round3(out.Revenue / out.Spend)
	}
	for _, sig := range s.st.Signals() {
		if !sig.Dismissed && !sig.Date.Before(from) && !sig.Date.After(to) {
			out.ActiveSignals++
		}
	}
	out.Spend = round2(out.Spend)
	out.Revenue = round2(out.Revenue)
	return out, nil
}

// Trends returns one totals row per day. UserInstalls counts attributed
// users and should equal paid plus organic installs.
func (s *Service) Trends(v url.Values) ([]models.DayTotals, error) {
	from, to, err := s.window(v)
	if err != nil {
		return nil, err
	}
	byDate := map[string]*models.DayTotals{}
	get := func(t time.Time) *models.DayTotals {
		k := t.Format(dateLayout)
		d, ok := byDate[k]
		if !ok {
			d = &models.DayTotals{Date: k}
			byDate[k] = d
		}
		return d
	}
	for _, a := range s.st.Query(from, to, nil) {
		d := get(a.Date)
		d.Spend += a.Spend
		d.Revenue += a.Revenue
		d.UserInstalls += a.Users
		if !isOrganic(a) {
			d.PaidInstalls += a.Installs
		}
	}
	for _, o := range s.st.Organic(from, to) {
		get(o.Date).OrganicInstalls += o.OrganicInstalls
	}
	out := make([]models.DayTotals, 0, len(byDate))
	for _, d := range byDate {
		d.Spend = round2(d.Spend)
		d.Revenue = round2(d.Revenue)
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Reconcile lists the days whose attributed users differ from paid plus
// organic installs.
func (s *Service) Reconcile(v url.Values) ([]models.DayTotals, error) {
	days, err := s.Trends(v)
	if err != nil {
		return nil, err
	}
	out := []models.DayTotals{}
	for _, d := range days {
		if d.PaidInstalls+d.OrganicInstalls != d.UserInstalls {
			out = append(out, d)
		}
	}
	return out, nil
}

// QueryChannel aggregates paid buckets per channel over the window.
func (s *Service) QueryChannel(v url.Values) ([]models.Metrics, error) {
	from, to, err := s.window(v)
	if err != nil {
		return nil, err
	}
	chSet := csvSet(v.Get("channel"))

	aggs := s.st.Query(from, to, func(a models.DailyAgg) bool {
		if isOrganic(a) {
			return false
		}
		if len(chSet) > 0 {
			if _, ok := chSet[norm(a.Key.Channel)]; !ok {
				return false
			}
		}
		return true
	})

	byChannel := map[string]*models.DailyAgg{}
	for _, a := range aggs {
		t, ok := byChannel[a.Key.Channel]
		if !ok {
			t = &models.DailyAgg{Key: models.DailyAggKey{Channel: a.Key.Channel}}
			byChannel[a.Key.Channel] = t
		}
		add(t, a)
	}
	rows := make([]models.DailyAgg, 0, len(byChannel))
	for _, t := range byChannel {
		rows = append(rows, *t)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key.Channel < rows[j].Key.Channel })
	return toMetricsSlice(rows, false), nil
}

// QueryCampaign aggregates paid buckets per campaign, highest spend first.
func (s *Service) QueryCampaign(v url.Values) ([]models.Metrics, error) {
	from, to, err := s.window(v)
	if err != nil {
		return nil, err
	}
	chSet := csvSet(v.Get("channel"))
	limit := atoiDef(v.Get("limit"), 100)
	offset := atoiDef(v.Get("offset"), 0)

	byCampaign := map[int64]*models.DailyAgg{}
	for _, a := range s.st.Query(from, to, func(a models.DailyAgg) bool {
		if isOrganic(a) {
			return false
		}
		if len(chSet) > 0 {
			_, ok := chSet[norm(a.Key.Channel)]
			return ok
		}
		return true
	}) {
		t, ok := byCampaign[a.Key.CampaignID]
		if !ok {
			t = &models.DailyAgg{Key: models.DailyAggKey{Channel: a.Key.Channel, CampaignID: a.Key.CampaignID}}
			byCampaign[a.Key.CampaignID] = t
		}
		add(t, a)
	}
	aggs := make([]models.DailyAgg, 0, len(byCampaign))
	for _, t := range byCampaign {
		aggs = append(aggs, *t)
	}

	// orden determinista
	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].Spend != aggs[j].Spend {
			return aggs[i].Spend > aggs[j].Spend
		}
		return aggs[i].Key.CampaignID < aggs[j].Key.CampaignID
	})

	rows := toMetricsSlice(aggs, false)
	limit, offset = clampLimitOffset(limit, offset, len(rows))
	return paginate(rows, limit, offset), nil
}

func (s *Service) OrganicTrends(v url.Values) ([]models.DailyOrganicMetric, error) {
	from, to, err := s.window(v)
	if err != nil {
		return nil, err
	}
	out := s.st.Organic(from, to)
	if out == nil {
		out = []models.DailyOrganicMetric{}
	}
	return out, nil
}

// Signals lists signals by descending priority. Dismissed signals are
// hidden unless include_dismissed is set.
func (s *Service) Signals(v url.Values) ([]models.Signal, error) {
	sev := csvSet(v.Get("severity"))
	withDismissed, _ := strconv.ParseBool(v.Get("include_dismissed"))
	limit := atoiDef(v.Get("limit"), 100)
	offset := atoiDef(v.Get("offset"), 0)

	var out []models.Signal
	for _, sig := range s.st.Signals() {
		if sig.Dismissed && !withDismissed {
			continue
		}
		if len(sev) > 0 {
			if _, ok := sev[norm(sig.Severity)]; !ok {
				continue
			}
		}
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		return out[i].ID < out[j].ID
	})
	limit, offset = clampLimitOffset(limit, offset, len(out))
	return paginate(out, limit, offset), nil
}

func (s *Service) Dismiss(id int64) (models.Signal, error) { return s.st.Dismiss(id) }

func (s *Service) Ready() bool { return s.st.Ready() }

// CPIHistory returns each paid channel's daily CPI, oldest first. Days
// without installs are left out.
func (s *Service) CPIHistory() map[string][]float64 {
	type cell struct {
		spend    float64
		installs int
	}
	days := map[string]map[int]*cell{}
	for _, a := range s.st.All() {
		if isOrganic(a) {
			continue
		}
		byDay, ok := days[a.Key.Channel]
		if !ok {
			byDay = map[int]*cell{}
			days[a.Key.Channel] = byDay
		}
		c, ok := byDay[a.Key.Day]
		if !ok {
			c = &cell{}
			byDay[a.Key.Day] = c
		}
		c.spend += a.Spend
		c.installs += a.Installs
	}
	out := make(map[string][]float64, len(days))
	for ch, byDay := range days {
		idx := make([]int, 0, len(byDay))
		for d := range byDay {
			idx = append(idx, d)
		}
		sort.Ints(idx)
		for _, d := range idx {
			if c := byDay[d]; c.installs > 0 {
				out[ch] = append(out[ch], round2(c.spend/float64(c.installs)))
			}
		}
	}
	return out
}

// Daily returns per-day per-channel metrics for export.
func (s *Service) Daily(day time.Time) []models.Metrics {
	aggs := s.st.Query(day, day, nil)
	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].Key.Channel != aggs[j].Key.Channel {
			return aggs[i].Key.Channel < aggs[j].Key.Channel
		}
		return aggs[i].Key.CampaignID < aggs[j].Key.CampaignID
	})
	return toMetricsSlice(aggs, true)
}

func add(dst *models.DailyAgg, a models.DailyAgg) {
	dst.Impressions += a.Impressions
	dst.Clicks += a.Clicks
	dst.Installs += a.Installs
	dst.Spend += a.Spend
	dst.Revenue += a.Revenue
	dst.Users += a.Users
	dst.Sessions += a.Sessions
	dst.Payers += a.Payers
}

func toMetricsSlice(aggs []models.DailyAgg, dated bool) []models.Metrics {
	rows := make([]models.Metrics, 0, len(aggs))
	for _, a := range aggs {
		m := models.Metrics{
			Channel:     a.Key.Channel,
			CampaignID:  a.Key.CampaignID,
			Impressions: a.Impressions,
			Clicks:      a.Clicks,
			Installs:    a.Installs,
			Spend:       round2(a.Spend),
			Revenue:     round2(a.Revenue),
			Users:       a.Users,
			Sessions:    a.Sessions,
		}
		if dated {
			m.Date = a.Date.Format(dateLayout)
		}
		// métricas derivadas
		if a.Impressions > 0 {
			m.CTR = round3(float64(a.Clicks) / float64(a.Impressions))
		}
		if a.Clicks > 0 {
			m.CVR = round3(float64(a.Installs) / float64(a.Clicks))
		}
		if a.Installs > 0 {
			m.CPI = round2(a.Spend / float64(a.Installs))
		}
		if a.Spend > 0 {
			m.ROAS = round3(a.Revenue / a.Spend)
		}
		rows = append(rows, m)
	}
	return rows
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func atoiDef(s string, d int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

func clampLimitOffset(limit, offset, n int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = n
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset > n {
		offset = n
	}
	return limit, offset
}

func round2(f float64) float64 { return float64(int64(f*100+0.5)) / 100 }
func round3(f float64) float64 { return float64(int64(f*1000+0.5)) / 1000 }
