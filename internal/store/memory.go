package store

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/AngelCh415/marketing-datagen/internal/models"
)

var ErrNotFound = errors.New("not found")

// MemoryStore keeps daily rollups of a generated dataset for the query API.
// It receives rows through the same Write methods as the SQL sinks.
type MemoryStore struct {
	mu        sync.RWMutex
	agg       map[models.DailyAggKey]*models.DailyAgg
	seen      map[string]struct{} // per-record idempotency
	channels  []models.Channel
	campaigns map[int64]models.Campaign
	organic   map[int]models.DailyOrganicMetric
	signals   []models.Signal
	start     time.Time
	ready     bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agg:       make(map[models.DailyAggKey]*models.DailyAgg),
		seen:      make(map[string]struct{}),
		campaigns: make(map[int64]models.Campaign),
		organic:   make(map[int]models.DailyOrganicMetric),
	}
}

// MarkSeen reports whether key is new, remembering it.
func (s *MemoryStore) MarkSeen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markSeen(key)
}

func (s *MemoryStore) markSeen(key string) bool {
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

func (s *MemoryStore) bucket(day int, date time.Time, channel string, campaignID int64) *models.DailyAgg {
	k := models.DailyAggKey{Day: day, Channel: channel, CampaignID: campaignID}
	agg, ok := s.agg[k]
	if !ok {
		agg = &models.DailyAgg{Key: k, Date: dayUTC(date)}
		s.agg[k] = agg
	}
	return agg
}

func (s *MemoryStore) WriteChannels(_ context.Context, rows []models.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range rows {
		if s.markSeen("channel|" + strconv.FormatInt(c.ID, 10)) {
			s.channels = append(s.channels, c)
		}
	}
	return nil
}

func (s *MemoryStore) WriteCampaigns(_ context.Context, campaigns []models.Campaign, _ []models.Creative) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range campaigns {
		s.campaigns[c.ID] = c
		if s.start.IsZero() || c.StartDate.Before(s.start) {
			s.start = dayUTC(c.StartDate)
		}
	}
	return nil
}

// WriteUsers counts users, sessions and payers per install bucket. Paid
// revenue arrives with the performance rows; organic revenue is summed
// here from user LTV.
func (s *MemoryStore) WriteUsers(_ context.Context, users []models.UserInstall, sessions []models.UserSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		if !s.markSeen("user|" + u.UserID) {
			continue
		}
		agg := s.bucket(u.InstallDay, u.InstallDate, u.Channel, u.CampaignID)
		agg.Users++
		agg.Sessions += max0(u.SessionCount)
		if u.IsPayer {
			agg.Payers++
		}
		if u.Source == models.SourceOrganic {
			agg.Revenue += maxf(u.LTV)
		}
	}
	return nil
}

func (s *MemoryStore) WritePerformance(_ context.Context, rows []models.DailyCampaignPerformance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range rows {
		if !s.markSeen("perf|" + strconv.FormatInt(p.ID, 10)) {
			continue
		}
		channel := s.campaigns[p.CampaignID].Channel
		agg := s.bucket(p.Day, p.Date, channel, p.CampaignID)
		agg.Impressions += max0(p.Impressions)
		agg.Clicks += max0(p.Clicks)
		agg.Installs += max0(p.Installs)
		agg.Spend += maxf(p.Spend)
		agg.Revenue += maxf(p.Revenue)
	}
	return nil
}

func (s *MemoryStore) WriteOrganic(_ context.Context, rows []models.DailyOrganicMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range rows {
		s.organic[o.Day] = o
		if s.start.IsZero() || o.Date.Before(s.start) {
			s.start = dayUTC(o.Date)
		}
	}
	return nil
}

// WriteSignals replaces the signal set and marks the store ready; signals
// are the last table of a run.
func (s *MemoryStore) WriteSignals(_ context.Context, rows []models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append([]models.Signal(nil), rows...)
	s.ready = true
	return nil
}

func (s *MemoryStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Span returns the first and last generated date.
func (s *MemoryStore) Span() (time.Time, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last := s.start
	for _, o := range s.organic {
		if o.Date.After(last) {
			last = dayUTC(o.Date)
		}
	}
	return s.start, last
}

func (s *MemoryStore) All() []models.DailyAgg {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DailyAgg, 0, len(s.agg))
	for _, v := range s.agg {
		out = append(out, *v)
	}
	return out
}

// Query returns the buckets dated within [from, to] that pass f.
func (s *MemoryStore) Query(from, to time.Time, f func(models.DailyAgg) bool) []models.DailyAgg {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DailyAgg
	for _, v := range s.agg {
		if !v.Date.Before(from) && !v.Date.After(to) {
			if f == nil || f(*v) {
				out = append(out, *v)
			}
		}
	}
	return out
}

func (s *MemoryStore) Organic(from, to time.Time) []models.DailyOrganicMetric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.DailyOrganicMetric
	for _, o := range s.organic {
		d := dayUTC(o.Date)
		if !d.Before(from) && !d.After(to) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

func (s *MemoryStore) Channels() []models.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Channel(nil), s.channels...)
}

func (s *MemoryStore) Campaign(id int64) (models.Campaign, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.campaigns[id]
	return c, ok
}

func (s *MemoryStore) Signals() []models.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Signal(nil), s.signals...)
}

// Dismiss flags a signal as dismissed. Dismissing twice is not an error.
func (s *MemoryStore) Dismiss(id int64) (models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.signals {
		if s.signals[i].ID == id {
			s.signals[i].Dismissed = true
			return s.signals[i], nil
		}
	}
	return models.Signal{}, ErrNotFound
}

func dayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func max0(i int) int {
	if i < 0 {
		return 0
	}
	return i
}

func maxf(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}
