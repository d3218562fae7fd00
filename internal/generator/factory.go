package generator

import (
	"fmt"
	"math"
	"time"

	"github.com/AngelCh415/marketing-datagen/internal/models"
	"github.com/AngelCh415/marketing-datagen/internal/profiles"
	"github.com/AngelCh415/marketing-datagen/internal/rng"
)

const creativesPerCampaign = 3

var campaignThemes = []string{"Prospecting", "Lookalike", "Retargeting", "Brand", "Seasonal", "App Install"}

// buildChannels materializes the profile table as rows with IDs in table order.
func buildChannels(t profiles.Table) []models.Channel {
	out := make([]models.Channel, len(t.Channels))
	for i, p := range t.Channels {
		out[i] = models.Channel{
			ID:                int64(i + 1),
			Name:              p.Name,
			DisplayName:       p.DisplayName,
			BaseCPI:           p.BaseCPI,
			CPIMin:            p.CPIMin,
			CPIMax:            p.CPIMax,
			CPIVariance:       p.CPIVariance,
			DailyVolume:       p.DailyVolume,
			WeekendMultiplier: p.WeekendMultiplier,
			QualityScore:      p.QualityScore,
			LTVMultiplier:     p.LTVMultiplier,
			FatigueDays:       p.FatigueDays,
			FatigueDecayRate:  p.FatigueDecayRate,
		}
	}
	return out
}

// campaignWindow returns the inclusive lifecycle of campaign i of n. The
// unjittered windows tile [0, days); jitter only widens them.
func campaignWindow(r *rng.Source, i, n, days int) (int, int) {
	span := float64(days) / float64(n)
	maxJitter := int(math.Ceil(span / 2))
	start := int(math.Floor(float64(i)*span)) - r.IntRange(0, maxJitter)
	end := int(math.Ceil(float64(i+1)*span)) - 1 + r.IntRange(0, maxJitter)
	if start < 0 {
		start = 0
	}
	if end > days-1 {
		end = days - 1
	}
	return start, end
}

type catalog struct {
	campaigns []models.Campaign
	creatives []models.Creative
	// creatives of each campaign, keyed by campaign ID
	byCampaign map[int64][]models.Creative
}

// buildCatalog derives campaigns and creatives per channel. A channel whose
// campaign count is zero or less gets none.
func buildCatalog(r *rng.Source, t profiles.Table, channels []models.Channel, p Params, scale float64) catalog {
	start := p.start()
	cat := catalog{byCampaign: map[int64][]models.Creative{}}
	var campaignID, creativeID int64
	for ci, prof := range t.Channels {
		n := p.campaignsFor(prof.Name)
		for i := 0; i < n; i++ {
			campaignID++
			s, e := campaignWindow(r, i, n, p.Days)
			daily := round2(prof.BaseCPI * float64(prof.DailyVolume) * scale * r.Uniform(0.8, 1.2))
			status := "completed"
			if e == p.Days-1 {
				status = "active"
			}
			c := models.Campaign{
				ID:           campaignID,
				ChannelID:    channels[ci].ID,
				Channel:      prof.Name,
				Name:         fmt.Sprintf("%s %s %02d", prof.Name, campaignThemes[(i+ci)%len(campaignThemes)], i+1),
				StartDay:     s,
				EndDay:       e,
				StartDate:    dayDate(start, s),
				EndDate:      dayDate(start, e),
				DailyBudget:  daily,
				TargetBudget: round2(daily * float64(e-s+1)),
				BaseCTR:      roundTo(r.Uniform(prof.CTRMin, prof.CTRMax), 4),
				BaseCVR:      roundTo(r.Uniform(prof.CVRMin, prof.CVRMax), 4),
				Status:       status,
			}
			cat.campaigns = append(cat.campaigns, c)
			for k := 0; k < creativesPerCampaign; k++ {
				creativeID++
				format := profiles.Formats[k%len(profiles.Formats)]
				cr := models.Creative{
					ID:               creativeID,
					CampaignID:       c.ID,
					Name:             fmt.Sprintf("%s / %s %d", c.Name, format, k+1),
					Format:           format,
					StartDay:         s,
					FatigueOnset:     int(math.Round(float64(prof.FatigueDays) * r.Uniform(0.3, 1.0))),
					PerformanceScore: roundTo(r.Uniform(0.6, 1.0), 3),
				}
				cat.creatives = append(cat.creatives, cr)
				cat.byCampaign[c.ID] = append(cat.byCampaign[c.ID], cr)
			}
		}
	}
	return cat
}

// fatigue is 1 until onset, then decays exponentially to floor. It never
// increases with day.
func fatigue(cr models.Creative, rate, floor float64, day int) float64 {
	t := day - cr.StartDay - cr.FatigueOnset
	if t <= 0 {
		return 1
	}
	return math.Max(floor, math.Exp(-rate*float64(t)))
}

// campaignFatigue averages creative fatigue and picks the freshest creative.
// Ties go to the lowest creative ID.
func campaignFatigue(crs []models.Creative, rate, floor float64, day int) (mean float64, best int64) {
	if len(crs) == 0 {
		return 1, 0
	}
	top := -1.0
	for _, cr := range crs {
		f := fatigue(cr, rate, floor, day)
		mean += f
		if f > top {
			top, best = f, cr.ID
		}
	}
	return mean / float64(len(crs)), best
}

func dayDate(start time.Time, day int) time.Time { return start.AddDate(0, 0, day) }

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
