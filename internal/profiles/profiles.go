package profiles

import (
	"errors"
	"fmt"
)

var ErrUnknownChannel = errors.New("unknown channel")

// Segments in draw order.
var Segments = []string{"power_user", "regular", "casual"}

var Devices = []string{"iOS", "Android"}

var Formats = []string{"video", "image", "carousel"}

type ChannelProfile struct {
	Name              string
	DisplayName       string
	BaseCPI           float64
	CPIMin            float64
	CPIMax            float64
	CPIVariance       float64
	DailyVolume       int
	WeekendMultiplier float64
	QualityScore      float64
	LTVMultiplier     float64
	FatigueDays       int
	FatigueDecayRate  float64
	CTRMin, CTRMax    float64
	CVRMin, CVRMax    float64
	SegmentWeights    []float64 // aligned with Segments
	DeviceWeights     []float64 // aligned with Devices
}

// SegmentProfile holds retention and monetization behaviour for one user segment.
type SegmentProfile struct {
	Name            string
	D1, D7, D30     float64
	SessionRate     float64 // expected sessions per active day
	PayingRate      float64
	PurchaseProb    float64 // chance a payer's session contains a purchase
	AvgPurchase     float64
	SessionMinSecs  int
	SessionMaxSecs  int
	EngagementFloor float64
}

type Country struct {
	Code   string
	Weight float64
	Tier   int
}

// Table is the immutable, ordered channel profile table plus the population
// distributions the user synthesizer draws from.
type Table struct {
	Channels       []ChannelProfile
	Organic        OrganicProfile
	SegmentsByName map[string]SegmentProfile
	Countries      []Country
	FatigueFloor   float64
}

type OrganicProfile struct {
	BaseInstalls   int
	HaloRate       float64 // share of lagged paid installs that spill into organic
	BaseMentions   int
	SegmentWeights []float64
	DeviceWeights  []float64
}

func Default() Table {
	return Table{
		Channels: []ChannelProfile{
			{
				Name: "Meta", DisplayName: "Meta (Facebook/Instagram)",
				BaseCPI: 2.50, CPIMin: 0.90, CPIMax: 7.50, CPIVariance: 0.10,
				DailyVolume: 5000, WeekendMultiplier: 0.85, QualityScore: 0.72, LTVMultiplier: 1.0,
				FatigueDays: 14, FatigueDecayRate: 1.0 / 14,
				CTRMin: 0.009, CTRMax: 0.016, CVRMin: 0.20, CVRMax: 0.32,
				SegmentWeights: []float64{0.12, 0.45, 0.43}, DeviceWeights: []float64{0.55, 0.45},
			},
			{
				Name: "Google", DisplayName: "Google UAC",
				BaseCPI: 3.20, CPIMin: 1.20, CPIMax: 9.60, CPIVariance: 0.08,
				DailyVolume: 3500, WeekendMultiplier: 0.90, QualityScore: 0.68, LTVMultiplier: 0.95,
				FatigueDays: 21, FatigueDecayRate: 1.0 / 21,
				CTRMin: 0.012, CTRMax: 0.020, CVRMin: 0.18, CVRMax: 0.28,
				SegmentWeights: []float64{0.10, 0.42, 0.48}, DeviceWeights: []float64{0.48, 0.52},
			},
			{
				Name: "TikTok", DisplayName: "TikTok Ads",
				BaseCPI: 1.80, CPIMin: 0.60, CPIMax: 5.40, CPIVariance: 0.15,
				DailyVolume: 8000, WeekendMultiplier: 1.15, QualityScore: 0.55, LTVMultiplier: 0.75,
				FatigueDays: 7, FatigueDecayRate: 1.0 / 7,
				CTRMin: 0.010, CTRMax: 0.022, CVRMin: 0.15, CVRMax: 0.26,
				SegmentWeights: []float64{0.06, 0.32, 0.62}, DeviceWeights: []float64{0.42, 0.58},
			},
			{
				Name: "Programmatic", DisplayName: "Programmatic DSP",
				BaseCPI: 4.50, CPIMin: 1.60, CPIMax: 13.50, CPIVariance: 0.12,
				DailyVolume: 1500, WeekendMultiplier: 0.95, QualityScore: 0.80, LTVMultiplier: 1.25,
				FatigueDays: 30, FatigueDecayRate: 1.0 / 30,
				CTRMin: 0.004, CTRMax: 0.009, CVRMin: 0.22, CVRMax: 0.34,
				SegmentWeights: []float64{0.18, 0.52, 0.30}, DeviceWeights: []float64{0.62, 0.38},
			},
		},
		Organic: OrganicProfile{
			BaseInstalls:   2500,
			HaloRate:       0.03,
			BaseMentions:   3000,
			SegmentWeights: []float64{0.10, 0.45, 0.45},
			DeviceWeights:  []float64{0.50, 0.50},
		},
		SegmentsByName: map[string]SegmentProfile{
			"power_user": {Name: "power_user", D1: 0.85, D7: 0.60, D30: 0.40, SessionRate: 1.8,
				PayingRate: 0.35, PurchaseProb: 0.20, AvgPurchase: 9.99, SessionMinSecs: 900, SessionMaxSecs: 3600, EngagementFloor: 70},
			"regular": {Name: "regular", D1: 0.60, D7: 0.35, D30: 0.18, SessionRate: 0.8,
				PayingRate: 0.08, PurchaseProb: 0.12, AvgPurchase: 4.99, SessionMinSecs: 300, SessionMaxSecs: 1200, EngagementFloor: 45},
			"casual": {Name: "casual", D1: 0.35, D7: 0.15, D30: 0.05, SessionRate: 0.4,
				PayingRate: 0.01, PurchaseProb: 0.08, AvgPurchase: 1.99, SessionMinSecs: 60, SessionMaxSecs: 600, EngagementFloor: 20},
		},
		Countries: []Country{
			{"US", 0.40, 1}, {"UK", 0.12, 1}, {"CA", 0.08, 1}, {"AU", 0.06, 1}, {"DE", 0.07, 1},
			{"FR", 0.05, 1}, {"BR", 0.08, 2}, {"MX", 0.06, 2}, {"IN", 0.05, 2}, {"JP", 0.03, 1},
		},
		FatigueFloor: 0.75,
	}
}

// Lookup is the pure profile_for(channel) contract.
func (t Table) Lookup(name string) (ChannelProfile, error) {
	for _, p := range t.Channels {
		if p.Name == name {
			return p, nil
		}
	}
	return ChannelProfile{}, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
}

func (t Table) Names() []string {
	out := make([]string, len(t.Channels))
	for i, p := range t.Channels {
		out[i] = p.Name
	}
	return out
}

// TotalDailyVolume is the paid install volume of all channels on a nominal day.
func (t Table) TotalDailyVolume() int {
	n := 0
	for _, p := range t.Channels {
		n += p.DailyVolume
	}
	return n
}

func (t Table) Segment(name string) SegmentProfile { return t.SegmentsByName[name] }

// CountryWeights returns the geo weights in table order.
func (t Table) CountryWeights() []float64 {
	out := make([]float64, len(t.Countries))
	for i, c := range t.Countries {
		out[i] = c.Weight
	}
	return out
}

// Validate checks the static table once at load.
func (t Table) Validate() error {
	if len(t.Channels) == 0 {
		return errors.New("profiles: no channels defined")
	}
	seen := map[string]bool{}
	for _, p := range t.Channels {
		if p.Name == "" {
			return errors.New("profiles: channel with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("profiles: duplicate channel %q", p.Name)
		}
		seen[p.Name] = true
		if !(p.CPIMin > 0 && p.CPIMin < p.BaseCPI && p.BaseCPI < p.CPIMax) {
			return fmt.Errorf("profiles: %s: degenerate CPI band [%.2f, %.2f] around %.2f", p.Name, p.CPIMin, p.CPIMax, p.BaseCPI)
		}
		if !(p.CTRMin > 0 && p.CTRMin < p.CTRMax && p.CTRMax <= 1) {
			return fmt.Errorf("profiles: %s: degenerate CTR range", p.Name)
		}
		if !(p.CVRMin > 0 && p.CVRMin < p.CVRMax && p.CVRMax <= 1) {
			return fmt.Errorf("profiles: %s: degenerate CVR range", p.Name)
		}
		if p.DailyVolume < 0 || p.WeekendMultiplier < 0 || p.CPIVariance < 0 || p.FatigueDecayRate < 0 ||
			p.QualityScore < 0 || p.LTVMultiplier < 0 || p.FatigueDays < 0 {
			return fmt.Errorf("profiles: %s: negative weight", p.Name)
		}
		if err := checkWeights(p.Name+" segments", p.SegmentWeights, len(Segments)); err != nil {
			return err
		}
		if err := checkWeights(p.Name+" devices", p.DeviceWeights, len(Devices)); err != nil {
			return err
		}
	}
	if err := checkWeights("organic segments", t.Organic.SegmentWeights, len(Segments)); err != nil {
		return err
	}
	if err := checkWeights("organic devices", t.Organic.DeviceWeights, len(Devices)); err != nil {
		return err
	}
	if t.Organic.BaseInstalls < 0 || t.Organic.HaloRate < 0 || t.Organic.BaseMentions < 0 {
		return errors.New("profiles: organic: negative weight")
	}
	for _, name := range Segments {
		s, ok := t.SegmentsByName[name]
		if !ok {
			return fmt.Errorf("profiles: missing segment %q", name)
		}
		if !(s.D1 >= s.D7 && s.D7 >= s.D30 && s.D30 >= 0 && s.D1 <= 1) {
			return fmt.Errorf("profiles: segment %s: retention curve must be non-increasing in [0,1]", name)
		}
		if s.SessionRate < 0 || s.PayingRate < 0 || s.PurchaseProb < 0 || s.AvgPurchase < 0 || s.SessionMinSecs > s.SessionMaxSecs {
			return fmt.Errorf("profiles: segment %s: invalid monetization profile", name)
		}
	}
	weights := t.CountryWeights()
	if err := checkWeights("countries", weights, len(weights)); err != nil {
		return err
	}
	if t.FatigueFloor <= 0 || t.FatigueFloor > 1 {
		return fmt.Errorf("profiles: fatigue floor %.2f outside (0,1]", t.FatigueFloor)
	}
	return nil
}

func checkWeights(what string, w []float64, want int) error {
	if len(w) != want || want == 0 {
		return fmt.Errorf("profiles: %s: want %d weights, got %d", what, want, len(w))
	}
	sum := 0.0
	for _, v := range w {
		if v < 0 {
			return fmt.Errorf("profiles: %s: negative weight", what)
		}
		sum += v
	}
	if sum == 0 {
		return fmt.Errorf("profiles: %s: weights sum to zero", what)
	}
	return nil
}
