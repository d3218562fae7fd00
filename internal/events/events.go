// Package events loads declarative golden-event descriptors and overlays
// them onto generated series.
//
// An event is pending before its start day, active for DurationDays days and
// decayed afterwards. While active it scales each targeted metric by
// 1+(m-1)*I and adds o*I, where I is the decay intensity for that day.
// Overlapping events compose in declaration order, so the result can depend
// on the order of the list. That order is part of the input and therefore
// reproducible for a given seed.
package events

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	TargetAll      = "All"
	TargetOrganic  = "Organic"
	TargetMultiple = "Multiple"

	DefaultDuration  = 7
	DefaultThreshold = 2.0
)

type Decay string

const (
	DecayExponential Decay = "exponential"
	DecayLinear      Decay = "linear"
	DecayConstant    Decay = "constant"
)

// Metrics an event may perturb.
const (
	MetricCPI             = "cpi"
	MetricSpend           = "spend"
	MetricVolume          = "volume"
	MetricCTR             = "ctr"
	MetricCVR             = "cvr"
	MetricRetention       = "retention"
	MetricLTV             = "ltv"
	MetricOrganicInstalls = "organic_installs"
	MetricSocialMentions  = "social_mentions"
	MetricAppStoreRank    = "app_store_rank"
	MetricSentiment       = "sentiment_score"
	MetricInstalls        = "installs"
)

var effectMetrics = map[string]bool{
	MetricCPI: true, MetricSpend: true, MetricVolume: true, MetricCTR: true, MetricCVR: true,
	MetricRetention: true, MetricLTV: true, MetricOrganicInstalls: true, MetricSocialMentions: true,
	MetricAppStoreRank: true, MetricSentiment: true,
}

// Metrics the signal materializer knows how to build a series for.
var detectMetrics = map[string]bool{
	MetricSpend: true, MetricInstalls: true, MetricCPI: true, MetricCTR: true,
	MetricOrganicInstalls: true, MetricSocialMentions: true, MetricAppStoreRank: true, MetricSentiment: true,
}

var ErrInvalidEvent = errors.New("invalid golden event")

type State int

const (
	Pending State = iota
	Active
	Decayed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Decayed:
		return "decayed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Detect struct {
	Metric    string  `yaml:"metric"`
	Scope     string  `yaml:"scope"`
	Direction string  `yaml:"direction"`
	Threshold float64 `yaml:"threshold"`
}

type Event struct {
	Name            string             `yaml:"name"`
	Day             int                `yaml:"day"`
	Channel         string             `yaml:"channel"`
	Targets         []string           `yaml:"targets"`
	Kind            string             `yaml:"kind"`
	Description     string             `yaml:"description"`
	DurationDays    int                `yaml:"duration_days"`
	Decay           Decay              `yaml:"decay"`
	Multipliers     map[string]float64 `yaml:"multipliers"`
	Offsets         map[string]float64 `yaml:"offsets"`
	Detect          Detect             `yaml:"detect"`
	PredictedImpact map[string]any     `yaml:"predicted_impact"`
}

type Set struct {
	Events []Event `yaml:"events"`
}

//go:embed default_events.yaml
var defaultYAML []byte

// Default returns the embedded event list.
func Default() Set {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("events: embedded defaults: %v", err))
	}
	return s
}

func Parse(b []byte) (Set, error) {
	var s Set
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Set{}, fmt.Errorf("events: parse: %w", err)
	}
	s.normalize()
	return s, nil
}

func Load(r io.Reader) (Set, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Set{}, fmt.Errorf("events: read: %w", err)
	}
	return Parse(b)
}

func LoadFile(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return Set{}, fmt.Errorf("events: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// normalize fills defaults so every consumer sees the same resolved event.
func (s *Set) normalize() {
	for i := range s.Events {
		e := &s.Events[i]
		if e.DurationDays == 0 {
			e.DurationDays = DefaultDuration
		}
		if e.Decay == "" {
			e.Decay = DecayExponential
		}
		if len(e.Targets) == 0 && e.Channel != "" && e.Channel != TargetMultiple {
			e.Targets = []string{e.Channel}
		}
		if e.Detect.Scope == "" && len(e.Targets) > 0 {
			e.Detect.Scope = e.Targets[0]
		}
		if e.Detect.Direction == "" {
			e.Detect.Direction = "up"
		}
		if e.Detect.Threshold == 0 {
			e.Detect.Threshold = DefaultThreshold
		}
	}
}

// Validate checks the set against the known paid channel names.
func (s Set) Validate(channels []string) error {
	known := map[string]bool{TargetAll: true, TargetOrganic: true}
	for _, c := range channels {
		known[c] = true
	}
	seen := map[string]bool{}
	for _, e := range s.Events {
		if e.Name == "" {
			return fmt.Errorf("%w: missing name", ErrInvalidEvent)
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidEvent, e.Name)
		}
		seen[e.Name] = true
		if e.Day < 0 {
			return fmt.Errorf("%w: %s: negative day %d", ErrInvalidEvent, e.Name, e.Day)
		}
		if e.DurationDays < 1 {
			return fmt.Errorf("%w: %s: duration_days must be >= 1", ErrInvalidEvent, e.Name)
		}
		switch e.Decay {
		case DecayExponential, DecayLinear, DecayConstant:
		default:
			return fmt.Errorf("%w: %s: unknown decay %q", ErrInvalidEvent, e.Name, e.Decay)
		}
		if len(e.Targets) == 0 {
			return fmt.Errorf("%w: %s: no targets", ErrInvalidEvent, e.Name)
		}
		for _, t := range e.Targets {
			if !known[t] {
				return fmt.Errorf("%w: %s: unknown target %q", ErrInvalidEvent, e.Name, t)
			}
		}
		for _, k := range sortedKeys(e.Multipliers) {
			if !effectMetrics[k] {
				return fmt.Errorf("%w: %s: unknown metric %q", ErrInvalidEvent, e.Name, k)
			}
			if e.Multipliers[k] < 0 {
				return fmt.Errorf("%w: %s: negative multiplier for %s", ErrInvalidEvent, e.Name, k)
			}
		}
		for _, k := range sortedKeys(e.Offsets) {
			if !effectMetrics[k] {
				return fmt.Errorf("%w: %s: unknown metric %q", ErrInvalidEvent, e.Name, k)
			}
		}
		if !detectMetrics[e.Detect.Metric] {
			return fmt.Errorf("%w: %s: cannot detect metric %q", ErrInvalidEvent, e.Name, e.Detect.Metric)
		}
		if !known[e.Detect.Scope] {
			return fmt.Errorf("%w: %s: unknown detect scope %q", ErrInvalidEvent, e.Name, e.Detect.Scope)
		}
		if e.Detect.Direction != "up" && e.Detect.Direction != "down" {
			return fmt.Errorf("%w: %s: direction must be up or down", ErrInvalidEvent, e.Name)
		}
		if e.Detect.Threshold < 0 {
			return fmt.Errorf("%w: %s: negative threshold", ErrInvalidEvent, e.Name)
		}
	}
	return nil
}

// End is the first day the event is decayed.
func (e Event) End() int { return e.Day + e.DurationDays }

func (e Event) StateOn(day int) State {
	switch {
	case day < e.Day:
		return Pending
	case day < e.End():
		return Active
	default:
		return Decayed
	}
}

// Intensity is the decay weight on day, 0 unless the event is active.
func (e Event) Intensity(day int) float64 {
	if e.StateOn(day) != Active {
		return 0
	}
	t := float64(day - e.Day)
	d := float64(e.DurationDays)
	switch e.Decay {
	case DecayConstant:
		return 1
	case DecayLinear:
		return (t + 1) / d
	default:
		return math.Exp(-t / (d / 3))
	}
}

// Intersects reports whether the active window overlaps [0, days).
func (e Event) Intersects(days int) bool { return e.Day < days && e.End() > 0 }

// Touches reports whether the event perturbs target. A paid channel is
// touched by its own name and by All; Organic only by Organic.
func (e Event) Touches(target string) bool {
	for _, t := range e.Targets {
		if t == target {
			return true
		}
		if t == TargetAll && target != TargetOrganic {
			return true
		}
	}
	return false
}

// AffectsScope reports whether the event moves the series a detector for
// scope would look at. The All scope sums every paid channel.
func (e Event) AffectsScope(scope string) bool {
	if scope == TargetAll {
		for _, t := range e.Targets {
			if t != TargetOrganic {
				return true
			}
		}
		return false
	}
	return e.Touches(scope)
}

// Apply folds every active event touching target into v for metric on day.
func (s Set) Apply(target, metric string, day int, v float64) float64 {
	for _, e := range s.Events {
		if !e.Touches(target) {
			continue
		}
		in := e.Intensity(day)
		if in == 0 {
			continue
		}
		if m, ok := e.Multipliers[metric]; ok {
			v *= 1 + (m-1)*in
		}
		if o, ok := e.Offsets[metric]; ok {
			v += o * in
		}
	}
	return v
}

// Factor is Apply on a unit value, for metrics only ever scaled.
func (s Set) Factor(target, metric string, day int) float64 {
	return s.Apply(target, metric, day, 1)
}

// ActiveOn lists events active on day touching target, in declaration order.
func (s Set) ActiveOn(target string, day int) []Event {
	var out []Event
	for _, e := range s.Events {
		if e.StateOn(day) == Active && e.Touches(target) {
			out = append(out, e)
		}
	}
	return out
}

func (s Set) Lookup(name string) (Event, bool) {
	for _, e := range s.Events {
		if e.Name == name {
			return e, true
		}
	}
	return Event{}, false
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
