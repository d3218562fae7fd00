package generator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AngelCh415/marketing-datagen/internal/events"
	"github.com/AngelCh415/marketing-datagen/internal/profiles"
	"github.com/AngelCh415/marketing-datagen/internal/rng"
)

const (
	DefaultDays      = 90
	DefaultUsers     = 500000
	DefaultCampaigns = 15
	DefaultBatchSize = 5000
)

var ErrInvalidParams = errors.New("invalid generation parameters")

var DefaultStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Params are the inputs of one generation run.
type Params struct {
	Days      int   `validate:"gte=1,lte=3650"`
	Users     int   `validate:"gte=0,lte=50000000"`
	Campaigns int   `validate:"gte=0,lte=1000"`
	Seed      int64
	BatchSize int   `validate:"gte=0"`
	StartDate time.Time

	// ChannelCampaigns overrides Campaigns for the named channels.
	ChannelCampaigns map[string]int `validate:"dive,gte=0,lte=1000"`

	// Nil selects the built-in tables.
	Events   *events.Set     `validate:"-"`
	Profiles *profiles.Table `validate:"-"`
}

func DefaultParams() Params {
	return Params{
		Days:      DefaultDays,
		Users:     DefaultUsers,
		Campaigns: DefaultCampaigns,
		Seed:      rng.DefaultSeed,
		BatchSize: DefaultBatchSize,
		StartDate: DefaultStart,
	}
}

var validate = validator.New()

// Validate reports the first offending parameter by name.
func (p Params) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		field := strings.ToLower(fe.Field())
		if fe.Tag() == "gte" && fe.Param() == "0" {
			return fmt.Errorf("%w: %s must not be negative (got %v)", ErrInvalidParams, field, fe.Value())
		}
		return fmt.Errorf("%w: %s failed %s=%s (got %v)", ErrInvalidParams, field, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("%w: %v", ErrInvalidParams, err)
}

// campaignsFor resolves the per-channel campaign count.
func (p Params) campaignsFor(channel string) int {
	if n, ok := p.ChannelCampaigns[channel]; ok {
		return n
	}
	return p.Campaigns
}

func (p Params) batchSize() int {
	if p.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return p.BatchSize
}

func (p Params) start() time.Time {
	if p.StartDate.IsZero() {
		return DefaultStart
	}
	y, m, d := p.StartDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseChannelCampaigns reads "Meta=0,TikTok=3" style overrides.
func ParseChannelCampaigns(specs []string) (map[string]int, error) {
	out := map[string]int{}
	for _, s := range specs {
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name, val, ok := strings.Cut(part, "=")
			if !ok {
				return nil, fmt.Errorf("%w: channel override %q must be Name=N", ErrInvalidParams, part)
			}
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return nil, fmt.Errorf("%w: channel override %q: %v", ErrInvalidParams, part, err)
			}
			out[strings.TrimSpace(name)] = n
		}
	}
	return out, nil
}
