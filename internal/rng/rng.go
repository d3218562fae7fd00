// Package rng is the single seeded random stream threaded through every
// generation stage. Nothing in the generator touches global random state.
package rng

import (
	"math/rand"

	"github.com/google/uuid"
)

const DefaultSeed int64 = 42

type Source struct {
	r *rand.Rand
}

func New(seed int64) *Source {
	return &Source{r: rand.New(rand.NewSource(seed))}
}

func (s *Source) Float64() float64 { return s.r.Float64() }

// Intn returns 0 for n <= 0 instead of panicking.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return s.r.Intn(n)
}

// IntRange draws uniformly from [lo, hi].
func (s *Source) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.r.Intn(hi-lo+1)
}

func (s *Source) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.r.Float64()
}

func (s *Source) Normal(mean, sd float64) float64 {
	return mean + sd*s.r.NormFloat64()
}

func (s *Source) Bernoulli(p float64) bool {
	return s.r.Float64() < p
}

// Categorical returns the index drawn proportionally to weights. Negative
// weights count as zero; an all-zero slice yields index 0.
func (s *Source) Categorical(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return 0
	}
	x := s.r.Float64() * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if x < w {
			return i
		}
		x -= w
	}
	return len(weights) - 1
}

// Read lets the stream act as an io.Reader, e.g. for UUID generation.
func (s *Source) Read(p []byte) (int, error) { return s.r.Read(p) }

// UUID draws a version-4 UUID from the seeded stream.
func (s *Source) UUID() string {
	id, err := uuid.NewRandomFromReader(s)
	if err != nil {
		// rand.Rand.Read never fails
		panic(err)
	}
	return id.String()
}
