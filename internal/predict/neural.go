package predict

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/goml/gobrain"

	"github.com/AngelCh415/marketing-datagen/internal/models"
	"github.com/AngelCh415/marketing-datagen/internal/rng"
)

const nFeatures = 4

var ErrBadModel = errors.New("unusable model file")

// Model is a feed-forward LTV regressor. Inputs and the target are scaled
// into [0,1] since the network's output layer is a sigmoid.
type Model struct {
	Net          *gobrain.FeedForward `json:"net"`
	Inputs       int                  `json:"inputs"`
	SessionScale float64              `json:"session_scale"`
	LTV7dScale   float64              `json:"ltv7d_scale"`
	TargetScale  float64              `json:"target_scale"`
	TrainedOn    int                  `json:"trained_on"`
	FinalError   float64              `json:"final_error"`
}

type TrainConfig struct {
	Hidden       int
	Iterations   int
	LearningRate float64
	Momentum     float64
	MaxSamples   int
	Seed         int64
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{Hidden: 6, Iterations: 200, LearningRate: 0.3, Momentum: 0.2, MaxSamples: 4000, Seed: rng.DefaultSeed}
}

func (m *Model) vector(f Features) []float64 {
	payer := 0.0
	if f.IsPayer {
		payer = 1
	}
	return []float64{
		f.RetentionD7,
		payer,
		math.Min(float64(f.SessionCount7d)/m.SessionScale, 1),
		math.Min(f.LTV7d/m.LTV7dScale, 1),
	}
}

// UserFeatures derives the model inputs of a generated user.
func UserFeatures(u models.UserInstall) Features {
	ret := 0.0
	if u.D7Active {
		ret = 1
	}
	return Features{RetentionD7: ret, IsPayer: u.IsPayer, SessionCount7d: u.SessionCount7d, LTV7d: u.LTV7d}
}

// Train fits a model on users. Sampling and weight initialisation use the
// seeded stream, so equal inputs train equal models.
func Train(users []models.UserInstall, cfg TrainConfig) (*Model, error) {
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: no users to train on", ErrBadInput)
	}
	if cfg.Hidden <= 0 || cfg.Iterations <= 0 || cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("%w: hidden, iterations and learning rate must be positive", ErrBadInput)
	}
	r := rng.New(cfg.Seed)

	sample := users
	if cfg.MaxSamples > 0 && len(users) > cfg.MaxSamples {
		sample = make([]models.UserInstall, cfg.MaxSamples)
		for i := range sample {
			sample[i] = users[r.Intn(len(users))]
		}
	}

	m := &Model{Inputs: nFeatures, SessionScale: 1, LTV7dScale: 1, TargetScale: 1, TrainedOn: len(sample)}
	for _, u := range sample {
		m.SessionScale = math.Max(m.SessionScale, float64(u.SessionCount7d))
		m.LTV7dScale = math.Max(m.LTV7dScale, u.LTV7d)
		m.TargetScale = math.Max(m.TargetScale, u.LTV)
	}

	patterns := make([][][]float64, len(sample))
	for i, u := range sample {
		patterns[i] = [][]float64{m.vector(UserFeatures(u)), {u.LTV / m.TargetScale}}
	}

	ff := &gobrain.FeedForward{}
	ff.Init(nFeatures, cfg.Hidden, 1)
	for _, w := range [][][]float64{ff.InputWeights, ff.OutputWeights} {
		for i := range w {
			for j := range w[i] {
				w[i][j] = r.Uniform(-1, 1)
			}
		}
	}
	errs := ff.Train(patterns, cfg.Iterations, cfg.LearningRate, cfg.Momentum, false)
	if len(errs) > 0 {
		m.FinalError = errs[len(errs)-1]
	}
	m.Net = ff
	return m, nil
}

func (m *Model) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func LoadModel(path string) (*Model, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadModel, err)
	}
	var m Model
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadModel, path, err)
	}
	if m.Net == nil || len(m.Net.InputWeights) == 0 || len(m.Net.OutputWeights) == 0 {
		return nil, fmt.Errorf("%w: %s: no network weights", ErrBadModel, path)
	}
	if m.Inputs != nFeatures {
		return nil, fmt.Errorf("%w: %s: expects %d inputs, have %d", ErrBadModel, path, m.Inputs, nFeatures)
	}
	if m.SessionScale <= 0 || m.LTV7dScale <= 0 || m.TargetScale <= 0 {
		return nil, fmt.Errorf("%w: %s: non-positive scale", ErrBadModel, path)
	}
	return &m, nil
}

// Neural answers LTV from the trained model. Churn and CPI forecasts have
// no trained counterpart and use the formulas.
type Neural struct {
	RuleBased
	model *Model
}

func NewNeural(m *Model) *Neural { return &Neural{model: m} }

func (n *Neural) Kind() string { return KindNeural }

func (n *Neural) LTV(f Features) (float64, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	out := n.model.Net.Update(n.model.vector(f))
	return round2(math.Max(out[0], 0) * n.model.TargetScale), nil
}
