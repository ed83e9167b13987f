// Package risk implements the validator risk model that feeds the oracle.
//
// Each validator profile carries 3 factors as fractions of 1: stake
// concentration, reward volatility and unstake spike. The model weights
// them, adds bounded market noise and scales the result to an integer
// score in 0..100. Scores above the elevated threshold are flagged.
package risk

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Level classifies a score.
type Level string

const (
	LevelSafe     Level = "safe"
	LevelElevated Level = "elevated"
)

// Model defaults.
const (
	DefaultElevatedThreshold = 50
	DefaultMaxNoise          = 0.05
	MaxScore                 = 100
)

// Factor names used in Assessment.Factors.
const (
	FactorConcentration = "stake_concentration"
	FactorVolatility    = "reward_volatility"
	FactorUnstake       = "unstake_spike"
)

// Weights are the contribution of each factor to the raw score.
type Weights struct {
	Concentration float64 `yaml:"stake_concentration" json:"stakeConcentration"`
	Volatility    float64 `yaml:"reward_volatility" json:"rewardVolatility"`
	Unstake       float64 `yaml:"unstake_spike" json:"unstakeSpike"`
}

// DefaultWeights: 0.4 concentration, 0.3 volatility, 0.3 unstake.
var DefaultWeights = Weights{
	Concentration: 0.40,
	Volatility:    0.30,
	Unstake:       0.30,
}

// Validate checks that weights are non-negative and not all zero.
func (w Weights) Validate() error {
	if w.Concentration < 0 || w.Volatility < 0 || w.Unstake < 0 {
		return fmt.Errorf("weights must be non-negative")
	}
	if w.Concentration+w.Volatility+w.Unstake == 0 {
		return fmt.Errorf("weights must not all be zero")
	}
	return nil
}

// Assessment is the result of scoring one validator.
type Assessment struct {
	ValidatorID string             `json:"validator"`
	Type        string             `json:"type"`
	Factors     map[string]float64 `json:"factors"`
	Noise       float64            `json:"noise"`
	Raw         float64            `json:"raw"`
	Score       uint8              `json:"score"`
	Level       Level              `json:"level"`
	EvaluatedAt time.Time          `json:"evaluatedAt"`
}

// NoiseFunc returns market noise to add to a raw score.
type NoiseFunc func() float64

// UniformNoise returns noise drawn uniformly from [-max, max].
func UniformNoise(max float64) NoiseFunc {
	return func() float64 {
		return (rand.Float64()*2 - 1) * max //nolint:gosec // simulation noise
	}
}

// NoNoise disables market noise.
func NoNoise() float64 { return 0 }

// Model scores validator profiles.
type Model struct {
	weights   Weights
	noise     NoiseFunc
	threshold uint8
	now       func() time.Time
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithWeights replaces DefaultWeights.
func WithWeights(w Weights) ModelOption {
	return func(m *Model) { m.weights = w }
}

// WithNoise replaces the default uniform noise source.
func WithNoise(n NoiseFunc) ModelOption {
	return func(m *Model) { m.noise = n }
}

// WithThreshold sets the score above which a validator is elevated.
func WithThreshold(t uint8) ModelOption {
	return func(m *Model) { m.threshold = t }
}

// NewModel creates a model with default weights and noise.
func NewModel(opts ...ModelOption) *Model {
	m := &Model{
		weights:   DefaultWeights,
		noise:     UniformNoise(DefaultMaxNoise),
		threshold: DefaultElevatedThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Score evaluates a profile.
func (m *Model) Score(validatorID string, p Profile) *Assessment {
	noise := m.noise()
	raw := p.StakeConcentration*m.weights.Concentration +
		p.RewardVolatility*m.weights.Volatility +
		p.UnstakeSpike*m.weights.Unstake +
		noise

	score := uint8(math.Min(math.Max(raw*100, 0), MaxScore))

	return &Assessment{
		ValidatorID: validatorID,
		Type:        p.Type,
		Factors: map[string]float64{
			FactorConcentration: p.StakeConcentration,
			FactorVolatility:    p.RewardVolatility,
			FactorUnstake:       p.UnstakeSpike,
		},
		Noise:       noise,
		Raw:         raw,
		Score:       score,
		Level:       m.Classify(score),
		EvaluatedAt: m.now(),
	}
}

// Classify maps a score to a level.
func (m *Model) Classify(score uint8) Level {
	if score > m.threshold {
		return LevelElevated
	}
	return LevelSafe
}
