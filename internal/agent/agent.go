// Package agent runs the off-chain scorer that feeds the oracle.
//
// Every interval the agent either pushes a manually overridden score (an
// integer in the override file) for the override target, or picks a random
// profiled validator, scores it with the risk model and pushes the result.
// A failed push is logged and the round is skipped.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mbd888/riskoracle/internal/oracleclient"
	"github.com/mbd888/riskoracle/internal/retry"
	"github.com/mbd888/riskoracle/internal/risk"
)

// Defaults
const (
	DefaultInterval       = 30 * time.Second
	DefaultOverrideFile   = "override.txt"
	DefaultOverrideTarget = "validator_1"
)

// Pusher writes scores to the oracle.
type Pusher interface {
	UpdateRisk(ctx context.Context, validatorID string, score uint8) (*oracleclient.Risk, error)
}

// Round is the outcome of one iteration.
type Round struct {
	ValidatorID string
	Score       uint8
	Override    bool
	Assessment  *risk.Assessment
}

// Config configures an Agent.
type Config struct {
	Interval       time.Duration
	OverrideFile   string
	OverrideTarget string
	Retry          retry.Policy
}

// Agent scores validators and pushes the scores to the oracle.
type Agent struct {
	pusher   Pusher
	model    *risk.Model
	profiles risk.Profiles
	ids      []string
	cfg      Config
	logger   *slog.Logger
	pick     func(n int) int
}

// New creates an agent. Zero config fields take the package defaults.
func New(pusher Pusher, model *risk.Model, profiles risk.Profiles, cfg Config, logger *slog.Logger) (*Agent, error) {
	if len(profiles) == 0 {
		return nil, errors.New("agent needs at least one validator profile")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.OverrideTarget == "" {
		cfg.OverrideTarget = DefaultOverrideTarget
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		pusher:   pusher,
		model:    model,
		profiles: profiles,
		ids:      profiles.IDs(),
		cfg:      cfg,
		logger:   logger,
		pick:     rand.IntN, //nolint:gosec // validator selection
	}, nil
}

// Run executes a round immediately and then once per interval until ctx is
// cancelled. Call in a goroutine.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.logger.Info("oracle agent started",
		"interval", a.cfg.Interval.String(),
		"validators", len(a.ids),
		"override_file", a.cfg.OverrideFile,
	)

	a.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("oracle agent stopped")
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Agent) tick(ctx context.Context) {
	round, err := a.RunOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.Warn("push failed, skipping round",
			"validator", round.ValidatorID,
			"score", round.Score,
			"error", err,
		)
		return
	}
	a.logger.Info("risk score pushed",
		"validator", round.ValidatorID,
		"score", round.Score,
		"override", round.Override,
	)
}

// RunOnce performs a single round. The returned round is populated even
// when the push fails.
func (a *Agent) RunOnce(ctx context.Context) (*Round, error) {
	round := a.next()

	err := a.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		_, err := a.pusher.UpdateRisk(ctx, round.ValidatorID, round.Score)
		if oracleclient.IsUnauthorized(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return round, fmt.Errorf("push %s: %w", round.ValidatorID, err)
	}
	return round, nil
}

func (a *Agent) next() *Round {
	if score, ok := a.readOverride(); ok {
		a.logger.Warn("manual override detected", "validator", a.cfg.OverrideTarget, "score", score)
		return &Round{ValidatorID: a.cfg.OverrideTarget, Score: score, Override: true}
	}

	id := a.ids[a.pick(len(a.ids))]
	assessment := a.model.Score(id, a.profiles[id])
	a.logger.Info("validator analyzed",
		"validator", id,
		"type", assessment.Type,
		"concentration", assessment.Factors[risk.FactorConcentration],
		"volatility", assessment.Factors[risk.FactorVolatility],
		"unstake", assessment.Factors[risk.FactorUnstake],
		"score", assessment.Score,
		"level", assessment.Level,
	)
	return &Round{ValidatorID: id, Score: assessment.Score, Assessment: assessment}
}

// readOverride returns the score in the override file. A missing, empty or
// malformed file means automatic mode.
func (a *Agent) readOverride() (uint8, bool) {
	if a.cfg.OverrideFile == "" {
		return 0, false
	}
	data, err := os.ReadFile(a.cfg.OverrideFile)
	if err != nil {
		return 0, false
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return 0, false
	}
	score, err := strconv.ParseUint(content, 10, 8)
	if err != nil {
		a.logger.Warn("ignoring malformed override", "file", a.cfg.OverrideFile, "content", content)
		return 0, false
	}
	return uint8(score), true
}
