// Command agent scores simulated validators and pushes the results to the
// risk oracle as its admin.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mbd888/riskoracle/internal/agent"
	"github.com/mbd888/riskoracle/internal/auth"
	"github.com/mbd888/riskoracle/internal/config"
	"github.com/mbd888/riskoracle/internal/logging"
	"github.com/mbd888/riskoracle/internal/oracleclient"
	"github.com/mbd888/riskoracle/internal/retry"
	"github.com/mbd888/riskoracle/internal/risk"
)

func main() {
	logger := logging.New("info", "text")

	cfg, err := config.LoadAgent()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)

	signer, err := auth.NewSigner(cfg.PrivateKey)
	if err != nil {
		logger.Error("invalid ORACLE_PRIVATE_KEY", "error", err)
		os.Exit(1)
	}

	pf, err := risk.LoadProfiles(cfg.ProfilesPath)
	if err != nil {
		logger.Error("failed to load validator profiles", "path", cfg.ProfilesPath, "error", err)
		os.Exit(1)
	}
	var modelOpts []risk.ModelOption
	if pf.Weights != nil {
		modelOpts = append(modelOpts, risk.WithWeights(*pf.Weights))
	}

	client := oracleclient.New(cfg.APIURL, oracleclient.WithSigner(signer))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	claimAdmin(ctx, client, signer, logger)

	policy := retry.DefaultPolicy
	policy.MaxAttempts = cfg.MaxAttempts
	policy.OnRetry = func(attempt int, err error, sleep time.Duration) {
		logger.Warn("push failed, retrying", "attempt", attempt, "sleep", sleep.String(), "error", err)
	}

	a, err := agent.New(client, risk.NewModel(modelOpts...), pf.Validators, agent.Config{
		Interval:       cfg.Interval,
		OverrideFile:   cfg.OverrideFile,
		OverrideTarget: cfg.OverrideTarget,
		Retry:          policy,
	}, logger)
	if err != nil {
		logger.Error("failed to create agent", "error", err)
		os.Exit(1)
	}

	logger.Info("pushing scores",
		"api", cfg.APIURL,
		"admin", signer.Address().Hex(),
		"validators", strings.Join(pf.Validators.IDs(), ","),
	)
	a.Run(ctx)
}

// claimAdmin initializes an uninitialized registry with the agent's key so a
// fresh deployment can start accepting scores.
func claimAdmin(ctx context.Context, client *oracleclient.Client, signer *auth.Signer, logger *slog.Logger) {
	status, err := client.Status(ctx)
	if err != nil {
		logger.Warn("could not read oracle status", "error", err)
		return
	}
	if status.Initialized {
		if !strings.EqualFold(status.Admin, signer.Address().Hex()) {
			logger.Warn("oracle admin is a different key, updates will be rejected",
				"admin", status.Admin,
				"agent", signer.Address().Hex(),
			)
		}
		return
	}

	if _, err := client.Initialize(ctx); err != nil {
		if oracleclient.IsAlreadyInitialized(err) {
			logger.Warn("oracle was initialized concurrently by another key")
			return
		}
		logger.Warn("could not initialize oracle", "error", err)
		return
	}
	logger.Info("oracle initialized", "admin", signer.Address().Hex())
}
