package mcpserver

import (
	"context"

	"github.com/mbd888/riskoracle/internal/auth"
	"github.com/mbd888/riskoracle/internal/oracleclient"
)

// Config holds MCP server configuration.
type Config struct {
	APIURL string
	// PrivateKey is the admin key used to sign update_risk calls. Without
	// it the server only exposes read tools.
	PrivateKey string
}

// OracleAPI is the part of the oracle client the tools use.
type OracleAPI interface {
	GetRisk(ctx context.Context, validatorID string) (*oracleclient.Risk, error)
	ListRisks(ctx context.Context) (*oracleclient.RiskList, error)
	Status(ctx context.Context) (*oracleclient.Status, error)
	UpdateRisk(ctx context.Context, validatorID string, score uint8) (*oracleclient.Risk, error)
}

// NewOracleClient builds an oracle client from cfg, signing when a key is set.
func NewOracleClient(cfg Config) (*oracleclient.Client, error) {
	var opts []oracleclient.Option
	if cfg.PrivateKey != "" {
		signer, err := auth.NewSigner(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, oracleclient.WithSigner(signer))
	}
	return oracleclient.New(cfg.APIURL, opts...), nil
}
