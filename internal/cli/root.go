// Package cli implements riskctl, the command line client for the oracle.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mbd888/riskoracle/internal/auth"
	"github.com/mbd888/riskoracle/internal/oracleclient"
)

type options struct {
	apiURL     string
	privateKey string
	jsonOutput bool
}

// NewRootCmd builds the riskctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "riskctl",
		Short:         "Command line client for the validator risk oracle",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.apiURL, "api", envOr("ORACLE_API_URL", "http://localhost:8080"), "oracle API base URL")
	root.PersistentFlags().StringVar(&opts.privateKey, "key", os.Getenv("ORACLE_PRIVATE_KEY"), "hex private key used to sign writes")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print raw JSON")

	root.AddCommand(
		newGetCmd(opts),
		newListCmd(opts),
		newSetCmd(opts),
		newStatusCmd(opts),
		newInitCmd(opts),
		newKeygenCmd(opts),
		newScoreCmd(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	_ = godotenv.Load()

	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (o *options) client(signed bool) (*oracleclient.Client, error) {
	if !signed {
		return oracleclient.New(o.apiURL), nil
	}
	if o.privateKey == "" {
		return nil, fmt.Errorf("a signing key is required: pass --key or set ORACLE_PRIVATE_KEY")
	}
	signer, err := auth.NewSigner(o.privateKey)
	if err != nil {
		return nil, err
	}
	return oracleclient.New(o.apiURL, oracleclient.WithSigner(signer)), nil
}

func (o *options) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
