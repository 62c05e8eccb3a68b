package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"

	"github.com/blockberries/evmloader"
	"github.com/blockberries/evmloader/call"
	"github.com/blockberries/evmloader/config"
	"github.com/blockberries/evmloader/ledger"
	"github.com/blockberries/evmloader/loader"
	"github.com/blockberries/evmloader/rpc"
)

// app carries the state shared by subcommands.
type app struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "evmloader",
		Short:         "Drive EVM payloads through the loader program",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return config.SetupLogging(cfg.Log, cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file (yaml, toml or json)")

	root.AddCommand(
		newDeriveCmd(a),
		newProgramAddressCmd(a),
		newUploadCmd(a),
		newExecuteCmd(a),
		newBalanceCmd(a),
	)
	return root
}

// session is a connection to the configured node on behalf of the
// configured keypair.
type session struct {
	ledger evmloader.Ledger
	payer  *ledger.Keypair
	client *loader.Client
}

func (a *app) connect(ctx context.Context) (*session, error) {
	program, err := a.cfg.Program()
	if err != nil {
		return nil, err
	}
	if a.cfg.Keypair == "" {
		return nil, fmt.Errorf("keypair is not set")
	}
	payer, err := ledger.LoadKeypair(a.cfg.Keypair)
	if err != nil {
		return nil, err
	}
	var opts []rpc.Option
	if a.cfg.RateLimit > 0 {
		opts = append(opts, rpc.WithRateLimit(a.cfg.RateLimit, 1))
	}
	node, err := rpc.Dial(ctx, a.cfg.Endpoint, opts...)
	if err != nil {
		return nil, err
	}
	lg := log.Root()
	caller := call.New(node, payer, a.cfg.CallConfig(lg))
	return &session{
		ledger: node,
		payer:  payer,
		client: loader.New(node, caller, payer.Pubkey(), a.cfg.LoaderConfig(program, lg)),
	}, nil
}

func (s *session) Close() error { return s.ledger.Close() }
