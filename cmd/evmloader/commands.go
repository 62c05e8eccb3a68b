package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/blockberries/evmloader/address"
	"github.com/blockberries/evmloader/types"
)

func newDeriveCmd(a *app) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "derive <base> <seed>",
		Short: "Print the owner-seeded address of base and seed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := types.PubkeyFromBase58(args[0])
			if err != nil {
				return err
			}
			prog, err := ownerOrProgram(a, owner)
			if err != nil {
				return err
			}
			pk, err := address.Derive(base, args[1], prog)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pk)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owning program (default: configured program_id)")
	return cmd
}

func newProgramAddressCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "program-address <ether-address>",
		Short: "Print the ledger account and bump seed of an ether address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid ether address %q", args[0])
			}
			prog, err := a.cfg.Program()
			if err != nil {
				return err
			}
			pk, nonce, err := address.EtherAccount(common.HexToAddress(args[0]), prog)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", pk, nonce)
			return nil
		},
	}
}

func newUploadCmd(a *app) *cobra.Command {
	var seed string
	cmd := &cobra.Command{
		Use:   "upload <payload-file>",
		Short: "Write a signed payload into the payer's holder account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(args[0])
			if err != nil {
				return err
			}
			s, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			seed, _ = a.seeds(seed, "")
			holder, receipts, err := s.client.Upload(cmd.Context(), payload, seed)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "holder %s\n", holder)
			for _, r := range receipts {
				fmt.Fprintf(out, "chunk %d+%d %s\n", r.Offset, r.Length, r.Signature)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&seed, "holder-seed", "", "holder account seed (default: execution.holder_seed)")
	return cmd
}

func newExecuteCmd(a *app) *cobra.Command {
	var (
		oneShot     bool
		holderSeed  string
		storageSeed string
	)
	cmd := &cobra.Command{
		Use:   "execute <payload-file>",
		Short: "Upload a signed payload and run it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			payload, err := readPayload(args[0])
			if err != nil {
				return err
			}
			s, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			target, err := s.client.ResolveTarget(ctx, payload)
			if err != nil {
				return err
			}

			holderSeed, storageSeed = a.seeds(holderSeed, storageSeed)
			var res types.ExecutionResult
			if oneShot {
				holder, _, err := s.client.Upload(ctx, payload, holderSeed)
				if err != nil {
					return err
				}
				res, err = s.client.ExecuteFromHolder(ctx, holder, target)
				if err != nil {
					return err
				}
			} else {
				res, err = s.client.ExecuteIterative(ctx, payload, holderSeed, storageSeed, target)
				if err != nil {
					return err
				}
			}
			printResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&oneShot, "one-shot", false, "execute with a single finalize call instead of stepping")
	cmd.Flags().StringVar(&holderSeed, "holder-seed", "", "holder account seed (default: execution.holder_seed)")
	cmd.Flags().StringVar(&storageSeed, "storage-seed", "", "storage account seed (default: execution.storage_seed)")
	return cmd
}

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account>",
		Short: "Print the lamport balance of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, err := types.PubkeyFromBase58(args[0])
			if err != nil {
				return err
			}
			s, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			bal, err := s.ledger.GetBalance(cmd.Context(), pk)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), bal)
			return nil
		},
	}
}

func ownerOrProgram(a *app, owner string) (types.Pubkey, error) {
	if owner != "" {
		return types.PubkeyFromBase58(owner)
	}
	return a.cfg.Program()
}

// readPayload reads a payload file holding raw bytes or hex text.
func readPayload(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimPrefix(strings.TrimSpace(string(b)), "0x")
	if dec, err := hex.DecodeString(text); err == nil {
		return dec, nil
	}
	return b, nil
}

// seeds fills the unset account seeds from the execution settings.
func (a *app) seeds(holder, storage string) (string, string) {
	if holder == "" {
		holder = a.cfg.Execution.HolderSeed
	}
	if storage == "" {
		storage = a.cfg.Execution.StorageSeed
	}
	return holder, storage
}

func printResult(cmd *cobra.Command, res types.ExecutionResult) {
	out := cmd.OutOrStdout()
	for i, ev := range res.Events {
		topics := make([]string, len(ev.Topics))
		for j, t := range ev.Topics {
			topics[j] = t.Hex()
		}
		fmt.Fprintf(out, "event %d %s [%s] %x\n", i, ev.Address.Hex(), strings.Join(topics, " "), ev.Data)
	}
	fmt.Fprintf(out, "return %x\n", res.Return)
}
