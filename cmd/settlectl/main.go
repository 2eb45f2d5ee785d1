package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/PolymeshAssociation/confidential-polymesh-rest-api/pkg/settlesdk"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	baseURL string
	timeout time.Duration
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "settlectl",
		Short:        "Inspect and affirm confidential transactions",
		SilenceUsage: true,
	}
	defaultURL := os.Getenv("SETTLEMENT_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8090"
	}
	root.PersistentFlags().StringVar(&baseURL, "url", defaultURL, "settlement service base url (env SETTLEMENT_URL)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "request timeout")

	root.AddCommand(proofsCmd(), verifyAmountsCmd(), affirmCmd(), verifyAndAffirmCmd(), balancesCmd(), burnCmd())
	return root
}

func client() *settlesdk.Client {
	c := settlesdk.New(baseURL)
	c.HTTPClient.Timeout = timeout
	return c
}

func proofsCmd() *cobra.Command {
	var txID uint64
	cmd := &cobra.Command{
		Use:   "proofs",
		Short: "Show which legs of a transaction have sender proofs",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().Proofs(cmd.Context(), txID)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().Uint64Var(&txID, "tx", 0, "confidential transaction id")
	_ = cmd.MarkFlagRequired("tx")
	return cmd
}

func verifyAmountsCmd() *cobra.Command {
	var (
		txID    uint64
		key     string
		leg     int
		amounts []string
	)
	cmd := &cobra.Command{
		Use:   "verify-amounts",
		Short: "Decrypt and check every leg amount the key can see",
		Long: `Decrypt and check every leg amount the key can see.

Example:
  settlectl verify-amounts --tx 7 --key 0xauditor --leg 0 --amount 76702175-d8cb-e3a5-5a19-734433351e25=100
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := settlesdk.VerifyAmountsRequest{PublicKey: key}
			if len(amounts) > 0 {
				parsed, err := parseAmounts(amounts)
				if err != nil {
					return err
				}
				req.LegAmounts = []settlesdk.LegAmounts{{LegID: leg, ExpectedAmounts: parsed}}
			}
			res, err := client().VerifyAmounts(cmd.Context(), txID, req)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().Uint64Var(&txID, "tx", 0, "confidential transaction id")
	cmd.Flags().StringVar(&key, "key", "", "public key of the auditor or receiver")
	cmd.Flags().IntVar(&leg, "leg", 0, "leg the --amount hints apply to")
	cmd.Flags().StringArrayVar(&amounts, "amount", nil, "expected amount as asset=amount (repeatable)")
	_ = cmd.MarkFlagRequired("tx")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func affirmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "affirm",
		Short: "Affirm a leg as sender or observer",
	}

	var (
		txID    uint64
		leg     int
		signer  string
		amounts []string
		party   string
	)
	sender := &cobra.Command{
		Use:   "sender",
		Short: "Generate sender proofs and affirm a leg",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseAmounts(amounts)
			if err != nil {
				return err
			}
			res, err := client().SenderAffirmLeg(cmd.Context(), txID, settlesdk.SenderAffirmRequest{
				Signer: signer, LegID: leg, LegAmounts: parsed,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	sender.Flags().StringArrayVar(&amounts, "amount", nil, "amount to send as asset=amount (repeatable)")
	_ = sender.MarkFlagRequired("amount")

	observer := &cobra.Command{
		Use:   "observer",
		Short: "Affirm a leg as receiver or mediator without verifying amounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().ObserverAffirmLeg(cmd.Context(), txID, settlesdk.ObserverAffirmRequest{
				Signer: signer, LegID: leg, Party: party,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	observer.Flags().StringVar(&party, "party", "Receiver", "Receiver or Mediator")

	for _, c := range []*cobra.Command{sender, observer} {
		c.Flags().Uint64Var(&txID, "tx", 0, "confidential transaction id")
		c.Flags().IntVar(&leg, "leg", 0, "leg id")
		c.Flags().StringVar(&signer, "signer", "", "signing identity")
		_ = c.MarkFlagRequired("tx")
		_ = c.MarkFlagRequired("signer")
		cmd.AddCommand(c)
	}
	return cmd
}

func verifyAndAffirmCmd() *cobra.Command {
	var (
		txID    uint64
		leg     int
		signer  string
		key     string
		party   string
		amounts []string
	)
	cmd := &cobra.Command{
		Use:   "verify-and-affirm",
		Short: "Affirm a leg only if the decrypted amounts match",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseAmounts(amounts)
			if err != nil {
				return err
			}
			res, err := client().VerifyAndAffirmLeg(cmd.Context(), txID, settlesdk.VerifyAndAffirmRequest{
				Signer: signer, LegID: leg, PublicKey: key, ExpectedAmounts: parsed, Party: party,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().Uint64Var(&txID, "tx", 0, "confidential transaction id")
	cmd.Flags().IntVar(&leg, "leg", 0, "leg id")
	cmd.Flags().StringVar(&signer, "signer", "", "signing identity")
	cmd.Flags().StringVar(&key, "key", "", "public key used to decrypt the leg")
	cmd.Flags().StringVar(&party, "party", "Receiver", "Receiver or Mediator")
	cmd.Flags().StringArrayVar(&amounts, "amount", nil, "expected amount as asset=amount (repeatable)")
	for _, f := range []string{"tx", "signer", "key", "amount"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func balancesCmd() *cobra.Command {
	var (
		account  string
		incoming bool
	)
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "List the encrypted balances of a confidential account",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().Balances(cmd.Context(), account, incoming)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "confidential account public key")
	cmd.Flags().BoolVar(&incoming, "incoming", false, "list incoming balances not yet applied")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func burnCmd() *cobra.Command {
	var (
		asset   string
		account string
		signer  string
		amount  string
	)
	cmd := &cobra.Command{
		Use:   "burn",
		Short: "Burn an amount of a confidential asset from an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := decimal.NewFromString(strings.TrimSpace(amount))
			if err != nil {
				return errors.Wrapf(err, "amount %q", amount)
			}
			res, err := client().BurnAsset(cmd.Context(), asset, settlesdk.BurnRequest{
				Signer: signer, ConfidentialAccount: account, Amount: d,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "", "confidential asset id")
	cmd.Flags().StringVar(&account, "account", "", "confidential account holding the asset")
	cmd.Flags().StringVar(&signer, "signer", "", "signing identity")
	cmd.Flags().StringVar(&amount, "amount", "", "amount to burn")
	for _, f := range []string{"asset", "account", "signer", "amount"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

// parseAmounts reads asset=amount pairs.
func parseAmounts(raw []string) ([]settlesdk.LegAmount, error) {
	out := make([]settlesdk.LegAmount, 0, len(raw))
	for _, r := range raw {
		asset, amount, ok := strings.Cut(r, "=")
		if !ok || strings.TrimSpace(asset) == "" {
			return nil, fmt.Errorf("amount %q must look like asset=amount", r)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return nil, errors.Wrapf(err, "amount %q", r)
		}
		out = append(out, settlesdk.LegAmount{ConfidentialAsset: strings.TrimSpace(asset), Amount: d})
	}
	return out, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
