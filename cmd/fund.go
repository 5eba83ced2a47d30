package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	wfcommon "github.com/tranvictor/walletfactory/common"
	"github.com/tranvictor/walletfactory/config"
	"github.com/tranvictor/walletfactory/infra"
	"github.com/tranvictor/walletfactory/ledger"
	"github.com/tranvictor/walletfactory/wallet"
)

var fundCmd = &cobra.Command{
	Use:   "fund <address>",
	Short: "Send value to an address, e.g. a counterfactual wallet",
	Long: `Send --amount (in ether) to an address. With --source the value is taken
from that account, otherwise it is minted. Funding a wallet address before the
wallet exists is how counterfactual wallets are prefunded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := wfcommon.ParseAddress(args[0])
		if err != nil {
			return err
		}
		amount, err := wfcommon.ParseEther(config.Amount)
		if err != nil {
			return err
		}
		if amount.Sign() == 0 {
			return fmt.Errorf("--amount must be positive")
		}
		return withSystem(func(sys *infra.System) error {
			receipt, err := sys.Ledger.Execute(func(st *ledger.State) error {
				if config.Source == "" {
					return st.Credit(to, amount)
				}
				from, err := wfcommon.ParseAddress(config.Source)
				if err != nil {
					return err
				}
				return st.Transfer(from, to, amount)
			})
			if err != nil {
				return err
			}
			appUI.Success("Sent %s to %s", wfcommon.FormatEther(amount), to.Hex())
			if received := ledger.FilterLogs(receipt.Logs, to, wallet.ABI, "Received"); len(received) > 0 {
				appUI.Info("The wallet acknowledged the payment")
			}
			return nil
		})
	},
}

func init() {
	fundCmd.Flags().StringVarP(&config.Amount, "amount", "a", "", "amount in ether")
	fundCmd.Flags().StringVar(&config.Source, "source", "", "account the value is taken from instead of minting it")
	fundCmd.MarkFlagRequired("amount")
	rootCmd.AddCommand(fundCmd)
}
