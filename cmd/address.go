package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/tranvictor/walletfactory/config"
	"github.com/tranvictor/walletfactory/infra"
	"github.com/tranvictor/walletfactory/ledger"
)

type counterfactualInfo struct {
	Address  string `json:"address"`
	Salt     string `json:"salt"`
	Occupied bool   `json:"occupied"`
}

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Compute the address of a counterfactual wallet",
	Long: `Compute the address a wallet for --owner, --modules and optionally --guardian
gets when created with --salt. Nothing is written; the address can be funded
before the wallet exists.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		salt, ok, err := saltParam()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("--salt or --random-salt is required")
		}
		hasGuardian := cmd.Flags().Changed("guardian")
		return withSystem(func(sys *infra.System) error {
			owner, mods, guardian, err := walletParams(sys, hasGuardian)
			if err != nil {
				return err
			}
			var addr common.Address
			if hasGuardian {
				addr, err = sys.Factory.AddressForCounterfactualWalletWithGuardian(owner, mods, guardian, salt)
			} else {
				addr, err = sys.Factory.AddressForCounterfactualWallet(owner, mods, salt)
			}
			if err != nil {
				return err
			}
			info := counterfactualInfo{Address: addr.Hex(), Salt: salt.Hex()}
			err = sys.Ledger.View(func(st *ledger.State) error {
				info.Occupied, err = st.Occupied(addr)
				return err
			})
			if err != nil {
				return err
			}
			if config.JSONOutput {
				return appUI.JSON(info)
			}
			appUI.KeyValue([][2]string{
				{"Address", info.Address},
				{"Salt", info.Salt},
			})
			if info.Occupied {
				appUI.Warn("The address is already in use, creating this wallet will fail")
			}
			return nil
		})
	},
}

func init() {
	addWalletFlags(addressCmd)
	rootCmd.AddCommand(addressCmd)
}
