package cmd

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/tranvictor/walletfactory/config"
	"github.com/tranvictor/walletfactory/infra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a wallet and give it an ENS name",
	Long: `Create a wallet for --owner with the --modules it starts with and register
<label>.<root name> for it. Modules can be addresses or hints of registered
module names.

With --guardian the wallet gets its first guardian. With --salt (or
--random-salt) the wallet is created at the address "walletfactory address"
computes for the same owner, modules, guardian and salt.

Only factory managers can create wallets.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := callerAddress()
		if err != nil {
			return err
		}
		salt, counterfactual, err := saltParam()
		if err != nil {
			return err
		}
		hasGuardian := cmd.Flags().Changed("guardian")
		return withSystem(func(sys *infra.System) error {
			owner, mods, guardian, err := walletParams(sys, hasGuardian)
			if err != nil {
				return err
			}
			f := sys.Factory
			var addr common.Address
			stop := appUI.Spinner("creating wallet " + config.Label)
			switch {
			case counterfactual && hasGuardian:
				addr, err = f.CreateCounterfactualWalletWithGuardian(caller, owner, mods, config.Label, guardian, salt)
			case counterfactual:
				addr, err = f.CreateCounterfactualWallet(caller, owner, mods, config.Label, salt)
			case hasGuardian:
				addr, err = f.CreateWalletWithGuardian(caller, owner, mods, config.Label, guardian)
			default:
				addr, err = f.CreateWallet(caller, owner, mods, config.Label)
			}
			stop()
			if err != nil {
				return err
			}
			if !config.JSONOutput {
				appUI.Critical("Wallet created at %s", addr.Hex())
				if counterfactual {
					appUI.Info("Salt: %s", salt.Hex())
				}
			}
			return printWallet(sys, addr)
		})
	},
}

func addWalletFlags(c *cobra.Command) {
	c.Flags().StringVarP(&config.Owner, "owner", "o", "", "owner of the wallet")
	c.Flags().StringSliceVarP(&config.Modules, "modules", "m", nil, "modules the wallet starts with, by address or name hint")
	c.Flags().StringVarP(&config.Guardian, "guardian", "g", "", "first guardian of the wallet")
	c.Flags().StringVarP(&config.Salt, "salt", "s", "", "salt for a counterfactual wallet, hex or decimal")
	c.Flags().BoolVar(&config.RandomSalt, "random-salt", false, "use a fresh random salt")
}

func init() {
	addWalletFlags(createCmd)
	createCmd.Flags().StringVarP(&config.Label, "label", "l", "", "ENS label of the wallet")
	rootCmd.AddCommand(createCmd)
}
