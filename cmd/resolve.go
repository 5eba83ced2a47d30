package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tranvictor/walletfactory/config"
	"github.com/tranvictor/walletfactory/ens"
	"github.com/tranvictor/walletfactory/infra"
	"github.com/tranvictor/walletfactory/ledger"
)

type resolution struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Available bool   `json:"available"`
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <label>",
	Short: "Resolve a wallet name and tell whether the label is still free",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSystem(func(sys *infra.System) error {
			label := ens.Normalize(args[0])
			res := resolution{Name: sys.Naming.FullName(label)}
			err := sys.Ledger.View(func(st *ledger.State) error {
				addr, err := sys.Naming.Resolve(st, label)
				if err != nil {
					return err
				}
				res.Address = optionalAddress(addr)
				res.Available, err = sys.Naming.IsAvailable(st, label)
				return err
			})
			if err != nil {
				return err
			}
			if config.JSONOutput {
				return appUI.JSON(res)
			}
			appUI.KeyValue([][2]string{
				{"Name", res.Name},
				{"Address", res.Address},
			})
			if res.Available {
				appUI.Success("%s is available", res.Name)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
