package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	wfcommon "github.com/tranvictor/walletfactory/common"
	"github.com/tranvictor/walletfactory/config"
	"github.com/tranvictor/walletfactory/infra"
	"github.com/tranvictor/walletfactory/ledger"
	"github.com/tranvictor/walletfactory/ui"
)

var moduleCmd = &cobra.Command{
	Use:   "module",
	Short: "Manage the modules wallets can be created with",
}

var moduleRegisterCmd = &cobra.Command{
	Use:   "register <address>",
	Short: "Approve a module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := callerAddress()
		if err != nil {
			return err
		}
		module, err := wfcommon.ParseAddress(args[0])
		if err != nil {
			return err
		}
		return withSystem(func(sys *infra.System) error {
			_, err := sys.Ledger.Execute(func(st *ledger.State) error {
				return sys.Modules.Register(st, caller, module, config.Name)
			})
			if err != nil {
				return err
			}
			appUI.Success("Module %s registered as %q", module.Hex(), config.Name)
			return nil
		})
	},
}

var moduleDeregisterCmd = &cobra.Command{
	Use:   "deregister <address or name>",
	Short: "Withdraw the approval of a module",
	Long: `Withdraw the approval of a module. The module can be given by address or
by a hint of its registered name. Wallets created before keep the module.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := callerAddress()
		if err != nil {
			return err
		}
		return withSystem(func(sys *infra.System) error {
			regs, err := sys.Modules.Modules(sys.Ledger)
			if err != nil {
				return err
			}
			reg, err := lookupModule(regs, args[0])
			if err != nil {
				return err
			}
			if !appUI.Confirm(fmt.Sprintf("Deregister %s (%s)?", reg.Name, reg.Module.Hex()), false) {
				appUI.Warn("Aborted")
				return nil
			}
			_, err = sys.Ledger.Execute(func(st *ledger.State) error {
				return sys.Modules.Deregister(st, caller, reg.Module)
			})
			if err != nil {
				return err
			}
			appUI.Success("Module %s deregistered", reg.Module.Hex())
			return nil
		})
	},
}

type moduleInfo struct {
	Module   string `json:"module"`
	Name     string `json:"name"`
	Approved bool   `json:"approved"`
}

var moduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every module ever registered",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSystem(func(sys *infra.System) error {
			regs, err := sys.Modules.Modules(sys.Ledger)
			if err != nil {
				return err
			}
			if config.JSONOutput {
				out := make([]moduleInfo, 0, len(regs))
				for _, r := range regs {
					out = append(out, moduleInfo{Module: r.Module.Hex(), Name: r.Name, Approved: r.Approved})
				}
				return appUI.JSON(out)
			}
			if len(regs) == 0 {
				appUI.Info("No module registered yet")
				return nil
			}
			rows := make([][]string, 0, len(regs))
			for _, r := range regs {
				status := ui.Styled("approved", ui.SeveritySuccess)
				if !r.Approved {
					status = ui.Styled("revoked", ui.SeverityError)
				}
				rows = append(rows, []string{r.Module.Hex(), r.Name, appUI.Style(status)})
			}
			appUI.Table([]string{"Module", "Name", "Status"}, rows)
			return nil
		})
	},
}

func init() {
	moduleRegisterCmd.Flags().StringVarP(&config.Name, "name", "n", "", "name of the module")
	moduleRegisterCmd.MarkFlagRequired("name")
	moduleCmd.AddCommand(moduleRegisterCmd, moduleDeregisterCmd, moduleListCmd)
	rootCmd.AddCommand(moduleCmd)
}
