package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	wfcommon "github.com/tranvictor/walletfactory/common"
	"github.com/tranvictor/walletfactory/config"
	"github.com/tranvictor/walletfactory/ens"
	"github.com/tranvictor/walletfactory/guardians"
	"github.com/tranvictor/walletfactory/infra"
	"github.com/tranvictor/walletfactory/ledger"
	"github.com/tranvictor/walletfactory/modules"
)

type systemInfo struct {
	Factory        string `json:"factory"`
	Owner          string `json:"owner"`
	Implementation string `json:"implementation"`
	ModuleRegistry string `json:"moduleRegistry"`
	ENSManager     string `json:"ensManager"`
	ENSRegistry    string `json:"ensRegistry"`
	Resolver       string `json:"resolver"`
	RootName       string `json:"rootName"`
	GuardianStore  string `json:"guardianStorage"`
	LedgerHeight   uint64 `json:"ledgerHeight"`
}

func printSystem(sys *infra.System) error {
	owner, err := sys.Factory.Owner()
	if err != nil {
		return err
	}
	info := systemInfo{
		Factory:        sys.Factory.Address().Hex(),
		Owner:          owner.Hex(),
		Implementation: sys.Template.Implementation().Hex(),
		ModuleRegistry: sys.Factory.ModuleRegistry().Address().Hex(),
		ENSManager:     sys.Factory.NamingService().Address().Hex(),
		ENSRegistry:    sys.ENSRegistry.Address().Hex(),
		Resolver:       sys.Resolver.Address().Hex(),
		RootName:       sys.Naming.RootName(),
		GuardianStore:  "-",
		LedgerHeight:   sys.Ledger.BlockNumber(),
	}
	if store := sys.Factory.GuardianStore(); store != nil {
		info.GuardianStore = store.Address().Hex()
	}
	if config.JSONOutput {
		return appUI.JSON(info)
	}
	appUI.Section("Wallet factory")
	appUI.KeyValue([][2]string{
		{"Factory", info.Factory},
		{"Owner", info.Owner},
		{"Implementation", info.Implementation},
		{"Module registry", info.ModuleRegistry},
		{"ENS manager", info.ENSManager},
		{"ENS registry", info.ENSRegistry},
		{"Resolver", info.Resolver},
		{"Root name", info.RootName},
		{"Guardian storage", info.GuardianStore},
		{"Ledger height", fmt.Sprintf("%d", info.LedgerHeight)},
	})
	return nil
}

var factoryCmd = &cobra.Command{
	Use:   "factory",
	Short: "Inspect and administer the wallet factory",
}

var factoryInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the factory and the contracts it works with",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSystem(printSystem)
	},
}

// adminCommand builds a factory subcommand taking one address argument that
// only the factory owner may run.
func adminCommand(use, short string, run func(sys *infra.System, caller, target common.Address) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <address>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := callerAddress()
			if err != nil {
				return err
			}
			target, err := wfcommon.ParseAddress(args[0])
			if err != nil {
				return err
			}
			return withSystem(func(sys *infra.System) error {
				if !appUI.Confirm(fmt.Sprintf("%s: %s?", short, target.Hex()), true) {
					appUI.Warn("Aborted")
					return nil
				}
				if err := run(sys, caller, target); err != nil {
					return err
				}
				appUI.Success("%s: %s", short, target.Hex())
				return nil
			})
		},
	}
}

func init() {
	factoryCmd.AddCommand(
		factoryInfoCmd,
		adminCommand("set-registry", "Change the module registry", func(sys *infra.System, caller, target common.Address) error {
			return sys.Factory.ChangeModuleRegistry(caller, modules.At(target))
		}),
		adminCommand("set-ens", "Change the ENS manager", func(sys *infra.System, caller, target common.Address) error {
			var naming *ens.Manager
			err := sys.Ledger.View(func(st *ledger.State) error {
				var err error
				naming, err = ens.LoadManager(st, target)
				return err
			})
			if err != nil {
				return err
			}
			return sys.Factory.ChangeENSManager(caller, naming)
		}),
		adminCommand("set-guardian-storage", "Change the guardian storage", func(sys *infra.System, caller, target common.Address) error {
			return sys.Factory.ChangeGuardianStorage(caller, guardians.At(target, sys.Template))
		}),
		adminCommand("add-manager", "Allow an address to create wallets", func(sys *infra.System, caller, target common.Address) error {
			return sys.Factory.AddManager(caller, target)
		}),
		adminCommand("revoke-manager", "Stop an address from creating wallets", func(sys *infra.System, caller, target common.Address) error {
			return sys.Factory.RevokeManager(caller, target)
		}),
		adminCommand("change-owner", "Hand the factory over to a new owner", func(sys *infra.System, caller, target common.Address) error {
			return sys.Factory.ChangeOwner(caller, target)
		}),
	)
	rootCmd.AddCommand(factoryCmd)
}
