package cmd

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	wfcommon "github.com/tranvictor/walletfactory/common"
	"github.com/tranvictor/walletfactory/config"
	"github.com/tranvictor/walletfactory/ens"
	"github.com/tranvictor/walletfactory/infra"
	"github.com/tranvictor/walletfactory/ledger"
)

type walletInfo struct {
	Address   string   `json:"address"`
	Name      string   `json:"name,omitempty"`
	Owner     string   `json:"owner"`
	Modules   []string `json:"modules"`
	Guardians []string `json:"guardians,omitempty"`
	Balance   string   `json:"balance"`
}

func loadWallet(sys *infra.System, addr common.Address) (*walletInfo, error) {
	info := &walletInfo{Address: addr.Hex()}
	err := sys.Ledger.View(func(st *ledger.State) error {
		owner, err := sys.Template.Owner(st, addr)
		if err != nil {
			return err
		}
		info.Owner = owner.Hex()
		mods, err := sys.Template.Modules(st, addr)
		if err != nil {
			return err
		}
		for _, m := range mods {
			desc := m.Hex()
			if reg, found, err := sys.Modules.ModuleInfo(st, m); err != nil {
				return err
			} else if found {
				desc = fmt.Sprintf("%s (%s)", desc, reg.Name)
			}
			info.Modules = append(info.Modules, desc)
		}
		if sys.Guardians != nil {
			gs, err := sys.Guardians.Guardians(st, addr)
			if err != nil {
				return err
			}
			for _, g := range gs {
				info.Guardians = append(info.Guardians, g.Hex())
			}
		}
		balance, err := st.Balance(addr)
		if err != nil {
			return err
		}
		info.Balance = wfcommon.FormatEther(balance)
		info.Name, err = sys.Naming.ReverseName(st, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func printWallet(sys *infra.System, addr common.Address) error {
	info, err := loadWallet(sys, addr)
	if err != nil {
		return err
	}
	if config.JSONOutput {
		return appUI.JSON(info)
	}
	showWallet(info)
	return nil
}

// loadWallets reads the wallets concurrently and keeps their order.
func loadWallets(sys *infra.System, addrs []common.Address) ([]*walletInfo, error) {
	infos := make([]*walletInfo, len(addrs))
	funcs := make([]func() error, len(addrs))
	for i, addr := range addrs {
		funcs[i] = func() error {
			info, err := loadWallet(sys, addr)
			if err != nil {
				return fmt.Errorf("%s: %w", addr.Hex(), err)
			}
			infos[i] = info
			return nil
		}
	}
	if err, failed := wfcommon.RunParallel(funcs...); failed > 0 {
		return nil, err
	}
	return infos, nil
}

func showWallet(info *walletInfo) {
	name := info.Name
	if name == "" {
		name = "-"
	}
	guardians := "-"
	if len(info.Guardians) > 0 {
		guardians = strings.Join(info.Guardians, ", ")
	}
	appUI.Section("Wallet")
	appUI.KeyValue([][2]string{
		{"Address", info.Address},
		{"Name", name},
		{"Owner", info.Owner},
		{"Guardians", guardians},
		{"Balance", info.Balance},
	})
	appUI.Info("Modules:")
	mods := appUI.Indent()
	for i, m := range info.Modules {
		mods.Info("%d. %s", i+1, m)
	}
}

var walletCmd = &cobra.Command{
	Use:   "wallet <address or label>...",
	Short: "Show one or more wallets",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSystem(func(sys *infra.System) error {
			addrs := make([]common.Address, len(args))
			for i, arg := range args {
				addr, err := walletAddress(sys, arg)
				if err != nil {
					return err
				}
				addrs[i] = addr
			}
			infos, err := loadWallets(sys, addrs)
			if err != nil {
				return err
			}
			if config.JSONOutput {
				if len(infos) == 1 {
					return appUI.JSON(infos[0])
				}
				return appUI.JSON(infos)
			}
			for _, info := range infos {
				showWallet(info)
			}
			return nil
		})
	},
}

// walletAddress accepts an address or a label under the root name.
func walletAddress(sys *infra.System, input string) (common.Address, error) {
	if common.IsHexAddress(strings.TrimSpace(input)) {
		return common.HexToAddress(strings.TrimSpace(input)), nil
	}
	label := strings.TrimSuffix(ens.Normalize(input), "."+sys.Naming.RootName())
	var addr common.Address
	err := sys.Ledger.View(func(st *ledger.State) error {
		var err error
		addr, err = sys.Naming.Resolve(st, label)
		return err
	})
	if err != nil {
		return addr, err
	}
	if addr == (common.Address{}) {
		return addr, fmt.Errorf("%s does not resolve to a wallet", sys.Naming.FullName(label))
	}
	return addr, nil
}

func init() {
	rootCmd.AddCommand(walletCmd)
}
