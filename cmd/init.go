package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tranvictor/walletfactory/config"
	"github.com/tranvictor/walletfactory/infra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Deploy the wallet infrastructure into the data directory",
	Long: `Deploy the module registry, the ENS registry, resolver and manager, the
guardian storage, the wallet template and the factory. The caller becomes the
owner of all of them and the ENS manager is given the root name.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		admin, err := callerAddress()
		if err != nil {
			return err
		}
		root := settings.RootName
		if config.RootName != "" {
			root = config.RootName
		}
		l, closeSession, err := openSession()
		if err != nil {
			return err
		}
		defer func() {
			if cerr := closeSession(); err == nil {
				err = cerr
			}
		}()

		stop := appUI.Spinner("deploying wallet infrastructure")
		sys, err := infra.Deploy(l, admin, infra.Config{
			RootName:               root,
			WithoutGuardianStorage: config.NoGuardianStorage,
		}, factoryOptions()...)
		stop()
		if err != nil {
			return err
		}
		log.Info().
			Str("factory", sys.Factory.Address().Hex()).
			Str("admin", admin.Hex()).
			Str("root", root).
			Msg("infrastructure deployed")
		if !config.JSONOutput {
			appUI.Success("Wallet infrastructure deployed under %s", root)
		}
		return printSystem(sys)
	},
}

func init() {
	initCmd.Flags().StringVar(&config.RootName, "root", "", "ENS domain wallet names are registered under. Defaults to the config file, then argent.xyz")
	initCmd.Flags().BoolVar(&config.NoGuardianStorage, "no-guardian-storage", false, "deploy the factory without a guardian storage")
	rootCmd.AddCommand(initCmd)
}
