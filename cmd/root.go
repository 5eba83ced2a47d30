// Copyright © 2018 Victor Tran
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"errors"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tranvictor/walletfactory/config"
	"github.com/tranvictor/walletfactory/factory"
	"github.com/tranvictor/walletfactory/metrics"
	"github.com/tranvictor/walletfactory/ui"
	"github.com/tranvictor/walletfactory/util/logger"
)

var (
	appUI    ui.UI
	settings *config.Config
	log      = zerolog.Nop()

	promRegistry = prometheus.NewRegistry()
	recorder     factory.Recorder
	influx       *metrics.InfluxRecorder
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "walletfactory",
	Short: "Create smart wallets with deterministic addresses and ENS names",
	Long: `walletfactory deploys and operates a smart wallet factory on a local ledger
kept in the data directory.

A wallet is created for an owner with a set of approved modules and receives
an ENS name <label>.<root name>. The factory can also create wallets
counterfactually: given a salt, the wallet address is known before the wallet
exists so it can be funded in advance.

	1. walletfactory init deploys the module registry, the ENS registry,
	resolver and manager, the guardian storage and the factory.

	2. walletfactory module register approves modules wallets may use.

	3. walletfactory create creates a wallet, optionally with a guardian
	and a salt. walletfactory address computes the address of a wallet
	that does not exist yet.

Settings are read from the file given with --config (yaml or json) and from
WF_ prefixed environment variables, e.g. WF_LOG__LEVEL=debug. Flags win over
both.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: flushMetrics,
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.ConfigFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("datadir") {
		cfg.DataDir = config.DataDir
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = config.LogLevel
	}
	if flags.Changed("console") {
		cfg.Log.Console = config.LogConsole
	}
	if flags.Changed("mqtt-broker") {
		cfg.Events.Broker = config.MQTTBroker
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = config.MetricsTextfile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	settings = cfg

	if log, err = logger.New("walletfactory", logger.Options{
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
	}); err != nil {
		return err
	}
	if appUI == nil {
		appUI = ui.NewTerminalUI(config.AssumeYes)
	}
	if recorder == nil {
		prom, err := metrics.NewPromRecorder(promRegistry)
		if err != nil {
			return err
		}
		recorder = prom
		if cfg.Metrics.Influx.URL != "" {
			influx = metrics.NewInfluxRecorder(cfg.Metrics.Influx, log)
			recorder = metrics.MultiRecorder{prom, influx}
		}
	}
	return nil
}

func flushMetrics(cmd *cobra.Command, args []string) error {
	if influx != nil {
		influx.Close()
		influx = nil
		recorder = nil
	}
	if settings == nil || settings.Metrics.Textfile == "" {
		return nil
	}
	if err := metrics.WriteTextfile(settings.Metrics.Textfile, promRegistry); err != nil {
		log.Warn().Err(err).Str("path", settings.Metrics.Textfile).Msg("writing metrics failed")
		return err
	}
	return nil
}

func reportError(err error) {
	if appUI == nil {
		appUI = ui.NewTerminalUI(false)
	}
	var ferr *factory.Error
	if errors.As(err, &ferr) {
		appUI.Error("%s rejected: %s", ferr.Code(), ferr)
		return
	}
	appUI.Error("%s", err)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&config.ConfigFile, "config", "c", "", "config file (yaml or json)")
	pf.StringVarP(&config.DataDir, "datadir", "d", config.DefaultDataDir(), "directory holding the ledger")
	pf.StringVar(&config.LogLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	pf.BoolVar(&config.LogConsole, "console", false, "human readable logs instead of json")
	pf.BoolVarP(&config.AssumeYes, "yes", "y", false, "answer yes to every confirmation")
	pf.BoolVar(&config.JSONOutput, "json", false, "print results as json")
	pf.StringVarP(&config.From, "from", "f", "", "address acting as the caller. Defaults to the admin in the config file")
	pf.StringVar(&config.MQTTBroker, "mqtt-broker", "", "publish committed events to this MQTT broker, e.g. tcp://localhost:1883")
	pf.StringVar(&config.MetricsTextfile, "metrics-textfile", "", "write prometheus counters to this file after the command")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}
