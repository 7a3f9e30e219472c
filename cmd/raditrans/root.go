package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cflux/raditrans/config"
)

var (
	configFile string
	verbose    bool

	// cfg holds the parsed configuration for the duration of the command,
	// following the teacher's persistent-global-Config pattern
	// (inmap/cmd/root.go's Config).
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "raditrans",
	Short: "A Monte Carlo radiative transfer engine.",
	Long: "raditrans follows discrete energy packets emitted by sources through an\n" +
		"absorbing and scattering medium, depositing and re-emitting energy until\n" +
		"they escape or fall below a luminosity threshold, and records the escaping\n" +
		"radiation at configurable observers.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
		var err error
		cfg, err = config.Load(configFile)
		return err
	},
}

func init() {
	flags := pflag.NewFlagSet("raditrans", pflag.ExitOnError)
	rootCmd.PersistentFlags().AddFlagSet(flags)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "raditrans.toml", "configuration file location")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.AddCommand(runCmd)
}
