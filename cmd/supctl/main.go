package main

import (
	"fmt"
	"os"
	"path"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"supctl/cmd/supctl/command"
	"supctl/version"
)

var (
	binCleanName = path.Base(os.Args[0])
	versionMsg   = fmt.Sprintf("%v version \"%s (%s)\" %s\n", binCleanName, version.Version, version.GitHash, version.BuildDate)
	rootCmd      = &cobra.Command{
		Use:           binCleanName,
		Short:         "Supervisor control gateway and its command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			command.InitViper()
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: fmt.Sprintf("Prints the version of %s", binCleanName),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(versionMsg)
		},
	}
)

func init() {
	rootCmd.AddCommand(
		versionCmd,
		command.NewRunCommand(),
		command.NewSvcCommand(),
	)
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a TOML configuration file")
	rootCmd.PersistentFlags().String("auth-key", "", "ctl gateway secret")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")

	viper.BindPFlag(command.KeyConfig, rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag(command.KeyAuthKey, rootCmd.PersistentFlags().Lookup("auth-key"))
	viper.BindPFlag(command.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("supctl failed")
		os.Exit(1)
	}
}
