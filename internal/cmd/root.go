// Package cmd wires the command-line surface. The install command carries
// the whole flow; uninstall, status and version are its small counterparts.
package cmd

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var log = logrus.New()

var (
	logLevel string
	logFile  string
)

var rootCmd = &cobra.Command{
	Use:           "auto-beeper-install",
	Short:         "Install and register the Beeper Automations service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLog(logLevel, logFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "console", "log destination, console or a file path")

	viper.SetEnvPrefix("AUTO_BEEPER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func initLog(level, file string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)

	if file != "" && file != "console" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		})
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	} else {
		log.SetOutput(os.Stderr)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// Execute runs the root command. A non-nil return means the process should
// exit 1; the error has already been logged.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		log.Error(err)
	}
	return err
}
