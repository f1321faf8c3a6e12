package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	loadDotenv()
	conf := configFromEnv()

	root := &cobra.Command{
		Use:           "leadsvc",
		Short:         "Lead management service: REST API & csv import",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&conf.DBDriver, "db-driver", conf.DBDriver, "storage backend: memory, postgres or sqlite3")
	flags.StringVar(&conf.DatabaseURL, "database-url", conf.DatabaseURL, "dsn for postgres or sqlite3")
	flags.StringVar(&conf.LogLevel, "log-level", conf.LogLevel, "logrus level")
	flags.StringVar(&conf.LogFormat, "log-format", conf.LogFormat, "text or json")

	root.AddCommand(
		newServeCmd(&conf),
		newMigrateCmd(&conf),
		newImportCmd(),
	)
	return root
}
