package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "gateway",
		Short:         "Branching lesson engine API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cfgFile == "" {
				return nil
			}
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return errors.Wrapf(err, "read config %s", cfgFile)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	flags.String("db-driver", "sqlite", "database driver: sqlite or postgres")
	flags.String("db-dsn", "", "database DSN")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")
	_ = v.BindPFlag("db.driver", flags.Lookup("db-driver"))
	_ = v.BindPFlag("db.dsn", flags.Lookup("db-dsn"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))

	root.AddCommand(newServeCmd(v), newMigrateCmd(v))
	return root
}
