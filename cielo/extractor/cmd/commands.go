package main

import (
	"github.com/Laperavee/Cielo-API/cielo/conf"
	"github.com/Laperavee/Cielo-API/cielo/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries what every command needs once flags and config files are resolved.
type app struct {
	v      *viper.Viper
	conf   conf.Conf
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: conf.NewViper()}
	var configFile string

	root := &cobra.Command{
		Use:           "extractor",
		Short:         "Explore the related-wallets graph of an account on Cielo",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.ReadFile(a.v, configFile); err != nil {
				return err
			}
			a.conf = conf.FromViper(a.v)
			a.logger = logging.New("extractor", a.conf.LogLevel, a.conf.PrettyLogs)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, json, toml or .env)")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("api-url", "", "related-wallets API base URL")
	flags.String("token-file", "", "bearer token cache file")
	_ = a.v.BindPFlag(conf.KeyLogLevel, flags.Lookup("log-level"))
	_ = a.v.BindPFlag(conf.KeyAPIURL, flags.Lookup("api-url"))
	_ = a.v.BindPFlag(conf.KeyTokenFile, flags.Lookup("token-file"))

	root.AddCommand(
		newCrawlCmd(a),
		newProbeCmd(a),
		newTokenCmd(a),
	)
	return root
}
