package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/Laperavee/Cielo-API/cielo/conf"
	"github.com/Laperavee/Cielo-API/cielo/logging"
	"github.com/Laperavee/Cielo-API/cielo/neo4jsink"
	"github.com/Laperavee/Cielo-API/cielo/publish"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const keyFromStart = "from_start"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := conf.NewViper()
	var configFile string

	cmd := &cobra.Command{
		Use:           "kafkaconsumer",
		Short:         "Load crawled edges from kafka into neo4j",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.ReadFile(v, configFile); err != nil {
				logger := logging.New("kafkaconsumer", v.GetString(conf.KeyLogLevel), v.GetBool(conf.KeyPrettyLogs))
				logger.Error().Err(err).Msg("loading configuration")
				return err
			}
			c := conf.FromViper(v)
			return run(cmd.Context(), c, v.GetBool(keyFromStart), logging.New("kafkaconsumer", c.LogLevel, c.PrettyLogs))
		},
	}

	bindFlags(cmd, v, &configFile)
	return cmd
}

func bindFlags(cmd *cobra.Command, v *viper.Viper, configFile *string) {
	flags := cmd.Flags()
	flags.StringVar(configFile, "config", "", "config file (yaml, json, toml or .env)")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.Bool("from-start", false, "consume the edges topic from the oldest offset")
	_ = v.BindPFlag(conf.KeyLogLevel, flags.Lookup("log-level"))
	_ = v.BindPFlag(keyFromStart, flags.Lookup("from-start"))
}

func startOffset(fromStart bool) int64 {
	if fromStart {
		return sarama.OffsetOldest
	}
	return sarama.OffsetNewest
}

func run(ctx context.Context, c conf.Conf, fromStart bool, logger zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer, err := publish.NewConsumer(c.KafkaBrokers)
	if err != nil {
		logger.Error().Err(err).Msg("creating kafka consumer")
		return err
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Error().Err(err).Msg("closing kafka consumer")
		}
	}()

	sink, err := neo4jsink.New(ctx, c.Neo4jURI, c.Neo4jUser, c.Neo4jPassword, c.Neo4jDatabase, logger)
	if err != nil {
		logger.Error().Err(err).Msg("connecting to neo4j")
		return err
	}
	defer sink.Close(context.Background())

	err = publish.ConsumeEdges(ctx, consumer, c.EdgesTopic, startOffset(fromStart), loader(sink, logger), logger)
	if err != nil {
		logger.Error().Err(err).Msg("consuming edges")
		return errors.Wrap(err, "consuming edges")
	}
	logger.Info().Msg("received termination signal, exiting")
	return nil
}
