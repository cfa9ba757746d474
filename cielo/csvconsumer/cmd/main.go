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
	"github.com/Laperavee/Cielo-API/cielo/publish"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const keyCSVDir = "csv_dir"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := conf.NewViper()
	v.SetDefault(keyCSVDir, ".")
	var configFile string

	cmd := &cobra.Command{
		Use:           "csvconsumer",
		Short:         "Write crawled edges from kafka into rolling csv files",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.ReadFile(v, configFile); err != nil {
				logger := logging.New("csvconsumer", v.GetString(conf.KeyLogLevel), v.GetBool(conf.KeyPrettyLogs))
				logger.Error().Err(err).Msg("loading configuration")
				return err
			}
			c := conf.FromViper(v)
			return run(cmd.Context(), c, v.GetString(keyCSVDir), logging.New("csvconsumer", c.LogLevel, c.PrettyLogs))
		},
	}

	bindFlags(cmd, v, &configFile)
	return cmd
}

func bindFlags(cmd *cobra.Command, v *viper.Viper, configFile *string) {
	flags := cmd.Flags()
	flags.StringVar(configFile, "config", "", "config file (yaml, json, toml or .env)")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("dir", ".", "directory receiving the csv files")
	flags.String("prefix", "edges", "csv file name prefix")
	flags.Int("batch-size", 1000000, "edges per csv file")
	_ = v.BindPFlag(conf.KeyLogLevel, flags.Lookup("log-level"))
	_ = v.BindPFlag(keyCSVDir, flags.Lookup("dir"))
	_ = v.BindPFlag(conf.KeyCSVFilePrefix, flags.Lookup("prefix"))
	_ = v.BindPFlag(conf.KeyCSVBatchSize, flags.Lookup("batch-size"))
}

func run(ctx context.Context, c conf.Conf, dir string, logger zerolog.Logger) error {
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

	writer := newRollingWriter(dir, c.CSVFilePrefix, c.CSVBatchSize, logger)
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error().Err(err).Msg("closing csv writer")
		}
	}()

	err = publish.ConsumeEdges(ctx, consumer, c.EdgesTopic, sarama.OffsetOldest, func(_ context.Context, edge publish.GraphEdge) error {
		return writer.Write(edge)
	}, logger)
	if err != nil {
		logger.Error().Err(err).Msg("consuming edges")
		return errors.Wrap(err, "consuming edges")
	}
	logger.Info().Msg("received termination signal, exiting")
	return nil
}
