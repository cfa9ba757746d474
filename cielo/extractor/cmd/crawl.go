package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Laperavee/Cielo-API/cielo/conf"
	"github.com/Laperavee/Cielo-API/cielo/crawler"
	"github.com/Laperavee/Cielo-API/cielo/graph"
	"github.com/Laperavee/Cielo-API/cielo/neo4jsink"
	"github.com/Laperavee/Cielo-API/cielo/publish"
	"github.com/Laperavee/Cielo-API/cielo/relations"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type crawlOptions struct {
	out   string
	kafka bool
	neo4j bool
}

func newCrawlCmd(a *app) *cobra.Command {
	var opts crawlOptions

	cmd := &cobra.Command{
		Use:   "crawl [address...]",
		Short: "Crawl the related-wallets graph around one or more wallets",
		Long: `Crawl fetches the related wallets of each root address, keeps the strongest
relations and follows them up to --depth levels. Each graph is written as one JSON line.
Without arguments the root address is read from standard input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCrawl(cmd.Context(), args, opts)
		},
	}

	flags := cmd.Flags()
	flags.Int("depth", 3, "maximum crawl depth, the root being level 1")
	flags.Int("max-edges", graph.DefaultMaxEdges, "edges kept per wallet, overflow edge included")
	flags.Float64("threshold", graph.DefaultThreshold, "minimum in+out volume of a kept relation")
	flags.Int("workers", 4, "concurrent relation fetches")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address")
	flags.StringVarP(&opts.out, "out", "o", "-", "file receiving the graphs, - for stdout")
	flags.BoolVar(&opts.kafka, "kafka", false, "publish edges and vertices to kafka")
	flags.BoolVar(&opts.neo4j, "neo4j", false, "write edges to neo4j")

	_ = a.v.BindPFlag(conf.KeyMaxDepth, flags.Lookup("depth"))
	_ = a.v.BindPFlag(conf.KeyMaxEdges, flags.Lookup("max-edges"))
	_ = a.v.BindPFlag(conf.KeyThreshold, flags.Lookup("threshold"))
	_ = a.v.BindPFlag(conf.KeyWorkers, flags.Lookup("workers"))
	_ = a.v.BindPFlag(conf.KeyMetricsAddr, flags.Lookup("metrics-addr"))

	return cmd
}

// crawlRecord is one line of the crawl output.
type crawlRecord struct {
	CrawlID   string       `json:"crawl_id"`
	CrawledAt time.Time    `json:"crawled_at"`
	Graph     *graph.Graph `json:"graph"`
}

func (a *app) runCrawl(ctx context.Context, args []string, opts crawlOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	roots := args
	if len(roots) == 0 {
		root, err := promptAddress(os.Stdin, os.Stderr)
		if err != nil {
			return err
		}
		roots = []string{root}
	}

	if a.conf.MetricsAddr != "" {
		go serveMetrics(a.conf.MetricsAddr, a.logger)
	}

	sess, err := newSession(a.conf, a.logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	cache := relations.NewCache(sess.client, a.conf.CacheTTL)
	defer cache.Stop()

	c := crawler.New(cache, a.logger,
		crawler.WithMaxEdges(a.conf.MaxEdges),
		crawler.WithThreshold(a.conf.Threshold),
		crawler.WithWorkers(a.conf.Workers),
	)

	out, closeOut, err := openOutput(opts.out)
	if err != nil {
		return err
	}
	defer closeOut()
	enc := json.NewEncoder(out)

	var producer *publish.Producer
	if opts.kafka {
		producer, err = publish.NewProducer(a.conf.KafkaBrokers, a.conf.EdgesTopic, a.conf.VerticesTopic, a.logger)
		if err != nil {
			return err
		}
		defer producer.Close()
	}

	var sink *neo4jsink.Sink
	if opts.neo4j {
		sink, err = neo4jsink.New(ctx, a.conf.Neo4jURI, a.conf.Neo4jUser, a.conf.Neo4jPassword, a.conf.Neo4jDatabase, a.logger)
		if err != nil {
			return err
		}
		defer sink.Close(context.Background())
	}

	for _, root := range roots {
		record := crawlRecord{CrawlID: uuid.NewString(), CrawledAt: time.Now().UTC()}
		logger := a.logger.With().Str("crawl_id", record.CrawlID).Logger()

		g, crawlErr := c.Crawl(ctx, root, a.conf.MaxDepth)
		if errors.Is(crawlErr, crawler.ErrInvalidRoot) {
			return crawlErr
		}
		record.Graph = g

		if err := enc.Encode(record); err != nil {
			return errors.Wrap(err, "writing graph")
		}

		if producer != nil {
			if err := producer.PublishGraph(record.CrawlID, g, record.CrawledAt); err != nil {
				logger.Error().Err(err).Msg("publishing graph to kafka")
			}
		}
		if sink != nil {
			edges, _ := publish.Messages(record.CrawlID, g, record.CrawledAt)
			if err := sink.WriteEdges(context.Background(), edges); err != nil {
				logger.Error().Err(err).Msg("writing graph to neo4j")
			}
		}

		if crawlErr != nil {
			logger.Warn().Err(crawlErr).Msg("crawl interrupted, partial graph written")
			return nil
		}
	}
	return nil
}

// promptAddress reads a wallet address from in. The prompt is only shown on a terminal.
func promptAddress(in *os.File, prompt io.Writer) (string, error) {
	if term.IsTerminal(int(in.Fd())) {
		fmt.Fprint(prompt, "Wallet to explore : ")
	}
	return readAddress(in)
}

func readAddress(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrap(err, "reading address")
	}
	address := strings.TrimSpace(line)
	if address == "" {
		return "", errors.Wrap(crawler.ErrInvalidRoot, "no address given")
	}
	return address, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening %s", path)
	}
	return f, func() { f.Close() }, nil
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server stopped")
	}
}
