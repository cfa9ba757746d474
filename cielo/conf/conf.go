package conf

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Keys understood by the extractor and the consumers. Every key can also be set from the
// environment as CIELO_<KEY>.
const (
	KeyAPIURL            = "api_url"
	KeyTokenStore        = "token_store"
	KeyTokenFile         = "token_file"
	KeyTokenDB           = "token_db"
	KeyRenewCommand      = "renew_command"
	KeyUntrackableMarker = "untrackable_marker"
	KeyRequestTimeout    = "request_timeout"
	KeyRequestsPerSecond = "requests_per_second"
	KeyMaxDepth          = "max_depth"
	KeyMaxEdges          = "max_edges"
	KeyThreshold         = "threshold"
	KeyWorkers           = "workers"
	KeyCacheTTL          = "cache_ttl"
	KeyLogLevel          = "log_level"
	KeyPrettyLogs        = "pretty_logs"
	KeyKafkaBroker       = "kafka_broker_address"
	KeyEdgesTopic        = "edges_topic"
	KeyVerticesTopic     = "vertices_topic"
	KeyNeo4jURI          = "neo4j_uri"
	KeyNeo4jUser         = "neo4j_user"
	KeyNeo4jPassword     = "neo4j_password"
	KeyNeo4jDatabase     = "neo4j_database"
	KeyCSVFilePrefix     = "csv_file_prefix"
	KeyCSVBatchSize      = "csv_batch_size"
	KeyMetricsAddr       = "metrics_addr"
)

type Conf struct {
	APIURL            string
	TokenStore        string
	TokenFile         string
	TokenDB           string
	RenewCommand      []string
	UntrackableMarker string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	MaxDepth          int
	MaxEdges          int
	Threshold         float64
	Workers           int
	CacheTTL          time.Duration
	LogLevel          string
	PrettyLogs        bool
	KafkaBrokers      []string
	EdgesTopic        string
	VerticesTopic     string
	Neo4jURI          string
	Neo4jUser         string
	Neo4jPassword     string
	Neo4jDatabase     string
	CSVFilePrefix     string
	CSVBatchSize      int
	MetricsAddr       string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAPIURL, "https://feed-api.cielo.finance/v1/")
	v.SetDefault(KeyTokenStore, "file")
	v.SetDefault(KeyTokenFile, "bearer_token.json")
	v.SetDefault(KeyTokenDB, "cielo.db")
	v.SetDefault(KeyRenewCommand, "")
	v.SetDefault(KeyUntrackableMarker, "too many transactions")
	v.SetDefault(KeyRequestTimeout, 30*time.Second)
	v.SetDefault(KeyRequestsPerSecond, 5.0)
	v.SetDefault(KeyMaxDepth, 3)
	v.SetDefault(KeyMaxEdges, 8)
	v.SetDefault(KeyThreshold, 50.0)
	v.SetDefault(KeyWorkers, 4)
	v.SetDefault(KeyCacheTTL, 10*time.Minute)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyPrettyLogs, true)
	v.SetDefault(KeyKafkaBroker, "localhost:9092")
	v.SetDefault(KeyEdgesTopic, "cielo.relations.edges")
	v.SetDefault(KeyVerticesTopic, "cielo.relations.vertices")
	v.SetDefault(KeyNeo4jURI, "neo4j://localhost")
	v.SetDefault(KeyNeo4jUser, "neo4j")
	v.SetDefault(KeyNeo4jPassword, "neo4j.admin")
	v.SetDefault(KeyNeo4jDatabase, "cielo")
	v.SetDefault(KeyCSVFilePrefix, "edges")
	v.SetDefault(KeyCSVBatchSize, 1000000)
	v.SetDefault(KeyMetricsAddr, "")
}

// NewViper returns a viper instance with defaults and CIELO_ environment lookup.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("cielo")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile merges a config file into v. A .env file is loaded into the process environment
// instead, where it is picked up through the CIELO_ prefix without overriding real variables.
func ReadFile(v *viper.Viper, file string) error {
	if file == "" {
		return nil
	}

	if filepath.Ext(file) == ".env" {
		if err := godotenv.Load(file); err != nil {
			return errors.Wrapf(err, "loading env file %s", file)
		}
		return nil
	}

	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "reading config file %s", file)
	}
	return nil
}

func FromViper(v *viper.Viper) Conf {
	return Conf{
		APIURL:            v.GetString(KeyAPIURL),
		TokenStore:        strings.ToLower(v.GetString(KeyTokenStore)),
		TokenFile:         v.GetString(KeyTokenFile),
		TokenDB:           v.GetString(KeyTokenDB),
		RenewCommand:      strings.Fields(v.GetString(KeyRenewCommand)),
		UntrackableMarker: v.GetString(KeyUntrackableMarker),
		RequestTimeout:    v.GetDuration(KeyRequestTimeout),
		RequestsPerSecond: v.GetFloat64(KeyRequestsPerSecond),
		MaxDepth:          v.GetInt(KeyMaxDepth),
		MaxEdges:          v.GetInt(KeyMaxEdges),
		Threshold:         v.GetFloat64(KeyThreshold),
		Workers:           v.GetInt(KeyWorkers),
		CacheTTL:          v.GetDuration(KeyCacheTTL),
		LogLevel:          v.GetString(KeyLogLevel),
		PrettyLogs:        v.GetBool(KeyPrettyLogs),
		KafkaBrokers:      splitList(v.GetString(KeyKafkaBroker)),
		EdgesTopic:        v.GetString(KeyEdgesTopic),
		VerticesTopic:     v.GetString(KeyVerticesTopic),
		Neo4jURI:          v.GetString(KeyNeo4jURI),
		Neo4jUser:         v.GetString(KeyNeo4jUser),
		Neo4jPassword:     v.GetString(KeyNeo4jPassword),
		Neo4jDatabase:     v.GetString(KeyNeo4jDatabase),
		CSVFilePrefix:     v.GetString(KeyCSVFilePrefix),
		CSVBatchSize:      v.GetInt(KeyCSVBatchSize),
		MetricsAddr:       v.GetString(KeyMetricsAddr),
	}
}

// Load builds a Conf from defaults, the environment and an optional file.
func Load(file string) (Conf, error) {
	v := NewViper()
	if err := ReadFile(v, file); err != nil {
		return Conf{}, err
	}
	return FromViper(v), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
