// Package config loads process configuration from the environment, with an
// optional .env file for development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Market struct {
	BaseAsset    string
	QuoteAsset   string
	FeeBps       int64
	FeeRecipient string
}

type Kafka struct {
	Brokers       []string
	AuditTopic    string
	TicksTopic    string
	DrainInterval time.Duration
}

type Config struct {
	ListenAddr       string
	DataDir          string
	Market           Market
	Kafka            Kafka
	SnapshotInterval time.Duration
	WALSegmentSize   int64
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		DataDir:    "./data",
		Market: Market{
			BaseAsset:    "BTC",
			QuoteAsset:   "USD",
			FeeBps:       30,
			FeeRecipient: "fee-pool",
		},
		Kafka: Kafka{
			Brokers:       []string{"localhost:9092"},
			AuditTopic:    "matchd.audit",
			TicksTopic:    "matchd.ticks",
			DrainInterval: 250 * time.Millisecond,
		},
		SnapshotInterval: 30 * time.Second,
		WALSegmentSize:   2 << 20,
	}
}

// Load reads .env if present, then applies environment overrides.
// Precedence: environment > .env > defaults.
func Load() Config {
	cfg := Default()
	_ = godotenv.Load()

	setString(&cfg.ListenAddr, "MATCHD_LISTEN_ADDR")
	setString(&cfg.DataDir, "MATCHD_DATA_DIR")
	setString(&cfg.Market.BaseAsset, "MATCHD_BASE_ASSET")
	setString(&cfg.Market.QuoteAsset, "MATCHD_QUOTE_ASSET")
	setString(&cfg.Market.FeeRecipient, "MATCHD_FEE_RECIPIENT")
	setInt64(&cfg.Market.FeeBps, "MATCHD_FEE_BPS")
	setString(&cfg.Kafka.AuditTopic, "MATCHD_KAFKA_AUDIT_TOPIC")
	setString(&cfg.Kafka.TicksTopic, "MATCHD_KAFKA_TICKS_TOPIC")
	setDuration(&cfg.Kafka.DrainInterval, "MATCHD_KAFKA_DRAIN_INTERVAL")
	setDuration(&cfg.SnapshotInterval, "MATCHD_SNAPSHOT_INTERVAL")
	setInt64(&cfg.WALSegmentSize, "MATCHD_WAL_SEGMENT_SIZE")

	if v := os.Getenv("MATCHD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}

	return cfg
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
