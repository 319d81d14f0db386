package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"textingest/internal/domain"
)

// Config is the run-wide configuration. It is built once from the
// environment and passed explicitly to whatever needs it.
type Config struct {
	Queue         domain.QueueConnection
	QueueEncoding string // "json" | "msgpack"
	Repository    domain.RepositoryConnection
	SinkTimeout   time.Duration
	Buffer        int
	HistoryDB     string // empty disables run history
	LogLevel      string
	LogFormat     string // "console" | "json"
}

// Defaults.
const (
	DefaultMongoDatabase = "mydb"
	DefaultSinkTimeout   = 10 * time.Second
	DefaultBuffer        = 64
)

// Load reads the optional .env files then the process environment.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from a lookup function such as os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := Config{
		Queue: domain.QueueConnection{
			Addr:     get("AMQP_ADDR", ""),
			Exchange: get("AMQP_EXCHANGE", ""),
		},
		QueueEncoding: strings.ToLower(get("QUEUE_ENCODING", "json")),
		Repository: domain.RepositoryConnection{
			Driver:   domain.RepositoryDriver(strings.ToLower(get("REPOSITORY_DRIVER", string(domain.RepositoryDriverMongoDB)))),
			URI:      get("MONGODB_URI", ""),
			Database: get("MONGODB_DATABASE", DefaultMongoDatabase),
			DSN:      get("REPOSITORY_DSN", ""),
		},
		LogLevel:  strings.ToLower(get("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(get("LOG_FORMAT", "console")),
	}

	switch cfg.QueueEncoding {
	case "json", "msgpack":
	default:
		return Config{}, fmt.Errorf("QUEUE_ENCODING: unsupported value %q", cfg.QueueEncoding)
	}

	switch cfg.Repository.Driver {
	case domain.RepositoryDriverMongoDB, domain.RepositoryDriverPostgres,
		domain.RepositoryDriverMySQL, domain.RepositoryDriverSQLite:
	default:
		return Config{}, fmt.Errorf("REPOSITORY_DRIVER: unsupported driver %q", cfg.Repository.Driver)
	}

	timeout, err := time.ParseDuration(get("SINK_TIMEOUT", DefaultSinkTimeout.String()))
	if err != nil || timeout < 0 {
		return Config{}, fmt.Errorf("SINK_TIMEOUT: invalid duration %q", get("SINK_TIMEOUT", ""))
	}
	cfg.SinkTimeout = timeout

	buffer, err := strconv.Atoi(get("INGEST_BUFFER", strconv.Itoa(DefaultBuffer)))
	if err != nil || buffer < 1 {
		return Config{}, fmt.Errorf("INGEST_BUFFER: expected a positive integer, got %q", get("INGEST_BUFFER", ""))
	}
	cfg.Buffer = buffer

	switch history := get("HISTORY_DB", ""); strings.ToLower(history) {
	case "off", "none", "false", "0":
		cfg.HistoryDB = ""
	case "":
		cfg.HistoryDB = defaultHistoryPath()
	default:
		cfg.HistoryDB = history
	}

	switch cfg.LogFormat {
	case "console", "json":
	default:
		return Config{}, fmt.Errorf("LOG_FORMAT: unsupported value %q", cfg.LogFormat)
	}
	return cfg, nil
}

func defaultHistoryPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return ""
	}
	return filepath.Join(homeDir, ".local", "share", "textingest", "history.db")
}
