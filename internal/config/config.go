// Package config loads server and client settings. Values come from
// built-in defaults, then an optional YAML file named by CONFIG_FILE, then
// environment variables, which win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment names.
const (
	Development = "development"
	Staging     = "staging"
	Production  = "production"
)

// Server holds the flow server settings.
type Server struct {
	Address     string `yaml:"address" validate:"required"`
	Environment string `yaml:"environment" validate:"oneof=development staging production"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	StorageBackend string `yaml:"storage_backend" validate:"oneof=file sqlite badger redis dynamodb"`
	DataDir        string `yaml:"data_dir" validate:"required_if=StorageBackend file"`
	SQLitePath     string `yaml:"sqlite_path" validate:"required_if=StorageBackend sqlite"`
	BadgerPath     string `yaml:"badger_path"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisKey       string `yaml:"redis_key"`
	DynamoDBTable  string `yaml:"dynamodb_table" validate:"required_if=StorageBackend dynamodb"`
	AWSRegion      string `yaml:"aws_region"`
	WatchFlowFile  bool   `yaml:"watch_flow_file"`

	Fanout       string `yaml:"fanout" validate:"oneof=local redis"`
	RedisChannel string `yaml:"redis_channel"`
	EventBusName string `yaml:"event_bus_name"`

	MaxBodyBytes    int64         `yaml:"max_body_bytes" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	StaticDir       string        `yaml:"static_dir"`
	CORSOrigins     []string      `yaml:"cors_origins"`

	EnableMetrics bool   `yaml:"enable_metrics"`
	EnableTracing bool   `yaml:"enable_tracing"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
}

// Client holds the editor client settings.
type Client struct {
	ServerURL          string        `yaml:"server_url" validate:"required,url"`
	ClientID           string        `yaml:"client_id"`
	LogLevel           string        `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	SaveDelay          time.Duration `yaml:"save_delay" validate:"gt=0"`
	ReconnectDelay     time.Duration `yaml:"reconnect_delay" validate:"gt=0"`
	RemoteHintDuration time.Duration `yaml:"remote_hint_duration" validate:"gt=0"`
	HistorySize        int           `yaml:"history_size" validate:"min=1"`
	DisableSync        bool          `yaml:"disable_sync"`
}

type file struct {
	Server *Server `yaml:"server"`
	Client *Client `yaml:"client"`
}

// DefaultServer returns the server defaults.
func DefaultServer() Server {
	return Server{
		Address:         ":3000",
		Environment:     Development,
		StorageBackend:  "file",
		DataDir:         "./data",
		SQLitePath:      "./data/flow.db",
		BadgerPath:      "./data/badger",
		RedisAddr:       "localhost:6379",
		RedisKey:        "gameflow:flow",
		AWSRegion:       "us-east-1",
		Fanout:          "local",
		RedisChannel:    "gameflow:updates",
		MaxBodyBytes:    2 << 20,
		ShutdownTimeout: 10 * time.Second,
		WatchFlowFile:   true,
	}
}

// DefaultClient returns the client defaults.
func DefaultClient() Client {
	return Client{
		ServerURL:          "http://localhost:3000",
		SaveDelay:          400 * time.Millisecond,
		ReconnectDelay:     3 * time.Second,
		RemoteHintDuration: 3 * time.Second,
		HistorySize:        30,
	}
}

// LoadServer builds the server configuration.
func LoadServer() (*Server, error) {
	cfg := DefaultServer()
	if err := overlayFile(&file{Server: &cfg}); err != nil {
		return nil, err
	}

	cfg.Address = getEnv("SERVER_ADDRESS", cfg.Address)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("SERVER_ADDRESS") == "" {
		cfg.Address = ":" + port
	}
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.StorageBackend = getEnv("STORAGE_BACKEND", cfg.StorageBackend)
	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
	cfg.BadgerPath = getEnv("BADGER_PATH", cfg.BadgerPath)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisKey = getEnv("REDIS_KEY", cfg.RedisKey)
	cfg.DynamoDBTable = getEnv("DYNAMODB_TABLE", cfg.DynamoDBTable)
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.WatchFlowFile = getEnvBool("WATCH_FLOW_FILE", cfg.WatchFlowFile)
	cfg.Fanout = getEnv("FANOUT", cfg.Fanout)
	cfg.RedisChannel = getEnv("REDIS_CHANNEL", cfg.RedisChannel)
	cfg.EventBusName = getEnv("EVENT_BUS_NAME", cfg.EventBusName)
	cfg.MaxBodyBytes = int64(getEnvInt("MAX_BODY_BYTES", int(cfg.MaxBodyBytes)))
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.StaticDir = getEnv("STATIC_DIR", cfg.StaticDir)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.EnableMetrics = getEnvBool("ENABLE_METRICS", cfg.EnableMetrics)
	cfg.EnableTracing = getEnvBool("ENABLE_TRACING", cfg.EnableTracing)
	cfg.OTLPEndpoint = getEnv("OTLP_ENDPOINT", cfg.OTLPEndpoint)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the server configuration.
func (c *Server) Validate() error {
	return validateStruct(c)
}

// IsProduction reports whether the server runs in production.
func (c *Server) IsProduction() bool {
	return c.Environment == Production
}

// UsesRedis reports whether any component needs a redis connection.
func (c *Server) UsesRedis() bool {
	return c.StorageBackend == "redis" || c.Fanout == "redis"
}

// LoadClient builds the client configuration.
func LoadClient() (*Client, error) {
	cfg := DefaultClient()
	if err := overlayFile(&file{Client: &cfg}); err != nil {
		return nil, err
	}

	cfg.ServerURL = getEnv("FLOW_SERVER_URL", cfg.ServerURL)
	cfg.ClientID = getEnv("FLOW_CLIENT_ID", cfg.ClientID)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.SaveDelay = getEnvDuration("SAVE_DELAY", cfg.SaveDelay)
	cfg.ReconnectDelay = getEnvDuration("RECONNECT_DELAY", cfg.ReconnectDelay)
	cfg.RemoteHintDuration = getEnvDuration("REMOTE_HINT_DURATION", cfg.RemoteHintDuration)
	cfg.HistorySize = getEnvInt("HISTORY_SIZE", cfg.HistorySize)
	cfg.DisableSync = getEnvBool("DISABLE_SYNC", cfg.DisableSync)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the client configuration.
func (c *Client) Validate() error {
	return validateStruct(c)
}

// overlayFile decodes CONFIG_FILE, if set, over the sections in f.
func overlayFile(f *file) error {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("400ms") or bare milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
