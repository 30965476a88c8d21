package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Server configures the HTTP listener.
type Server struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Ledger describes how to reach the Fabric gateway peer and which contract
// to bind. Timeouts bound each phase of a call; a zero value disables the
// per-call bound for that phase.
type Ledger struct {
	PeerEndpoint   string        `yaml:"peer_endpoint"`
	GatewayPeer    string        `yaml:"gateway_peer"` // TLS server name override
	TLSCertPath    string        `yaml:"tls_cert_path"`
	Channel        string        `yaml:"channel"`
	Chaincode      string        `yaml:"chaincode"`
	Identity       string        `yaml:"identity"` // wallet label
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	EvalTimeout    time.Duration `yaml:"evaluate_timeout"`
	SubmitTimeout  time.Duration `yaml:"submit_timeout"`
	CommitTimeout  time.Duration `yaml:"commit_timeout"`
}

// Wallet selects the identity store. The pebble backend is held open and
// locked by a running gateway, so identities are imported with the gateway
// stopped; the file backend has no such restriction.
type Wallet struct {
	Backend string `yaml:"backend"` // "file" or "pebble"
	Path    string `yaml:"path"`
}

// Broadcast configures the order book push to websocket clients.
type Broadcast struct {
	// Interval between order book polls for each connected client.
	Interval time.Duration `yaml:"interval"`
}

// Log sets the zap level and an optional file the log is copied to.
type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Audit configures the submission journal.
type Audit struct {
	// JournalPath is the append-only submission journal. Empty disables it.
	JournalPath string `yaml:"journal_path"`
}

// Display sets the time zone trade timestamps are rendered in.
type Display struct {
	TimeZone string `yaml:"time_zone"`
}

// Config is the complete gateway configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Ledger    Ledger    `yaml:"ledger"`
	Wallet    Wallet    `yaml:"wallet"`
	Broadcast Broadcast `yaml:"broadcast"`
	Log       Log       `yaml:"log"`
	Audit     Audit     `yaml:"audit"`
	Display   Display   `yaml:"display"`
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			AllowedOrigins:  []string{"http://localhost:5173"},
			ShutdownTimeout: 10 * time.Second,
		},
		Ledger: Ledger{
			PeerEndpoint:   "localhost:7051",
			GatewayPeer:    "peer0.org1.example.com",
			Channel:        "testchannel",
			Chaincode:      "property",
			Identity:       "appUser",
			ConnectTimeout: 5 * time.Second,
			EvalTimeout:    10 * time.Second,
			SubmitTimeout:  30 * time.Second,
			CommitTimeout:  time.Minute,
		},
		Wallet: Wallet{
			Backend: "file",
			Path:    "wallet",
		},
		Broadcast: Broadcast{
			Interval: 5 * time.Second,
		},
		Log: Log{
			Level: "info",
			File:  "data/gateway.log",
		},
		Audit: Audit{
			JournalPath: "data/submissions.log",
		},
		Display: Display{
			TimeZone: "Local",
		},
	}
}

// Load builds the configuration in priority order:
// ENV > .env file > YAML file > defaults.
// An empty yamlPath skips the YAML layer; a missing .env file is ignored.
func Load(yamlPath, envPath string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", yamlPath, err)
		}
	}

	loadDotEnv(envPath)
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(envPath string) {
	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = getEnv("API_ADDR", cfg.Server.Addr)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}
	envDurationMS("SHUTDOWN_TIMEOUT_MS", &cfg.Server.ShutdownTimeout)

	cfg.Ledger.PeerEndpoint = getEnv("LEDGER_PEER_ENDPOINT", cfg.Ledger.PeerEndpoint)
	cfg.Ledger.GatewayPeer = getEnv("LEDGER_GATEWAY_PEER", cfg.Ledger.GatewayPeer)
	cfg.Ledger.TLSCertPath = getEnv("LEDGER_TLS_CERT_PATH", cfg.Ledger.TLSCertPath)
	cfg.Ledger.Channel = getEnv("LEDGER_CHANNEL", cfg.Ledger.Channel)
	cfg.Ledger.Chaincode = getEnv("LEDGER_CHAINCODE", cfg.Ledger.Chaincode)
	cfg.Ledger.Identity = getEnv("LEDGER_IDENTITY", cfg.Ledger.Identity)
	envDurationMS("LEDGER_CONNECT_TIMEOUT_MS", &cfg.Ledger.ConnectTimeout)
	envDurationMS("LEDGER_EVALUATE_TIMEOUT_MS", &cfg.Ledger.EvalTimeout)
	envDurationMS("LEDGER_SUBMIT_TIMEOUT_MS", &cfg.Ledger.SubmitTimeout)
	envDurationMS("LEDGER_COMMIT_TIMEOUT_MS", &cfg.Ledger.CommitTimeout)

	cfg.Wallet.Backend = getEnv("WALLET_BACKEND", cfg.Wallet.Backend)
	cfg.Wallet.Path = getEnv("WALLET_PATH", cfg.Wallet.Path)

	envDurationMS("BROADCAST_INTERVAL_MS", &cfg.Broadcast.Interval)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	if v, ok := os.LookupEnv("AUDIT_JOURNAL_PATH"); ok {
		cfg.Audit.JournalPath = v
	}
	cfg.Display.TimeZone = getEnv("DISPLAY_TIME_ZONE", cfg.Display.TimeZone)
}

// Validate rejects configurations the gateway cannot run with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Ledger.PeerEndpoint == "" {
		return fmt.Errorf("ledger.peer_endpoint is required")
	}
	if c.Ledger.Channel == "" || c.Ledger.Chaincode == "" {
		return fmt.Errorf("ledger.channel and ledger.chaincode are required")
	}
	if c.Ledger.Identity == "" {
		return fmt.Errorf("ledger.identity is required")
	}
	switch c.Wallet.Backend {
	case "file", "pebble":
	default:
		return fmt.Errorf("wallet.backend must be file or pebble, got %q", c.Wallet.Backend)
	}
	if c.Wallet.Path == "" {
		return fmt.Errorf("wallet.path is required")
	}
	if c.Broadcast.Interval <= 0 {
		return fmt.Errorf("broadcast.interval must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("display.time_zone: %w", err)
	}
	return nil
}

// Location resolves the display time zone used for formatted timestamps.
func (c Config) Location() (*time.Location, error) {
	if c.Display.TimeZone == "" || c.Display.TimeZone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Display.TimeZone)
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envDurationMS(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
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
