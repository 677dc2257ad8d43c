package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ismaiel54/dma-fix-gateway/internal/fix"
	"github.com/joho/godotenv"
)

// Config holds configuration for the gateway and its tools
type Config struct {
	// Service name
	ServiceName string

	// gRPC health port
	GRPCPort int

	// HTTP health and metrics port
	HTTPPort int

	// Log level: debug, info, warn, error
	LogLevel string

	// Directory for the SQLite store
	DataDir string

	// Kafka brokers (comma-separated)
	KafkaBrokers string
	KafkaEnabled bool

	FIX FIXConfig
}

// FIXConfig holds venue connection and session settings
type FIXConfig struct {
	Host    string
	Port    int
	Dialect string

	SenderCompID     string
	TargetCompID     string
	OnBehalfOfCompID string
	DeliverToCompID  string
	Username         string
	Password         string
	Account          string
	PartyID          string
	MarketSegmentID  string
	OwnedAccounts    []string

	HeartbeatInterval  time.Duration
	ConnectTimeout     time.Duration
	ReconnectInterval  time.Duration
	MaxConnectAttempts int
	ResetOnLogon       bool
	// Sequence numbers persisted ahead of the wire per store write
	SeqReserveBlock int

	BookDepth             int
	ThrottleWindow        int
	ThrottleMaxPerMinute  float64
	OmitTrailer           bool
	TLSInsecureSkipVerify bool
	TLSServerName         string

	// Symbols subscribed after every logon
	Subscribe           []string
	RequestSecurityList bool
}

// LoadConfig loads configuration from an optional .env file and the
// environment. Variables already set in the environment win over .env.
func LoadConfig(serviceName string) *Config {
	// Missing .env is fine
	_ = godotenv.Load(getEnvAsString("ENV_FILE", ".env"))

	cfg := &Config{
		ServiceName:  serviceName,
		GRPCPort:     getEnvAsInt("PORT_GRPC", 50051),
		HTTPPort:     getEnvAsInt("PORT_HTTP", 8080),
		LogLevel:     getEnvAsString("LOG_LEVEL", "info"),
		DataDir:      getEnvAsString("DATA_DIR", "./data"),
		KafkaBrokers: getEnvAsString("KAFKA_BROKERS", "127.0.0.1:9092"),
		KafkaEnabled: getEnvAsBool("KAFKA_ENABLED", true),
		FIX: FIXConfig{
			Host:                  getEnvAsString("FIX_HOST", ""),
			Port:                  getEnvAsInt("FIX_PORT", 443),
			Dialect:               getEnvAsString("FIX_DIALECT", "rofex"),
			SenderCompID:          getEnvAsString("FIX_SENDER_COMP_ID", ""),
			TargetCompID:          getEnvAsString("FIX_TARGET_COMP_ID", ""),
			OnBehalfOfCompID:      getEnvAsString("FIX_ON_BEHALF_OF", ""),
			DeliverToCompID:       getEnvAsString("FIX_DELIVER_TO", ""),
			Username:              getEnvAsString("FIX_USERNAME", ""),
			Password:              getEnvAsString("FIX_PASSWORD", ""),
			Account:               getEnvAsString("FIX_ACCOUNT", ""),
			PartyID:               getEnvAsString("FIX_PARTY_ID", ""),
			MarketSegmentID:       getEnvAsString("FIX_MARKET_SEGMENT", ""),
			OwnedAccounts:         getEnvAsList("FIX_OWNED_ACCOUNTS"),
			HeartbeatInterval:     time.Duration(getEnvAsInt("FIX_HEARTBEAT_SECONDS", 60)) * time.Second,
			ConnectTimeout:        getEnvAsDuration("FIX_CONNECT_TIMEOUT", 10*time.Second),
			ReconnectInterval:     getEnvAsDuration("FIX_RECONNECT_INTERVAL", 5*time.Second),
			MaxConnectAttempts:    getEnvAsInt("FIX_MAX_CONNECT_ATTEMPTS", 0),
			ResetOnLogon:          getEnvAsBool("FIX_RESET_ON_LOGON", true),
			BookDepth:             getEnvAsInt("FIX_BOOK_DEPTH", 5),
			ThrottleWindow:        getEnvAsInt("FIX_THROTTLE_WINDOW", 0),
			ThrottleMaxPerMinute:  getEnvAsFloat("FIX_THROTTLE_MAX_PER_MINUTE", 0),
			OmitTrailer:           getEnvAsBool("FIX_OMIT_TRAILER", false),
			TLSInsecureSkipVerify: getEnvAsBool("FIX_TLS_INSECURE", false),
			TLSServerName:         getEnvAsString("FIX_TLS_SERVER_NAME", ""),
			Subscribe:             getEnvAsList("FIX_SUBSCRIBE"),
			RequestSecurityList:   getEnvAsBool("FIX_REQUEST_SECURITY_LIST", false),
			SeqReserveBlock:       getEnvAsInt("FIX_SEQ_RESERVE_BLOCK", 1),
		},
	}

	return cfg
}

// Validate fails fast on settings the session cannot run without
func (c *Config) Validate() error {
	var errs []error
	if c.FIX.Host == "" {
		errs = append(errs, errors.New("FIX_HOST is required"))
	}
	if c.FIX.Port <= 0 || c.FIX.Port > 65535 {
		errs = append(errs, fmt.Errorf("FIX_PORT %d out of range", c.FIX.Port))
	}
	if c.FIX.SenderCompID == "" {
		errs = append(errs, errors.New("FIX_SENDER_COMP_ID is required"))
	}
	if c.FIX.Username == "" || c.FIX.Password == "" {
		errs = append(errs, errors.New("FIX_USERNAME and FIX_PASSWORD are required"))
	}
	if c.FIX.HeartbeatInterval < time.Second {
		errs = append(errs, errors.New("FIX_HEARTBEAT_SECONDS must be at least 1"))
	}
	if c.FIX.SeqReserveBlock < 1 {
		errs = append(errs, errors.New("FIX_SEQ_RESERVE_BLOCK must be at least 1"))
	}
	if c.FIX.BookDepth <= 0 {
		errs = append(errs, errors.New("FIX_BOOK_DEPTH must be positive"))
	}
	if _, err := fix.DialectByName(c.FIX.Dialect); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Dialect returns the venue preset with this deployment's identities applied
func (c *Config) Dialect() (fix.Dialect, error) {
	d, err := fix.DialectByName(c.FIX.Dialect)
	if err != nil {
		return fix.Dialect{}, err
	}
	d.SenderCompID = c.FIX.SenderCompID
	if c.FIX.TargetCompID != "" {
		d.TargetCompID = c.FIX.TargetCompID
	}
	d.OnBehalfOfCompID = c.FIX.OnBehalfOfCompID
	d.DeliverToCompID = c.FIX.DeliverToCompID
	d.PartyID = c.FIX.PartyID
	if c.FIX.MarketSegmentID != "" {
		d.MarketSegmentID = c.FIX.MarketSegmentID
	}
	d.OwnedAccounts = c.FIX.OwnedAccounts
	if c.FIX.ThrottleWindow > 0 {
		d.Throttle.Window = c.FIX.ThrottleWindow
	}
	if c.FIX.ThrottleMaxPerMinute > 0 {
		d.Throttle.MaxPerMinute = c.FIX.ThrottleMaxPerMinute
	}
	d.OmitTrailer = c.FIX.OmitTrailer
	return d, nil
}

// FIXAddr returns the venue host:port
func (c *Config) FIXAddr() string {
	return fmt.Sprintf("%s:%d", c.FIX.Host, c.FIX.Port)
}

// GRPCAddr returns the gRPC server address
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

// HTTPAddr returns the HTTP server address
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// SessionKey identifies the session's sequence numbers in the store
func (c *Config) SessionKey() string {
	return c.FIX.SenderCompID + "->" + c.FIX.TargetCompID
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
