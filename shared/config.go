// shared/config.go
package shared

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIGatewayPort  = "8080"
	DefaultWorkerPort      = "8081" // Workers expose a health endpoint
	DefaultMaxWorkers      = 3
	DefaultUploadFolder    = "storage/audio"
	DefaultStemsFolder     = "storage/stems"
	DefaultBrokerURL       = "memory://"
	DefaultBackendURL      = "memory://"
	DefaultQueueName       = "kmusic:jobs"
	DefaultQueueBuffer     = 100
	DefaultResultTTL       = 24 * time.Hour
	DefaultAllowedOrigins  = "*"
	DefaultRateLimitRPM    = 300
	DefaultMaxUploadBytes  = 100 << 20
	DefaultSimulatedDelay  = 2 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
)

// Config holds configuration shared by the api-gateway and worker processes
type Config struct {
	APIGatewayPort string `yaml:"api_gateway_port"`
	WorkerPort     string `yaml:"worker_port"`
	MaxWorkers     int    `yaml:"max_workers"`
	// Filesystem layout
	UploadFolder string `yaml:"upload_folder"`
	StemsFolder  string `yaml:"stems_folder"`
	// Broker and result backend. "memory://" keeps everything in-process,
	// "redis://host:port/db" uses Redis.
	BrokerURL  string        `yaml:"broker_url"`
	BackendURL string        `yaml:"result_backend_url"`
	ResultTTL  time.Duration `yaml:"result_ttl"`
	// Queue configuration
	QueueName      string `yaml:"queue_name"`
	QueueMaxLength int    `yaml:"queue_max_length"`
	QueueBuffer    int    `yaml:"queue_buffer"`
	// HTTP surface
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimitRPM   int      `yaml:"rate_limit_rpm"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
	// Reply to unknown task IDs with a PENDING payload instead of 404
	UnknownTaskAsPending bool `yaml:"unknown_task_as_pending"`
	// How long each simulated analysis operation takes
	SimulatedDelay  time.Duration `yaml:"simulated_delay"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns a Config populated with defaults only
func DefaultConfig() *Config {
	return &Config{
		APIGatewayPort:  DefaultAPIGatewayPort,
		WorkerPort:      DefaultWorkerPort,
		MaxWorkers:      DefaultMaxWorkers,
		UploadFolder:    DefaultUploadFolder,
		StemsFolder:     DefaultStemsFolder,
		BrokerURL:       DefaultBrokerURL,
		BackendURL:      DefaultBackendURL,
		ResultTTL:       DefaultResultTTL,
		QueueName:       DefaultQueueName,
		QueueBuffer:     DefaultQueueBuffer,
		AllowedOrigins:  splitAndClean(DefaultAllowedOrigins),
		RateLimitRPM:    DefaultRateLimitRPM,
		MaxUploadBytes:  DefaultMaxUploadBytes,
		SimulatedDelay:  DefaultSimulatedDelay,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// LoadConfig loads configuration from an optional YAML file, then lets
// environment variables override individual values. An empty path falls
// back to CONFIG_FILE.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return errors.Wrapf(err, "parse config file %s", path)
	}
	log.Printf("INFO: Loaded configuration from %s", path)
	return nil
}

func (c *Config) applyEnv() {
	c.APIGatewayPort = valueOrDefault(os.Getenv("API_GATEWAY_PORT"), c.APIGatewayPort)
	c.WorkerPort = valueOrDefault(os.Getenv("WORKER_PORT"), c.WorkerPort)
	c.UploadFolder = valueOrDefault(os.Getenv("UPLOAD_FOLDER"), c.UploadFolder)
	c.StemsFolder = valueOrDefault(os.Getenv("STEMS_FOLDER"), c.StemsFolder)
	c.BrokerURL = valueOrDefault(os.Getenv("BROKER_URL"), c.BrokerURL)
	c.BackendURL = valueOrDefault(os.Getenv("RESULT_BACKEND_URL"), c.BackendURL)
	c.QueueName = valueOrDefault(os.Getenv("QUEUE_NAME"), c.QueueName)

	if v := os.Getenv("MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxWorkers = n
		} else {
			log.Printf("WARN: MAX_WORKERS=%q invalid, using %d", v, c.MaxWorkers)
		}
	}
	if v := os.Getenv("QUEUE_MAX_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.QueueMaxLength = n
		}
	}
	if v := os.Getenv("QUEUE_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.QueueBuffer = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.RateLimitRPM = n
		}
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("RESULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			c.ResultTTL = d
		}
	}
	if v := os.Getenv("SIMULATED_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			c.SimulatedDelay = d
		}
	}
	if v := os.Getenv("UNKNOWN_TASK_AS_PENDING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.UnknownTaskAsPending = b
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); strings.TrimSpace(v) != "" {
		c.AllowedOrigins = splitAndClean(v)
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = splitAndClean(DefaultAllowedOrigins)
	}
}

// valueOrDefault returns fallback if s is empty
func valueOrDefault(s string, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// splitAndClean splits a comma-separated list and trims spaces; empty entries are removed
func splitAndClean(csv string) []string {
	out := lo.Compact(lo.Map(strings.Split(csv, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	}))
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
