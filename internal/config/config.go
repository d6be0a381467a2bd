package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	ServiceName string           `yaml:"service_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Relay       RelayConfig      `yaml:"relay"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Bus         BusConfig        `yaml:"bus"`
	Client      ClientConfig     `yaml:"client"`
}

// RelayConfig describes the upstream speech-recognition API. The credential
// itself is normally not stored here: APIKeyEnv names the environment
// variable that is read on every call.
type RelayConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutMS      int    `yaml:"timeout_ms"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxEvents     int    `yaml:"max_events"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
	PruneSchedule string `yaml:"prune_schedule"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// ClientConfig is read by the terminal client only.
type ClientConfig struct {
	ServerURL     string `yaml:"server_url"`
	TimeoutMS     int    `yaml:"timeout_ms"`
	RecordCommand string `yaml:"record_command"`
	SampleRate    int    `yaml:"sample_rate"`
	Channels      int    `yaml:"channels"`
	ChunkBytes    int    `yaml:"chunk_bytes"`
}

func Default() Config {
	return Config{
		ServiceName: "loqa-scribe",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 3000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Relay: RelayConfig{
			BaseURL:        "https://api.groq.com/openai/v1",
			Model:          "whisper-large-v3-turbo",
			APIKeyEnv:      "GROQ_API_KEY",
			TimeoutMS:      60000,
			MaxUploadBytes: 25 << 20,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/scribe-events.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxEvents:     100000,
			PruneSchedule: "@daily",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Client: ClientConfig{
			ServerURL:     "http://localhost:3000",
			TimeoutMS:     120000,
			RecordCommand: "arecord -q -f S16_LE -r 16000 -c 1 -t raw",
			SampleRate:    16000,
			Channels:      1,
			ChunkBytes:    3200,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOptional behaves like Load but tolerates a missing file, so binaries
// can run on defaults and environment alone.
func LoadOptional(path string) (Config, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	return Load(path)
}

// ResolveAPIKey returns the upstream credential at call time, or "" when
// none is configured.
func (c RelayConfig) ResolveAPIKey() string {
	if strings.TrimSpace(c.APIKey) != "" {
		return c.APIKey
	}
	if c.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "SCRIBE_SERVICE_NAME")
	overrideString(&cfg.Environment, "SCRIBE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SCRIBE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SCRIBE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SCRIBE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SCRIBE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SCRIBE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "SCRIBE_TELEMETRY_PROMETHEUS_BIND")
	overrideString(&cfg.Relay.BaseURL, "SCRIBE_RELAY_BASE_URL")
	overrideString(&cfg.Relay.Model, "SCRIBE_RELAY_MODEL")
	overrideString(&cfg.Relay.APIKeyEnv, "SCRIBE_RELAY_API_KEY_ENV")
	overrideInt(&cfg.Relay.TimeoutMS, "SCRIBE_RELAY_TIMEOUT_MS")
	overrideInt64(&cfg.Relay.MaxUploadBytes, "SCRIBE_RELAY_MAX_UPLOAD_BYTES")
	overrideString(&cfg.EventStore.Path, "SCRIBE_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "SCRIBE_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "SCRIBE_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxEvents, "SCRIBE_EVENT_STORE_MAX_EVENTS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "SCRIBE_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.EventStore.PruneSchedule, "SCRIBE_EVENT_STORE_PRUNE_SCHEDULE")
	overrideBool(&cfg.Bus.Enabled, "SCRIBE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "SCRIBE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SCRIBE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "SCRIBE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "SCRIBE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SCRIBE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SCRIBE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SCRIBE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SCRIBE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SCRIBE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Client.ServerURL, "SCRIBE_CLIENT_SERVER_URL")
	overrideInt(&cfg.Client.TimeoutMS, "SCRIBE_CLIENT_TIMEOUT_MS")
	overrideString(&cfg.Client.RecordCommand, "SCRIBE_CLIENT_RECORD_COMMAND")
	overrideInt(&cfg.Client.SampleRate, "SCRIBE_CLIENT_SAMPLE_RATE")
	overrideInt(&cfg.Client.Channels, "SCRIBE_CLIENT_CHANNELS")
	overrideInt(&cfg.Client.ChunkBytes, "SCRIBE_CLIENT_CHUNK_BYTES")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if _, err := url.ParseRequestURI(cfg.Relay.BaseURL); err != nil {
		return fmt.Errorf("relay.base_url is invalid: %w", err)
	}
	if cfg.Relay.Model == "" {
		return errors.New("relay.model must not be empty")
	}
	if cfg.Relay.TimeoutMS <= 0 {
		return errors.New("relay.timeout_ms must be positive")
	}
	if cfg.Relay.MaxUploadBytes <= 0 {
		return errors.New("relay.max_upload_bytes must be positive")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.EventStore.RetentionMode == "persistent" && cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.EventStore.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.EventStore.PruneSchedule); err != nil {
			return fmt.Errorf("event_store.prune_schedule is invalid: %w", err)
		}
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			// -1 asks the embedded server for a free port
			if cfg.Bus.Port != -1 && (cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535) {
				return errors.New("bus.port must be -1 or between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Client.ServerURL == "" {
		return errors.New("client.server_url must not be empty")
	}
	if cfg.Client.SampleRate <= 0 {
		return errors.New("client.sample_rate must be positive")
	}
	if cfg.Client.Channels <= 0 {
		return errors.New("client.channels must be positive")
	}
	if cfg.Client.ChunkBytes <= 0 {
		return errors.New("client.chunk_bytes must be positive")
	}
	return nil
}
