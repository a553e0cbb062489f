// Package config loads TARS's environment contract: every option is
// named by the component that owns it (spec.md §6), with no shared
// prefix convention.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/tars-project/tars/internal/llm"
	"github.com/tars-project/tars/internal/mqttclient"
	"github.com/tars-project/tars/internal/wake"
)

// LenientBool parses the spec's required boolean leniency
// (1|true|yes|on, case-insensitive) via caarlos0/env's automatic
// encoding.TextUnmarshaler support, rather than a stricter strconv
// parse.
type LenientBool bool

func (b *LenientBool) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "1", "true", "yes", "on":
		*b = true
	case "", "0", "false", "no", "off":
		*b = false
	default:
		return fmt.Errorf("config: invalid boolean %q", text)
	}
	return nil
}

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// MQTT Core Client (C2)
	MQTTBrokerURL         string        `env:"MQTT_BROKER_URL,required"`
	MQTTClientID          string        `env:"MQTT_CLIENT_ID" envDefault:"tars"`
	MQTTSourceName        string        `env:"MQTT_SOURCE_NAME"`
	MQTTUsername          string        `env:"MQTT_USERNAME"`
	MQTTPassword          string        `env:"MQTT_PASSWORD"`
	MQTTKeepalive         time.Duration `env:"MQTT_KEEPALIVE" envDefault:"60s"`
	MQTTEnableHealth      LenientBool   `env:"MQTT_ENABLE_HEALTH" envDefault:"false"`
	MQTTEnableHeartbeat   LenientBool   `env:"MQTT_ENABLE_HEARTBEAT" envDefault:"false"`
	MQTTHeartbeatInterval time.Duration `env:"MQTT_HEARTBEAT_INTERVAL" envDefault:"5s"`
	MQTTDedupTTL          time.Duration `env:"MQTT_DEDUP_TTL" envDefault:"0s"`
	MQTTDedupMaxEntries   int           `env:"MQTT_DEDUP_MAX_ENTRIES" envDefault:"0"`
	MQTTReconnectMinDelay time.Duration `env:"MQTT_RECONNECT_MIN_DELAY" envDefault:"500ms"`
	MQTTReconnectMaxDelay time.Duration `env:"MQTT_RECONNECT_MAX_DELAY" envDefault:"5s"`

	// Wake activation (C4)
	WakeIdleTimeout     time.Duration `env:"WAKE_IDLE_TIMEOUT" envDefault:"8s"`
	WakeInterruptWindow time.Duration `env:"WAKE_INTERRUPT_WINDOW" envDefault:"6s"`
	WakeInstanceID      string        `env:"WAKE_INSTANCE_ID" envDefault:"wake"`
	// WakeVADThreshold is loaded for the opaque wake-word detector
	// collaborator; nothing in this repository reads it, neither the
	// wake package nor cmd/tars-mqtt-demo.
	WakeVADThreshold float64 `env:"WAKE_VAD_THRESHOLD" envDefault:"0.6"`

	// LLM request pipeline (C5)
	LLMModel                string        `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	LLMMaxTokens            int           `env:"LLM_MAX_TOKENS" envDefault:"1024"`
	LLMTemperature          float64       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	LLMTopP                 float64       `env:"LLM_TOP_P" envDefault:"1.0"`
	LLMUseRAGDefault        LenientBool   `env:"LLM_USE_RAG_DEFAULT" envDefault:"true"`
	RAGTopK                 int           `env:"RAG_TOP_K" envDefault:"3"`
	RAGDynamicPrompts       LenientBool   `env:"RAG_DYNAMIC_PROMPTS" envDefault:"false"`
	RAGMaxTokens            int           `env:"RAG_MAX_TOKENS" envDefault:"0"`
	RAGTimeout              time.Duration `env:"RAG_TIMEOUT" envDefault:"5s"`
	RAGPromptTemplate       string        `env:"RAG_PROMPT_TEMPLATE" envDefault:"Relevant context:\n%s"`
	LLMPromptTokenBudget    int           `env:"LLM_PROMPT_TOKEN_BUDGET" envDefault:"8192"`
	LLMStreamMaxChars       int           `env:"LLM_STREAM_MAX_CHARS" envDefault:"240"`
	LLMSentenceBoundary     string        `env:"LLM_SENTENCE_BOUNDARY" envDefault:".!?"`
	LLMTTSForwardingEnabled LenientBool   `env:"LLM_TTS_FORWARDING_ENABLED" envDefault:"true"`
	LLMToolCallingEnabled   LenientBool   `env:"LLM_TOOL_CALLING_ENABLED" envDefault:"false"`
	LLMToolCallTimeout      time.Duration `env:"LLM_TOOL_CALL_TIMEOUT" envDefault:"30s"`
	LLMHistoryMaxMessages   int           `env:"LLM_HISTORY_MAX_MESSAGES" envDefault:"40"`

	// Memory / RAG corpus (C6)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Operator admin HTTP surface
	AdminHTTPAddr      string        `env:"ADMIN_HTTP_ADDR" envDefault:":8090"`
	AdminReadTimeout   time.Duration `env:"ADMIN_HTTP_READ_TIMEOUT" envDefault:"5s"`
	AdminWriteTimeout  time.Duration `env:"ADMIN_HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	MetricsEnabled     LenientBool   `env:"METRICS_ENABLED" envDefault:"true"`
	FleetStaleAfter    time.Duration `env:"ADMIN_FLEET_STALE_AFTER" envDefault:"90s"`
}

// MQTTOptions adapts the parsed config into mqttclient.Options.
func (c *Config) MQTTOptions(log zerolog.Logger) mqttclient.Options {
	return mqttclient.Options{
		BrokerURL:         c.MQTTBrokerURL,
		ClientID:          c.MQTTClientID,
		SourceName:        c.MQTTSourceName,
		Username:          c.MQTTUsername,
		Password:          c.MQTTPassword,
		Keepalive:         c.MQTTKeepalive,
		EnableHealth:      bool(c.MQTTEnableHealth),
		EnableHeartbeat:   bool(c.MQTTEnableHeartbeat),
		HeartbeatInterval: c.MQTTHeartbeatInterval,
		DedupTTL:          c.MQTTDedupTTL,
		DedupMaxEntries:   c.MQTTDedupMaxEntries,
		ReconnectMinDelay: c.MQTTReconnectMinDelay,
		ReconnectMaxDelay: c.MQTTReconnectMaxDelay,
		Log:               log,
	}
}

// WakeOptions adapts the parsed config into wake.Options.
func (c *Config) WakeOptions(log zerolog.Logger) wake.Options {
	return wake.Options{
		IdleTimeout:     c.WakeIdleTimeout,
		InterruptWindow: c.WakeInterruptWindow,
		InstanceID:      c.WakeInstanceID,
		Log:             log,
	}
}

// LLMOptions adapts the parsed config into llm.Options.
func (c *Config) LLMOptions(log zerolog.Logger) llm.Options {
	return llm.Options{
		DefaultModel:         c.LLMModel,
		DefaultMaxTokens:     c.LLMMaxTokens,
		DefaultTemperature:   c.LLMTemperature,
		DefaultTopP:          c.LLMTopP,
		UseRAGDefault:        bool(c.LLMUseRAGDefault),
		RAGKDefault:          c.RAGTopK,
		RAGDynamicPrompts:    bool(c.RAGDynamicPrompts),
		RAGMaxTokens:         c.RAGMaxTokens,
		RAGTimeout:           c.RAGTimeout,
		RAGPromptTemplate:    c.RAGPromptTemplate,
		PromptTokenBudget:    c.LLMPromptTokenBudget,
		StreamMaxChars:       c.LLMStreamMaxChars,
		SentenceBoundary:     c.LLMSentenceBoundary,
		TTSForwardingEnabled: bool(c.LLMTTSForwardingEnabled),
		ToolCallingEnabled:   bool(c.LLMToolCallingEnabled),
		ToolCallTimeout:      c.LLMToolCallTimeout,
		HistoryMaxMessages:   c.LLMHistoryMaxMessages,
		Log:                  log,
	}
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	LogLevel      string
	MQTTBrokerURL string
	DatabaseURL   string
	AdminHTTPAddr string
}

// Load reads configuration from an optional .env file, then
// environment variables, then applies CLI overrides. Priority: CLI
// flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.AdminHTTPAddr != "" {
		cfg.AdminHTTPAddr = overrides.AdminHTTPAddr
	}

	if cfg.MQTTSourceName == "" {
		cfg.MQTTSourceName = cfg.MQTTClientID
	}

	return cfg, nil
}
