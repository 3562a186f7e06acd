package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Mode               string        `mapstructure:"mode"`
	Port               int           `mapstructure:"port"`
	LogLevel           string        `mapstructure:"log_level"`
	ReadLimit          int64         `mapstructure:"read_limit"`
	PingPeriod         time.Duration `mapstructure:"ping_period"`
	SendBuffer         int           `mapstructure:"send_buffer"`
	Secret             string        `mapstructure:"secret"`
	BackpressurePolicy string        `mapstructure:"backpressure_policy"`
	ClientEventLimit   int           `mapstructure:"client_event_limit"`
	ClientEventWindow  time.Duration `mapstructure:"client_event_window"`
}

type ConferenceAPIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Token   string        `mapstructure:"token"`
}

type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type HeartbeatConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type AgentConfig struct {
	HubURL            string        `mapstructure:"hub_url"`
	Token             string        `mapstructure:"token"`
	ConferenceID      string        `mapstructure:"conference_id"`
	ParticipantID     string        `mapstructure:"participant_id"`
	WHIPURL           string        `mapstructure:"whip_url"`
	ICEServers        []string      `mapstructure:"ice_servers"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MaxSignalAttempts int           `mapstructure:"max_signal_attempts"`
	MaxCallRetries    int           `mapstructure:"max_call_retries"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ClosedThreshold   time.Duration `mapstructure:"closed_threshold"`
	RedialInitial     time.Duration `mapstructure:"redial_initial"`
	RedialMax         time.Duration `mapstructure:"redial_max"`
}

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	ConferenceAPI ConferenceAPIConfig `mapstructure:"conference_api"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Heartbeat     HeartbeatConfig     `mapstructure:"heartbeat"`
	Agent         AgentConfig         `mapstructure:"agent"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.read_limit", 32768)
	v.SetDefault("server.ping_period", "54s")
	v.SetDefault("server.send_buffer", 32)
	v.SetDefault("server.secret", "")
	v.SetDefault("server.backpressure_policy", "drop")
	v.SetDefault("server.client_event_limit", 20)
	v.SetDefault("server.client_event_window", "1s")

	v.SetDefault("conference_api.base_url", "http://localhost:5000")
	v.SetDefault("conference_api.timeout", "10s")
	v.SetDefault("conference_api.token", "")

	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "30s")

	v.SetDefault("heartbeat.driver", "none")
	v.SetDefault("heartbeat.dsn", "")

	v.SetDefault("agent.hub_url", "ws://localhost:8080/api/ws/hub")
	v.SetDefault("agent.token", "")
	v.SetDefault("agent.conference_id", "")
	v.SetDefault("agent.participant_id", "")
	v.SetDefault("agent.whip_url", "")
	v.SetDefault("agent.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("agent.reconnect_delay", "10s")
	v.SetDefault("agent.max_signal_attempts", 7)
	v.SetDefault("agent.max_call_retries", 3)
	v.SetDefault("agent.heartbeat_interval", "5s")
	v.SetDefault("agent.closed_threshold", "30m")
	v.SetDefault("agent.redial_initial", "1s")
	v.SetDefault("agent.redial_max", "30s")
}

// Load reads config/config.<CONFIG_ENV>.yaml, or the file named by --config,
// then applies HEARING_* environment overrides and any bound flags.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("HEARING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileName := ""
	if flags != nil {
		if f := flags.Lookup("config"); f != nil {
			fileName = f.Value.String()
		}
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("heartbeat_driver", cfg.Heartbeat.Driver).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.PingPeriod <= 0 {
		errs = append(errs, errors.New("server.ping_period must be positive"))
	}
	switch c.Server.BackpressurePolicy {
	case "", "drop", "kick":
	default:
		errs = append(errs, fmt.Errorf("server.backpressure_policy %q is not drop or kick", c.Server.BackpressurePolicy))
	}
	switch c.Heartbeat.Driver {
	case "none", "postgres", "sqlite":
		if c.Heartbeat.Driver != "none" && c.Heartbeat.DSN == "" {
			errs = append(errs, fmt.Errorf("heartbeat.dsn required for driver %s", c.Heartbeat.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("heartbeat.driver %q is not none, postgres or sqlite", c.Heartbeat.Driver))
	}
	if c.ConferenceAPI.Timeout <= 0 {
		errs = append(errs, errors.New("conference_api.timeout must be positive"))
	}
	if c.Agent.MaxSignalAttempts <= 0 {
		errs = append(errs, errors.New("agent.max_signal_attempts must be positive"))
	}
	if c.Agent.MaxCallRetries < 0 {
		errs = append(errs, errors.New("agent.max_call_retries must not be negative"))
	}
	if c.Agent.ReconnectDelay <= 0 || c.Agent.HeartbeatInterval <= 0 || c.Agent.ClosedThreshold <= 0 {
		errs = append(errs, errors.New("agent durations must be positive"))
	}
	return errors.Join(errs...)
}
