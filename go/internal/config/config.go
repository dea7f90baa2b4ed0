package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/signalboard/go/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultConfig []byte

// Config is the full server configuration: a YAML document (the embedded
// default, or CONFIG_PATH) with environment overrides applied on top.
type Config struct {
	Server      ServerConfig                             `yaml:"server"`
	Congestion  CongestionConfig                         `yaml:"congestion"`
	NATS        NATSConfig                               `yaml:"nats"`
	Lights      []LightConfig                            `yaml:"lights"`
	Adjustments map[models.CongestionLevel]models.Timing `yaml:"congestion_adjustments"`
}

type ServerConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

type CongestionConfig struct {
	Enabled      bool          `yaml:"enabled"`
	APIURL       string        `yaml:"api_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type NATSConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	Stream         string `yaml:"stream"`
	CommandSubject string `yaml:"command_subject"`
}

// LightConfig is the static definition of one traffic light
type LightConfig struct {
	ID           string        `yaml:"id"`
	Name         string        `yaml:"name"`
	Location     string        `yaml:"location"`
	Subject      string        `yaml:"subject"`
	Timing       models.Timing `yaml:"timing"`
	InitialState string        `yaml:"initial_state"`
	TimeLeft     int           `yaml:"time_left"`
	AutoControl  *bool         `yaml:"auto_control"`
}

// Load reads the configuration at path, or the embedded default when path is
// empty, then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	data := defaultConfig
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		data = fileData
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a YAML document without applying environment overrides
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.LogLevel = getEnv("LOG_LEVEL", c.Server.LogLevel)
	c.Congestion.APIURL = getEnv("CONGESTION_API_URL", c.Congestion.APIURL)
	c.Congestion.PollInterval = getEnvAsDuration("CONGESTION_POLL_INTERVAL", c.Congestion.PollInterval)
	c.Congestion.Enabled = getEnvAsBool("CONGESTION_ENABLED", c.Congestion.Enabled)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Enabled = getEnvAsBool("NATS_ENABLED", c.NATS.Enabled)
}

// Validate checks everything the engine would otherwise reject at startup
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if len(c.Lights) == 0 {
		errs = append(errs, errors.New("at least one light is required"))
	}

	seen := make(map[string]bool, len(c.Lights))
	for i, l := range c.Lights {
		if l.ID == "" {
			errs = append(errs, fmt.Errorf("lights[%d]: id is required", i))
			continue
		}
		if seen[l.ID] {
			errs = append(errs, fmt.Errorf("lights[%d]: duplicate id %q", i, l.ID))
		}
		seen[l.ID] = true

		if l.InitialState != "" {
			if _, err := models.ParseLightState(l.InitialState); err != nil {
				errs = append(errs, fmt.Errorf("light %q: %w", l.ID, err))
			}
		}
		if err := l.Timing.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("light %q: %w", l.ID, err))
		}
		if l.TimeLeft < 0 {
			errs = append(errs, fmt.Errorf("light %q: time_left must not be negative", l.ID))
		}
	}

	if _, ok := c.Adjustments[models.CongestionMedium]; !ok {
		errs = append(errs, fmt.Errorf("congestion_adjustments.%s is required", models.CongestionMedium))
	}
	for level, timing := range c.Adjustments {
		if err := timing.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("congestion_adjustments.%s: %w", level, err))
		}
	}

	if c.Congestion.Enabled {
		if c.Congestion.APIURL == "" {
			errs = append(errs, errors.New("congestion.api_url is required when polling is enabled"))
		}
		if c.Congestion.PollInterval <= 0 {
			errs = append(errs, errors.New("congestion.poll_interval must be positive"))
		}
	}

	return errors.Join(errs...)
}

// TrafficLights converts the light definitions into engine records. A light
// without an initial state starts red; one without a subject publishes on
// defaultSubject(id).
func (c *Config) TrafficLights(defaultSubject func(id string) string) []models.TrafficLight {
	lights := make([]models.TrafficLight, 0, len(c.Lights))
	for _, l := range c.Lights {
		state := models.LightStateRed
		if l.InitialState != "" {
			state = models.LightState(l.InitialState)
		}
		subject := l.Subject
		if subject == "" && defaultSubject != nil {
			subject = defaultSubject(l.ID)
		}
		auto := true
		if l.AutoControl != nil {
			auto = *l.AutoControl
		}

		lights = append(lights, models.TrafficLight{
			ID:           l.ID,
			Name:         l.Name,
			Location:     l.Location,
			Subject:      subject,
			Timing:       l.Timing,
			CurrentState: state,
			TimeLeft:     l.TimeLeft,
			AutoControl:  auto,
		})
	}
	return lights
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("15s") or a bare number of seconds
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
